/*This file is part of servekit.

Servekit is free software: you can redistribute it and/or modify
it under the terms of the Expat(MIT) License as published by
the Free Software Foundation.

Servekit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
MIT License for more details.

You should have received a copy of the MIT License
along with servekit. If not, see <https://directory.fsf.org/wiki/License:Expat>.

Copyright freiheit.com*/

/*
Server infrastructure common for all services built on servekit.
It starts the primary socket (REST, optionally gRPC on the same port) and the
management socket (health, metrics, version) and shuts both down on SIGINT or
SIGTERM.
*/
package setup

/*
Example:

func main() {
	logger.Wrap(context.Background(), func(ctx context.Context) error {
		cfg, err := config.Load(ctx, config.EnvPrefix("demo"))
		if err != nil {
			return err
		}
		grpcServer := grpc.NewServer(ctx)
		pb.RegisterYourServiceServer(grpcServer, handler)

		return setup.NewFromConfig(cfg, nil).
			RestRouter(mux).
			GrpcRouter(grpcServer).
			Background("import", func(ctx context.Context, hr *setup.HealthReporter) error {
				return hr.Retry(ctx, consume)
			}).
			Run(ctx)
	})
}
*/
