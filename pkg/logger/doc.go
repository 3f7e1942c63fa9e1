/*
Package logger contains the logging infrastructure shared by all services built
on servekit. It configures a zap logger the way the log scraping in Kubernetes
expects it (plain JSON, or the GCP structured format with LOG_FORMAT=gcp) and
transports it through the context.
*/
package logger
