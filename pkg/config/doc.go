// Package config loads docketd configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then DOCKET_* environment variables. The result is validated once.
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	storage:
//	  postgres_url: postgres://docket@localhost/docket?sslmode=disable
//	  blob_backend: s3
//	  s3_bucket: docket-documents
//	auth:
//	  token_secret: ${from a secret store}
//	foil:
//	  holidays: ["2024-07-04", "2024-11-28"]
//
// Environment overrides use the same names in upper case, for example
// DOCKET_POSTGRES_URL, DOCKET_TOKEN_SECRET and DOCKET_LOG_LEVEL. List values
// such as DOCKET_FOIL_HOLIDAYS are comma separated.
//
// Watch reloads the file on change; only the log level is applied live.
package config
