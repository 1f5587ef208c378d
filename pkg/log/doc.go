/*
Package log provides structured logging for the GyanPath agent using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common patterns. Console output (human-readable) is the default;
JSON output is meant for production deployments where logs are shipped.

# Usage

Initialize once at startup:

	log.Init(log.Config{
	    Level:      log.InfoLevel,
	    JSONOutput: false,
	})

Component loggers carry a fixed field:

	logger := log.WithComponent("downloader")
	logger.Info().Str("course_id", id).Msg("download started")

Domain-scoped child loggers are available for course, lesson and download
ids. The global helpers (Info, Warn, Errorf, ...) cover one-off messages.
*/
package log
