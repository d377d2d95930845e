// Package logging provides structured logging for the generation bridge.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// request context propagation. Every generation is logged with its request
// ID, provider and outcome kind so a failed request can be traced after the
// fact with `genbridge logs`.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation("/var/log/genbridge", "INFO",
//	    logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	reqLogger := logger.WithRequest(requestID).WithProvider("openai")
//	reqLogger.Info("worker exited", "exit_code", 0, "duration_ms", 812)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"worker exited","request_id":"...","provider":"openai","exit_code":0,"duration_ms":812}
//
// An empty directory sends logs to stderr, which is what the Lambda
// entrypoint uses.
//
// # Log Rotation
//
// Rotated files are named genbridge.log.1, genbridge.log.2, etc., where .1
// is the most recent backup. With compression enabled, backups become
// genbridge.log.1.gz, etc.
//
// # Log Aggregation and Filtering
//
//	entries, err := logging.AggregateLogs("/var/log/genbridge")
//	if err != nil {
//	    return err
//	}
//	failed := logging.FilterLogs(entries, logging.LogFilter{
//	    Level:    "WARN",
//	    Provider: "openai",
//	})
//	logging.WriteLogEntries(os.Stdout, failed, "text")
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewLoggerWithWriter] with a
// bytes.Buffer to assert on what was logged.
package logging
