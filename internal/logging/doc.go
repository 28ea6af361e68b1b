// Package logging provides structured logging for workcrew runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation, so a pipeline run can be analysed after the fact by
// project, execution, team and worker.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (project ID, execution ID, team ID, worker ID)
//   - Size-based log rotation backed by lumberjack
//   - Log aggregation and filtering for the logs command
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/data", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithProject("p-1").WithExecution("e-42")
//	runLogger.WithTeam("research").Info("team started", "workers", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"team started","project_id":"p-1","execution_id":"e-42","team_id":"research","workers":3}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Testing
//
// Use [NopLogger] to discard all log output.
package logging
