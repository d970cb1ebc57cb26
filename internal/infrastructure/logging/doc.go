// Package logging provides structured logging for feederpull.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every stage of a run.
//
// # Features
//
//   - JSON output for log shippers, text output for operators
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional per-process status file, named by start time
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  file:
//	    enabled: true
//	    dir: "./Status Logs"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, version)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("fetching tag", "tag", tagName)
//
// # Security
//
// Never log historian or warehouse credentials.
package logging
