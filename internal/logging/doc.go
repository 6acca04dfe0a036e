// Package logging provides structured logging for the tuyatap tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the decoder and capture tools. It provides both
// general logging functions and specialized functions for protocol-specific
// logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, chunk reads, frame decoding)
//   - Info: Normal operations (port opened, capture started, session summary)
//   - Warn: Non-fatal issues (checksum failures, dropped bytes, slow clients)
//   - Error: Fatal issues (port open failures, unwritable capture files)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Capture started",
//	    zap.String("port", "/dev/ttyUSB0"),
//	    zap.Int("baud", 9600),
//	    zap.String("source", "mcu"),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
// Serial Port Logging:
//
//	logging.LogPortEvent("/dev/ttyUSB0", "opened")
//	logging.LogPortEvent("/dev/ttyUSB0", "closed")
//
// Traffic Logging:
//
//	logging.LogChunk("mcu", data)
//	logging.LogFrame("mcu", "Report DP Status", 5, true)
//	logging.LogRawBytes("undecoded tail", data)
//
// # Configuration
//
// Logging is silent by default so decoded output and capture files stay
// clean. Set TUYATAP_LOG_LEVEL or pass a level explicitly to enable it:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Output Format
//
// Logs are written to stderr in console format so they never interleave with
// capture data on stdout:
//
//	2025-11-25T10:30:45.123-0800  INFO  Serial port event
//	  port=/dev/ttyUSB0
//	  event=opened
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
