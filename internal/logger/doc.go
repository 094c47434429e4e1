// Package logger provides a small, thread-safe levelled logger.
//
// Every entry carries a timestamp, a level and an optional node ID. The
// default logger writes to stderr: when the process runs under a Maelstrom
// style harness, stdout carries protocol frames and must stay clean.
//
// # Basic Usage
//
//	logger.Info("", "starting")
//	logger.Info("n1", "handled %s", kind)
//	logger.Warn("n1", "unexpected message: %s", raw)
//
// # Log Levels
//
// Messages below the configured level are dropped. ParseLevel accepts the
// strings used in configuration files: debug, info, warn, error.
package logger
