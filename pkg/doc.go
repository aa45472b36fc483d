// Package pkg provides shared utilities for the usbserial port layer.
//
// This package contains common functionality used by the serial port,
// the driver contract, and driver implementations, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for port and driver lifecycle errors
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with port-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentPort, "port opened", "rxSize", 512)
//
// # Errors
//
// Lifecycle errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrNotReady) {
//	    // Channel is not enabled/configured yet
//	}
//
// Data-path operations (read, write, flush) never return errors; they
// signal degraded outcomes through their return counts instead.
package pkg
