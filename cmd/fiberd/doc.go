// Package main is fiberd, a host for the fiber kernel object layer.
//
// fiberd boots a kernel, starts a launcher as the userboot process and lets
// it build the job tree described by a TOML manifest. Each manifest process
// runs a built-in program (echo, client or sleeper) on its own goroutine and
// talks to its peers over channels handed to it in its bootstrap message.
//
// Usage:
//
//	# Built-in demo tree, development logs
//	./fiberd -dev
//
//	# Custom tree with the debug HTTP surface
//	./fiberd -manifest tree.toml -metrics 127.0.0.1:9464
//
// Configuration:
//   - Environment variables (FIBER_*, LOG_*, METRICS_*)
//   - CLI flags (override env vars)
//
// Signals:
//   - SIGINT, SIGTERM: kill the root job and exit
package main
