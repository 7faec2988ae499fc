// Package logging builds the zap loggers used across the kernel.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Example:
//
//	logger := logging.NewDefault()
//	k, err := kernel.New(cfg, kernel.WithLogger(logger.Kernel(bootID)))
package logging
