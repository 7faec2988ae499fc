/*
Package monitoring provides Prometheus metrics for the kernel.

# Overview

Every kernel call is timed and counted by result status. Object creation,
channel traffic, policy violations and process exits have their own
counters, and live handle and message buffer counts are sampled at scrape
time through gauge functions.

Each Metrics owns its registry, so tests and embedders can run several
kernels side by side.

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics, "channel_write")
	// ... perform the call ...
	timer.Stop("OK")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
