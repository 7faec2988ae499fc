/*
Package server is fiberd's debug HTTP surface.

Routes:

	GET /              service and boot id
	GET /health        healthy until the kernel halts
	GET /metrics       Prometheus exposition
	GET /metrics/json  running kernel call totals
	GET /debug/tree    job tree snapshot, ?format=yaml for YAML
	GET /debug/trace   kernel trace ring, ?tag=proc_exit to filter

Every route is read-only; nothing here reaches into a process's handles.
*/
package server
