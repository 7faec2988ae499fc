// Package tracing records kernel lifecycle events (ktrace).
//
// Jobs, processes, channels and VMOs created through kernel calls, along with
// process starts, exits and kills, are appended to a bounded ring that the
// debug surface can dump. Each event is also written to the debug log.
package tracing
