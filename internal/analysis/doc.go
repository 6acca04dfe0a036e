// Package analysis summarises decoded capture sessions: traffic volume per
// direction, command histograms, heartbeat cadence, request/response
// latency, and a registry of every data point id observed with its value
// history. The collector makes no guesses about what a data point means; it
// surfaces the evidence and leaves interpretation to whoever reads the
// report.
package analysis
