// Package monitor streams decoded frames to WebSocket clients.
//
// The monitor is the bridge between a tap (live or replayed) and anything
// that wants to watch it from outside the terminal: a browser dashboard, a
// logging sidecar, another tool. It never feeds back into decoding; clients
// are pure observers.
//
// # Endpoints
//
//	/ws       WebSocket stream: one JSON document per decoded frame
//	/healthz  liveness probe, reports the connected client count
//
// Each client receives the session header first (when the monitor was
// started with one), then frame events as they decode:
//
//	{"type":"session","session_id":"...","started":"...","baud":9600}
//	{"type":"frame","time":"...","time_ms":1741944413000,"source":"mcu",
//	 "command":7,"command_name":"DP Status Ack","version":3,"payload_len":0,
//	 "checksum_ok":true,"hex":"55aa0307000009"}
//
// Value data points carry both the signed and unsigned readings, since the
// wire format does not declare signedness.
//
// # Slow Clients
//
// Every client has a fixed-depth send queue. When a queue is full the
// client misses events; the tap is never blocked by a slow consumer.
//
// # Discovery
//
// With mDNS enabled the monitor registers a _tuyatap._tcp service carrying
// the session id, so dashboards on the local network can attach without
// configuration. The registration is withdrawn on shutdown.
package monitor
