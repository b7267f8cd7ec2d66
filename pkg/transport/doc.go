// Package transport moves synchronization frames between devices.
//
// The transport layer is deliberately dumb: frames are opaque bytes,
// delivery is best-effort, and nothing above a single datagram is
// guaranteed. UDP is the wire implementation; Mesh plus Memory provide an
// in-process network for tests, including partitioning to simulate devices
// that drift apart and later reconnect.
package transport
