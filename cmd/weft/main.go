// Weft is a distributed command graph daemon for small fleets of devices.
//
// Devices append cryptographically signed commands to a shared append-only
// graph, evaluate them against a deterministic policy, and synchronize over
// UDP so partitioned devices converge when they reconnect.
//
// Usage:
//
//	# Generate this device's signing key
//	weft keys generate
//
//	# Start the daemon, creating a new graph
//	weft run --init
//
//	# Start the daemon joining an existing graph via peers
//	weft run --config /etc/weft/config.yaml
//
//	# Inspect the stored graph
//	weft graph show
//
//	# Validate a configuration file
//	weft validate
package main

func main() {
	Execute()
}
