// Dispatchd is a resilient multi-provider dispatch service for AI
// completion traffic.
//
// It maintains a pool of upstream completion providers, tracks each one's
// health with a per-provider circuit breaker, and shepherds every request
// through the pool in health-aware order until a provider succeeds or the
// pool is exhausted. Failed attempts fail over to the next candidate; the
// caller always receives an aggregate result rather than an error.
//
// Usage:
//
//	# Start the server with default configuration
//	dispatchd run
//
//	# Start with a custom configuration file
//	dispatchd run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	dispatchd validate --config /path/to/config.yaml
//
//	# Query the persisted audit trail
//	dispatchd audit --provider openai-primary --limit 50
//
//	# Show version information
//	dispatchd version
package main

func main() {
	Execute()
}
