// Package testing provides test utilities for the pulse library.
//
// It offers helpers for setting up test environments: an embedded NATS
// server with JetStream for export tests, a scripted time source for
// deterministic beat timing, and a logger that writes through testing.T.
// It follows Go's convention of providing testing utilities in a dedicated
// package (similar to net/http/httptest).
//
// Example usage:
//
//	import (
//	    "testing"
//	    pulsetest "github.com/arloliu/pulse/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := pulsetest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
