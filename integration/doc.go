//go:build integration

// Package integration holds integration tests for the rangecache module.
//
// The tests require Docker: they start an nginx container serving a known
// payload and exercise cache strategies, buffered files, and the persistent
// block store against real HTTP range requests.
// Run with: go test -tags=integration ./integration/...
package integration
