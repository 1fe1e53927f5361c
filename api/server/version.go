// version.go - Node & API version info for the EHR ledger node
package server

// version is overridden at build time with -ldflags "-X ehrchain/api/server.version=...".
var version = "v0.1.0-dev"

// NodeVersion returns the current node software version.
func NodeVersion() string {
	return version
}

// APIVersion returns the current API version.
func APIVersion() string {
	return "v1"
}
