// Package bgsync fires queue replay in response to a background sync signal.
//
// A signal carries a tag. Only the configured tag (DefaultTag unless
// overridden) starts a replay pass; any other tag is ignored. Signals arrive
// from the CLI, from the proxy's HTTP endpoint, or from Watch when a
// connectivity probe sees the network come back.
package bgsync
