// Package client is the Go client of the modelhost HTTP API, used by the
// modelhost CLI.
package client
