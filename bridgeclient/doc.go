// Package bridgeclient is the Go client for the bridge's TCP protocol. A
// Client multiplexes concurrent calls over one connection: requests carry
// generated ids and responses are correlated back to the waiting caller, so
// pipelining falls out naturally.
package bridgeclient
