// Package tcpserver is the network transport of the bridge: a TCP listener
// whose accept loop and per-connection read/write loops all run on their own
// goroutines, fully decoupled from the host main loop. Connections frame
// messages as newline-delimited JSON, support pipelining, and resolve
// protocol and backpressure errors locally, so only well-formed commands
// ever reach the shared queue.
package tcpserver
