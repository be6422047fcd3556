// Package wire defines the data model of the bridge protocol: the framed
// JSON messages exchanged between a controlling client and the host-side
// bridge, the correlation id type, and the error taxonomy.
//
// Messages are newline-delimited JSON. A client sends Command values and
// receives Response values; every Response carries the id of the Command it
// answers. The package is transport-agnostic; framing is owned by the
// transport (see tcpserver).
package wire
