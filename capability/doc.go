// Package capability defines the registry of command handlers the bridge
// dispatches into. A capability pairs a descriptor (name, description,
// reflected params schema) with a handler function; the host integration
// registers its capabilities at startup and the executor looks them up by
// command name on each host tick.
//
// Handlers are only ever invoked from the host's main-loop tick, so they may
// touch host state freely without additional locking.
package capability
