// Package assetlib integrates a remote asset catalog (Poly Haven compatible
// API) with the bridge: browsing categories, searching assets and
// downloading files into a watched local store. Handlers perform network
// I/O, so they are the slow commands the executor's watchdog exists for;
// results are cached to keep repeat lookups off the wire.
package assetlib
