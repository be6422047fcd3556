// Package scene is an in-memory stand-in for the host application's document
// model: named objects with transforms, materials and render settings. It
// backs the standalone example and the end-to-end tests, and doubles as the
// reference for how a real host wires its state behind the capability
// registry.
//
// Scene carries no locking on purpose. Every handler runs on the host
// main-loop tick, one command at a time, so the model is only ever touched
// from that single goroutine. A host embedding the bridge keeps the same
// property for free.
package scene
