// Package scenebridge wires the network listener, the bounded command queue
// and the host-loop executor into a single bridge a GUI host application can
// embed. The host registers its capabilities, starts the bridge, and calls
// Tick from its main loop; everything that touches host state runs inside
// Tick, never on a network goroutine.
//
// A minimal embedding:
//
//	reg := capability.NewRegistry()
//	scene.Register(reg, scene.NewScene())
//
//	br, err := scenebridge.NewServer(reg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := br.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer br.Close()
//
//	// ... inside the host's per-frame callback:
//	br.Tick(ctx)
//
// Hosts without a main loop of their own can call RunStandalone, which
// drives Tick on a timer until the context is cancelled.
package scenebridge
