// Package speechcore is the runtime core of an audio streaming host: a pump
// pulls PCM audio from a source in fixed-duration chunks and pushes it into a
// processor, with lifecycle and error events reported back to the owning site.
//
// # Layers
//
// Object model:
//   - capability: named capabilities, owning Handle and non-owning Weak references
//   - site: parent/child attachment (Holder) and hierarchical service lookup
//   - component: factory registry that creates objects by name from JSON config
//
// Execution:
//   - threadservice: two serial lanes (User, Background) with delayed and
//     cancellable tasks; Inline runs the same contract synchronously for tests
//   - event: multicast signals delivered directly or on a lane
//
// Audio:
//   - audio: formats, the Source and Processor contracts, cancellation info
//   - audio/stream, audio/mp3: file, callback and push sources
//   - pump: the chunked pull loop with Start, Pause and Stop
//   - processor/meter: a peak and RMS level processor
//   - session: wires a source, pump and processor under one site
//
// Host:
//   - config: layered YAML/JSON configuration with SPEECHCORE_ environment overrides
//   - metric, health: Prometheus metrics and health status over HTTP
//   - cmd/speechcore: plays a file through a session
//
// # Threading
//
// Pump slices run on the Background lane and re-submit themselves until end of
// stream, an error, Pause or Stop. Session control and event delivery run on
// the User lane, so observers see events in the order they were raised.
package speechcore
