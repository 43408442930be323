// Package pump provides the audio pump: a state machine that reads an
// audio.Source in slices on the Background lane of the site's thread service
// and hands the chunks to an audio.Processor.
//
// States move NoInput -> Idle on SetReader, Idle -> Processing on Start,
// Processing <-> Paused on Pause and Start, and back to Idle on Stop, end of
// stream, a read failure or a task the thread service will never run. The
// last two are reported through the site's ReportError. Every slice carries the epoch it was scheduled
// in; a transition bumps the epoch so stale slices exit without touching the
// processor.
//
// Usage:
//
//	p := pump.New(pump.DefaultConfig())
//	_ = p.SetSite(host.Weak().Any())
//	_ = p.SetReader(source) // source is a capability.Handle[audio.Source]; the pump clones it
//	_ = p.Start(processor)
package pump
