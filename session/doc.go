// Package session hosts an audio pump and a processor for one stream.
//
// A Session creates both sub-components through an object factory, becomes
// their site and serves them the thread service through its own service
// registry, falling back to a parent provider. Control calls run on the User
// lane; audio flows on the Background lane; events are delivered on the User
// lane in the order SessionStarted, then Level and Canceled as they occur,
// then SessionStopped.
package session
