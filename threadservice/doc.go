// Package threadservice schedules deferred work on two serial lanes.
//
// Every task is bound to one lane (affinity). The User lane carries
// caller-visible work such as event delivery; the Background lane carries
// everything else. Each lane executes one task at a time, in order of
// eligibility time (submission time plus delay), ties broken by submission
// order. Tasks on different lanes run concurrently and are not ordered
// relative to each other.
//
// A task ends in exactly one terminal outcome: Executed, Cancelled or
// FailedToSchedule. Callers that need to know which attach a Promise:
//
//	p := threadservice.NewPromise()
//	id := ts.ExecuteAsync(work, threadservice.WithAffinity(threadservice.User), threadservice.WithPromise(p))
//	res, err := p.Wait(ctx)
//
// Cancellation is cooperative and pre-start only. Cancel returns true only
// when the task had not started; running tasks are never interrupted.
//
// Service is the production implementation built on pkg/worker queues.
// Inline runs everything on the calling goroutine and is meant for tests.
// Components obtain the scheduler from their site's service provider under
// the ThreadService capability name rather than through a global.
package threadservice
