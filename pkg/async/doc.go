// Package async provides utilities for asynchronous programming with Go
// generics.
//
// Future[T] represents the result of an asynchronous computation. It
// provides methods to wait for completion (Await, AwaitContext), check
// status without blocking (IsComplete), and handle timeouts
// (AwaitWithTimeout).
//
// Futures bridge callback-style APIs to blocking call sites. The request
// scheduler delivers outcomes through callbacks; wrapping a submission in a
// future gives synchronous ergonomics:
//
//	f := async.NewFuture[scheduler.Result]()
//	sched.Get("/users/me", token, func(res scheduler.Result) {
//		f.Complete(res, res.Err)
//	})
//
//	res, err := f.AwaitWithTimeout(10 * time.Second)
//	if errors.Is(err, async.ErrTimeout) {
//		// still queued or in flight; the callback will fire later
//	}
//
// Async runs a function in a goroutine and returns a future for its result.
// WaitAll and WaitAny coordinate multiple futures.
package async
