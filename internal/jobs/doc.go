// Package jobs moves blocking native work off the host goroutine and delivers
// each result back to it exactly once.
//
// A Loop is the host thread: one goroutine that runs posted functions one at a
// time. A Scheduler owns a bounded pool of worker goroutines. Submit pins its
// target, queues the work and returns immediately; a worker runs the work, and
// the completion is posted to the Loop, after which the pin is released.
//
//	loop := jobs.NewLoop()
//	sched := jobs.NewScheduler(loop, jobs.WithWorkers(4))
//	sched.Start()
//	defer sched.Stop(ctx)
//
//	jobs.Go(sched, "index.entry", idx, fetch, func(e *Entry, err error) { ... })
//	_ = loop.RunUntilIdle(ctx)
//
// Jobs cannot be cancelled, and completions of independent jobs arrive in no
// particular order.
package jobs
