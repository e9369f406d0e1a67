// Package lifecycle tracks process foreground/background transitions and
// coarse resource pressure, and turns them into an interval-scaling policy
// for periodic work.
//
// The scheduler is a policy oracle, not an executor: it does not run the
// cache janitor or anything else by itself. Components that tick
// periodically read IntervalMultiplier each cycle, or register a task and
// let the scheduler's timer loop apply the multiplier for them.
//
//	sched := lifecycle.NewScheduler(cfg, source, logger)
//	sched.Start(ctx)
//
//	// Host bindings deliver OS lifecycle events:
//	sched.OnForeground()
//	sched.OnBackground()
//
//	// Periodic work adapts live:
//	sched.RegisterTask("cache-janitor", time.Minute, false, func(ctx context.Context) {
//	    store.RunJanitorPass()
//	})
//
// The state machine is phase × pressure: {Foreground, Background} ×
// {Normal, Elevated, Critical}. Phase flips instantly on host events;
// pressure follows periodic samples of an injected PressureSource with
// low/high thresholds. A failed sample holds the last known level rather
// than resetting — fail-safe, not fail-open.
//
// The multiplier is a pure function of the current state, looked up in a
// tunable table; it carries no history. Under Critical pressure
// non-essential registered tasks are skipped entirely, not merely slowed.
package lifecycle
