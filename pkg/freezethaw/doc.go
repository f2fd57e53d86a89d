// Package freezethaw coordinates checkpoint and restore of a long-running
// server process.
//
// A Coordinator sits between a checkpoint engine (package engine), which
// freezes the process into a snapshot and later restores it, and the
// managed process's own lifecycle operations (package admin), which bring it
// to a quiescent state before the snapshot and back to running afterwards.
//
// # Strategies
//
// SuspendResume pauses request handling in place: the freeze hook suspends
// the process and waits for in-flight work to drain; the thaw hook resumes it.
//
// ReloadToModel tears the runtime services down and rebuilds them, parking
// the rebuild at the point where configuration is loaded but no service has
// started. The freeze hook waits for STOPPING, STOPPED and STARTING, in that
// order, and for the booting process to call ReadyForCheckpoint. The boot
// stays parked inside ReadyForCheckpoint until the thaw hook releases it,
// after which the thaw hook waits for RUNNING.
//
// # Single flight
//
// At most one checkpoint preparation is in flight. A second TriggerCheckpoint
// fails immediately with ErrAlreadyInProgress and changes nothing; callers
// retry on their own schedule.
//
// # Example
//
//	eng := engine.Select(logger, criuAdapter, engine.NewLocal())
//	coord, err := freezethaw.NewCoordinator(eng, process, notifier,
//	    freezethaw.WithSupportedStrategies(freezethaw.SuspendResume, freezethaw.ReloadToModel),
//	    freezethaw.WithDefaultStrategy(freezethaw.SuspendResume),
//	    freezethaw.WithMarkerPath("/var/run/app/checkpoint.marker"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer coord.Close()
//	process.SetBootBarrier(coord.ReadyForCheckpoint)
//
//	if err := coord.TriggerCheckpoint(ctx, freezethaw.ReloadToModel); err != nil {
//	    log.Printf("checkpoint not prepared: %v", err)
//	}
package freezethaw
