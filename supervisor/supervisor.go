// Copyright 2026 The Gozo Authors.

// Package supervisor wires the Bus Gateway, Durable Store, and Scheduler
// Core together, performs restart-time recovery, and owns shutdown
// on process exit.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/rs/zerolog"

	"github.com/gozoproject/gozo/config"
	"github.com/gozoproject/gozo/gateway"
	"github.com/gozoproject/gozo/scheduler"
	"github.com/gozoproject/gozo/store"
)

// scheduler and gateway methods Supervisor depends on, narrowed to
// interfaces so Supervisor can be driven by fakes in tests.
type schedulerIface interface {
	Admit(ctx context.Context, req scheduler.Request) error
	Run(ctx context.Context)
	Wait()
	Snapshot() scheduler.Stats
}

type gatewayIface interface {
	Subscribe() error
	Unsubscribe() error
}

type storeIface interface {
	Iterate(ctx context.Context) ([]store.Entry, error)
}

// Supervisor owns the lifecycle of one Gozo process.
type Supervisor struct {
	cfg   config.Config
	gw    gatewayIface
	st    storeIface
	sched schedulerIface
	log   zerolog.Logger
}

// New constructs a Supervisor from already-built collaborators and wires
// the Gateway <-> Scheduler cycle: the Gateway feeds the Scheduler, and the
// Scheduler emits through the Gateway. Connection bootstrap (dialing NATS
// with the auth material in cfg) happens in cmd/gozod/main.go.
func New(cfg config.Config, gw *gateway.Gateway, st *store.Store, clock timeutil.Clock, log zerolog.Logger) *Supervisor {
	sched := scheduler.New(clock, gw, st, log)
	gw.SetAdmitter(sched)
	return &Supervisor{cfg: cfg, gw: gw, st: st, sched: sched, log: log}
}

// Recover performs the startup recovery sequence: read every durable record
// from the Store and admit it as if just received, strictly before the
// Gateway starts subscribing. Records whose fire_at is already in the past
// are admitted unchanged; they will fire promptly once Run begins.
func (sv *Supervisor) Recover(ctx context.Context) (int, error) {
	entries, err := sv.st.Iterate(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: recovery iterate: %v", scheduler.ErrFatal, err)
	}

	if err := writeCheckpoint(sv.cfg.CheckpointDir, entries); err != nil {
		sv.log.Warn().Err(err).Msg("failed to write recovery checkpoint; continuing")
	}

	for _, e := range entries {
		req := scheduler.Schedule{
			ID:           e.ID,
			FireAt:       e.Record.FireAt,
			ReplySubject: e.Record.ReplySubject,
			Payload:      e.Record.Payload,
			Headers:      e.Record.Headers,
		}
		if err := sv.sched.Admit(ctx, req); err != nil {
			return len(entries), fmt.Errorf("%w: re-admitting %q: %v", scheduler.ErrFatal, e.ID, err)
		}
	}

	return len(entries), nil
}

// Serve runs the process main loop: recovery, then subscribe, then the
// scheduler's firing loop, until ctx is cancelled (e.g. by a termination
// signal). It returns nil on clean shutdown and a wrapped ErrFatal error
// for main to translate into a non-zero exit code.
func (sv *Supervisor) Serve(ctx context.Context) error {
	n, err := sv.Recover(ctx)
	if err != nil {
		return err
	}
	sv.log.Info().Int("recovered", n).Msg("recovery complete")

	if err := sv.gw.Subscribe(); err != nil {
		return fmt.Errorf("%w: subscribe: %v", scheduler.ErrFatal, err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go sv.sched.Run(runCtx)

	<-ctx.Done()
	sv.log.Info().Msg("shutdown signal received; draining")

	if err := sv.gw.Unsubscribe(); err != nil {
		sv.log.Warn().Err(err).Msg("unsubscribe failed during shutdown")
	}

	sv.drain(sv.cfg.ShutdownDrain)

	cancelRun()
	sv.sched.Wait()

	return nil
}

// drain waits up to deadline for the pending queue to empty. Schedules
// still pending after the deadline remain in the Store for the next
// process.
func (sv *Supervisor) drain(deadline time.Duration) {
	if deadline <= 0 {
		return
	}

	timeout := time.After(deadline)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sv.sched.Snapshot().Pending == 0 {
			return
		}
		select {
		case <-timeout:
			sv.log.Warn().Msg("shutdown deadline reached with schedules still pending")
			return
		case <-ticker.C:
		}
	}
}
