package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geodesymiami/minsar-sub000/internal/sched"
	"github.com/geodesymiami/minsar-sub000/internal/walltime"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Loop is the polling state machine for one group of submissions.
type Loop struct {
	client   sched.Client
	admitter Admitter
	releaser CapacityReleaser
	policy   walltime.Policy
	observer Observer
	config   Config
	logger   *slog.Logger
}

// NewLoop creates a monitor loop.
func NewLoop(client sched.Client, adm Admitter, rel CapacityReleaser, policy walltime.Policy, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		client:   client,
		admitter: adm,
		releaser: rel,
		policy:   policy,
		observer: NopObserver{},
		config:   cfg,
		logger:   logger.With("component", "monitor"),
	}
}

// SetObserver attaches a persistence/status observer.
func (l *Loop) SetObserver(obs Observer) {
	if obs != nil {
		l.observer = obs
	}
}

// Run polls the group until every slot completes or a job fails. The
// returned error is nil on full completion, a *model.ClusterJobFailure
// when the scheduler reports a fatal state, or the context error.
func (l *Loop) Run(ctx context.Context, g *Group) error {
	if len(g.Records()) == 0 {
		return nil
	}
	l.logger.Info("monitoring group", "group", g.Label(),
		"records", len(g.Records()), "poll_interval", l.config.PollInterval)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := l.Cycle(ctx, g)
			if err != nil {
				return err
			}
			if done {
				l.logger.Info("group complete", "group", g.Label(), "records", len(g.Records()))
				return nil
			}
		}
	}
}

// Cycle runs one polling sweep over the group. Exported so tests can
// drive the state machine without waiting on the ticker.
func (l *Loop) Cycle(ctx context.Context, g *Group) (bool, error) {
	// Deferred resubmissions first: their capacity was freed in an
	// earlier sweep, so they have first claim on it.
	for i := range g.records {
		if !g.awaiting[i] {
			continue
		}
		if err := l.admitReplacement(ctx, g, i); err != nil {
			return false, err
		}
	}

	for i, r := range g.records {
		if g.done[i] || g.awaiting[i] {
			continue
		}

		state, err := l.client.QueryState(ctx, r.SchedulerID)
		if err != nil {
			// Transient by policy: the scheduler is authoritative and the
			// next sweep will ask again. The record keeps its last
			// observed state.
			l.logger.Warn("state query failed", "job", r.Unit.Name(),
				"scheduler_id", r.SchedulerID, "error", err)
			continue
		}

		switch {
		case state == model.StateCompleted:
			l.releaser.Release(r.Unit)
			g.done[i] = true
			l.setState(r, state)
			l.logger.Info("job completed", "job", r.Unit.Name(),
				"scheduler_id", r.SchedulerID, "attempt", r.Attempt)

		case state.NeedsResubmit():
			l.setState(r, state)
			l.releaser.Release(r.Unit)
			l.logger.Warn("job lost, resubmitting with escalated walltime",
				"job", r.Unit.Name(), "scheduler_id", r.SchedulerID, "state", state.String())
			if err := l.resubmit(ctx, g, i); err != nil {
				return false, err
			}

		case state.IsFatal():
			l.setState(r, state)
			l.releaser.Release(r.Unit)
			l.logger.Error("job failed, aborting run", "job", r.Unit.Name(),
				"scheduler_id", r.SchedulerID, "state", state.String())
			l.reportProgress(g)
			return false, &model.ClusterJobFailure{Unit: r.Unit, SchedulerID: r.SchedulerID, State: state}

		case state == model.StateUnknown:
			// Accounting gap; keep the last observed state and ask again
			// next sweep.
			l.logger.Warn("job state unknown", "job", r.Unit.Name(), "scheduler_id", r.SchedulerID)

		default: // PENDING, RUNNING
			if r.State != state {
				l.setState(r, state)
			}
		}
	}

	l.reportProgress(g)
	return g.Done(), nil
}

// resubmit replaces slot i with a fresh record for the same unit at an
// escalated walltime. The slot position is preserved so progress counts
// and iteration order stay stable.
func (l *Loop) resubmit(ctx context.Context, g *Group, i int) error {
	old := g.records[i]
	escalated := l.policy.Escalate(old.Unit.RequestedWalltime, old.Unit.QueueClass)
	if escalated <= old.Unit.RequestedWalltime {
		l.logger.Warn("walltime already at queue ceiling",
			"job", old.Unit.Name(), "queue", old.Unit.QueueClass,
			"walltime", walltime.Format(old.Unit.RequestedWalltime))
	}

	g.records[i] = old.Resubmitted(old.Unit.WithWalltime(escalated), "")
	g.awaiting[i] = true
	return l.admitReplacement(ctx, g, i)
}

// admitReplacement tries to push an escalated record through admission.
// Deferral leaves the slot flagged for the next sweep; any other
// admission failure aborts the run.
func (l *Loop) admitReplacement(ctx context.Context, g *Group, i int) error {
	r := g.records[i]
	id, err := l.admitter.TrySubmit(ctx, r.Unit)
	if err != nil {
		var admErr *model.AdmissionError
		if errors.As(err, &admErr) && admErr.IsDeferred() {
			l.logger.Info("resubmission deferred", "job", r.Unit.Name(),
				"attempt", r.Attempt, "reason", admErr.Cause)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	r.SchedulerID = id
	r.State = model.StatePending
	r.SubmittedAt = now
	r.UpdatedAt = now
	g.awaiting[i] = false
	l.observer.RecordUpdated(r)
	l.logger.Info("job resubmitted", "job", r.Unit.Name(), "scheduler_id", id,
		"attempt", r.Attempt, "walltime", walltime.Format(r.Unit.RequestedWalltime))
	return nil
}

func (l *Loop) setState(r *model.SubmissionRecord, s model.ClusterJobState) {
	r.SetState(s)
	l.observer.RecordUpdated(r)
}

func (l *Loop) reportProgress(g *Group) {
	p := g.Progress()
	l.logger.Info("progress", "group", g.Label(), "completed", p.Completed,
		"running", p.Running, "pending", p.Pending, "waiting", p.Waiting)
	l.observer.ProgressReported(g.Label(), p)
}
