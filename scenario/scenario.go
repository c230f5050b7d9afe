// Package scenario runs the resync-after-garbage-collection scenario: one node is
// stopped while the rest of the network advances past TargetHeight, then restarted,
// and must catch up to the height observed on the live node within Timeout.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/wait"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/looplab/fsm"
)

// Result describes a finished run.
type Result struct {
	RunID string
	State string
	// TargetHeight is the live node's height captured once the network passed Config.TargetHeight.
	TargetHeight uint64
	// FinalHeight is the last height observed on the restarted node.
	FinalHeight uint64
	// Phases holds the time spent in each state that was entered.
	Phases map[string]time.Duration
}

type Orchestrator struct {
	logger  ulogger.Logger
	builder cluster.Builder
	config  Config
	clock   clockwork.Clock
}

type Option func(*Orchestrator)

func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

func New(logger ulogger.Logger, builder cluster.Builder, config Config, opts ...Option) *Orchestrator {
	initPrometheusMetrics()

	o := &Orchestrator{
		logger:  logger.New("scenario"),
		builder: builder,
		config:  config,
		clock:   clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// run holds the state of one Run call.
type run struct {
	*Orchestrator
	id          string
	sm          *fsm.FSM
	result      *Result
	phaseStart  time.Time
	lastHeights map[int]uint64
}

// Run executes the scenario against a cluster built from topology. Errors from the
// builder are returned unchanged and nothing is torn down. Once the cluster is built it
// is stopped on every return path.
func (o *Orchestrator) Run(ctx context.Context, topology *cluster.Topology) (result *Result, err error) {
	r := &run{
		Orchestrator: o,
		id:           uuid.NewString(),
		lastHeights:  make(map[int]uint64),
	}

	r.result = &Result{
		RunID:  r.id,
		State:  StateBuilding,
		Phases: make(map[string]time.Duration),
	}

	r.phaseStart = o.clock.Now()
	r.sm = newStateMachine(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			r.enterState(e.Src, e.Dst)
		},
	})

	prometheusScenarioState.Set(float64(stateIndex(StateBuilding)))

	if err = o.config.Validate(); err != nil {
		return r.fail(ctx, err)
	}

	if topology == nil {
		return r.fail(ctx, errors.NewInvalidArgumentError("[%s] topology is nil", r.id))
	}

	o.logger.Infof("[%s] building cluster: %d validators, %d observers", r.id, topology.NumValidators, topology.NumObservers)

	c, err := o.builder.Start(ctx, topology)
	if err != nil {
		return r.fail(ctx, err)
	}

	defer func() {
		// teardown must run even when ctx is done
		if stopErr := c.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			o.logger.Errorf("[%s] failed to stop cluster: %v", r.id, stopErr)

			if err == nil {
				err = errors.NewClusterError("[%s] failed to stop cluster", r.id, stopErr)
			}
		}
	}()

	live, err := c.Node(o.config.LiveNode)
	if err != nil {
		return r.fail(ctx, err)
	}

	stopped, err := c.Node(o.config.StoppedNode)
	if err != nil {
		return r.fail(ctx, err)
	}

	if err = r.degrade(ctx, live, stopped); err != nil {
		return r.fail(ctx, err)
	}

	if err = r.catchUp(ctx, stopped); err != nil {
		return r.fail(ctx, err)
	}

	if err = r.sm.Event(ctx, EventVerify); err != nil {
		return r.fail(ctx, err)
	}

	o.logger.Infof("[%s] %s caught up to height %d (target %d)", r.id, stopped.Name(), r.result.FinalHeight, r.result.TargetHeight)
	prometheusScenarioRuns.WithLabelValues(StateVerified).Inc()

	return r.result, nil
}

// degrade kills the stopped node and waits, without a deadline, for the live node to
// reach the target height. The last height observed becomes the catch-up target.
func (r *run) degrade(ctx context.Context, live, stopped cluster.Node) error {
	if err := r.sm.Event(ctx, EventDegrade); err != nil {
		return err
	}

	r.logger.Infof("[%s] killing %s", r.id, stopped.Name())

	if err := stopped.Kill(ctx); err != nil {
		return errors.NewClusterError("[%s] failed to kill %s", r.id, stopped.Name(), err)
	}

	err := wait.Until(ctx, func(ctx context.Context) (bool, error) {
		h, err := r.height(ctx, live)
		if err != nil {
			return false, err
		}

		r.result.TargetHeight = h

		return h >= r.config.TargetHeight, nil
	},
		wait.WithInterval(r.config.PollInterval),
		wait.WithClock(r.clock),
		wait.WithLogger(r.logger),
		wait.WithDescription(fmt.Sprintf("%s progress to height %d", live.Name(), r.config.TargetHeight)),
	)
	if err != nil {
		return err
	}

	r.logger.Infof("[%s] %s reached height %d", r.id, live.Name(), r.result.TargetHeight)

	return nil
}

// catchUp restarts the stopped node with itself as boot node and waits at most
// Config.Timeout for it to reach the captured target height.
func (r *run) catchUp(ctx context.Context, stopped cluster.Node) error {
	if err := r.sm.Event(ctx, EventRecover); err != nil {
		return err
	}

	if r.config.SkipRestart {
		r.logger.Warnf("[%s] not restarting %s", r.id, stopped.Name())
	} else {
		r.logger.Infof("[%s] restarting %s", r.id, stopped.Name())

		if err := stopped.Start(ctx, stopped); err != nil {
			return errors.NewClusterError("[%s] failed to restart %s", r.id, stopped.Name(), err)
		}
	}

	if err := r.sleep(ctx, r.config.RestartGrace); err != nil {
		return err
	}

	target := r.result.TargetHeight

	return wait.Until(ctx, func(ctx context.Context) (bool, error) {
		h, err := r.height(ctx, stopped)
		if err != nil {
			return false, err
		}

		r.result.FinalHeight = h

		return h >= target, nil
	},
		wait.WithInterval(r.config.PollInterval),
		wait.WithDeadline(r.config.Timeout),
		wait.WithClock(r.clock),
		wait.WithLogger(r.logger),
		wait.WithDescription(fmt.Sprintf("%s block sync to height %d", stopped.Name(), target)),
	)
}

// height performs one status query and records it.
func (r *run) height(ctx context.Context, n cluster.Node) (uint64, error) {
	h, err := status.CurrentHeight(ctx, n)
	if err != nil {
		prometheusStatusQueries.WithLabelValues(n.Name(), "error").Inc()

		return 0, errors.NewQueryError("[%s] %s status query failed in state %s", r.id, n.Name(), r.sm.Current(), err)
	}

	prometheusStatusQueries.WithLabelValues(n.Name(), "ok").Inc()
	prometheusObservedHeight.WithLabelValues(n.Name()).Set(float64(h))

	if last, ok := r.lastHeights[n.Index()]; ok && h < last {
		prometheusHeightRegressions.WithLabelValues(n.Name()).Inc()
		r.logger.Warnf("[%s] %s height went backwards from %d to %d", r.id, n.Name(), last, h)
	}

	r.lastHeights[n.Index()] = h
	r.logger.Debugf("[%s] %s at height %d", r.id, n.Name(), h)

	return h, nil
}

func (r *run) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return errors.FromContext(ctx)
	case <-r.clock.After(d):
		return nil
	}
}

func (r *run) enterState(src, dst string) {
	now := r.clock.Now()
	elapsed := now.Sub(r.phaseStart)

	r.result.Phases[src] = elapsed
	r.result.State = dst
	r.phaseStart = now

	prometheusScenarioPhaseDuration.WithLabelValues(src).Observe(elapsed.Seconds())
	prometheusScenarioState.Set(float64(stateIndex(dst)))

	r.logger.Infof("[%s] %s -> %s after %s", r.id, src, dst, elapsed)
}

func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	if r.sm.Can(EventFail) {
		if fsmErr := r.sm.Event(context.WithoutCancel(ctx), EventFail); fsmErr != nil {
			r.logger.Warnf("[%s] failed to enter %s: %v", r.id, StateFailed, fsmErr)
		}
	}

	r.result.State = StateFailed
	prometheusScenarioRuns.WithLabelValues(StateFailed).Inc()

	r.logger.Errorf("[%s] scenario failed: %v", r.id, err)

	return r.result, err
}
