package scenario

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/cluster/memory"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/test/mocklogger"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookBuilder builds a memory cluster and hands it to hook before the scenario uses it.
type hookBuilder struct {
	*memory.Builder
	hook func(c *memory.Cluster)

	mu    sync.Mutex
	built *memory.Cluster
}

func (b *hookBuilder) Start(ctx context.Context, topology *cluster.Topology) (cluster.Cluster, error) {
	c, err := b.Build(ctx, topology)
	if err != nil {
		return nil, err
	}

	if b.hook != nil {
		b.hook(c)
	}

	b.mu.Lock()
	b.built = c
	b.mu.Unlock()

	return c, nil
}

func (b *hookBuilder) cluster() *memory.Cluster {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.built
}

type failingBuilder struct {
	err   error
	calls int
}

func (b *failingBuilder) Start(context.Context, *cluster.Topology) (cluster.Cluster, error) {
	b.calls++
	return nil, b.err
}

// runOnFakeClock runs the scenario in a goroutine and advances the clock one second
// at a time whenever the scenario is asleep, until Run returns.
func runOnFakeClock(t *testing.T, clock *clockwork.FakeClock, o *Orchestrator, ctx context.Context) (*Result, error) {
	t.Helper()

	type outcome struct {
		result *Result
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := o.Run(ctx, DefaultTopology())
		done <- outcome{result, err}
	}()

	deadline := time.After(30 * time.Second)

	for {
		select {
		case out := <-done:
			return out.result, out.err
		case <-deadline:
			t.Fatal("scenario did not finish")
		default:
		}

		blockCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		if clock.BlockUntilContext(blockCtx, 1) == nil {
			clock.Advance(time.Second)
		}

		cancel()
	}
}

func newScenario(t *testing.T, config Config, hook func(c *memory.Cluster), opts ...memory.Option) (*Orchestrator, *hookBuilder, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()

	builder := &hookBuilder{
		Builder: memory.NewBuilder(append([]memory.Option{memory.WithClock(clock), memory.WithSyncDelay(5 * time.Second)}, opts...)...),
		hook:    hook,
	}

	return New(ulogger.NewVerboseTestLogger(t), builder, config, WithClock(clock)), builder, clock
}

func TestScenarioVerified(t *testing.T) {
	o, builder, clock := newScenario(t, DefaultConfig(), nil)
	start := clock.Now()
	verifiedBefore := testutil.ToFloat64(prometheusScenarioRuns.WithLabelValues(StateVerified))

	result, err := runOnFakeClock(t, clock, o, context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateVerified, result.State)
	assert.NotEmpty(t, result.RunID)

	// node0 polled at 0s, 2s, 4s and 6s
	assert.Equal(t, uint64(60), result.TargetHeight)
	assert.GreaterOrEqual(t, result.FinalHeight, result.TargetHeight)

	// grace until 9s, node1 still syncing, caught up at 11s
	assert.Equal(t, 6*time.Second, result.Phases[StateDegraded])
	assert.Equal(t, 5*time.Second, result.Phases[StateRecovering])
	assert.Equal(t, 11*time.Second, clock.Since(start))

	assert.True(t, builder.cluster().Stopped())
	assert.Equal(t, verifiedBefore+1, testutil.ToFloat64(prometheusScenarioRuns.WithLabelValues(StateVerified)))
}

func TestScenarioWithoutRestartTimesOut(t *testing.T) {
	config := DefaultConfig()
	config.SkipRestart = true

	o, builder, clock := newScenario(t, config, nil, memory.WithStatusWhileKilled())
	start := clock.Now()

	result, err := runOnFakeClock(t, clock, o, context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsTimeoutError(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, err.Error(), "node1 block sync to height 60 timed out after 30s")

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, uint64(0), result.FinalHeight)

	// not immediately and not never: 6s degraded, 3s grace, 30s catch-up
	assert.Equal(t, 33*time.Second, result.Phases[StateRecovering])
	assert.Equal(t, 39*time.Second, clock.Since(start))

	assert.True(t, builder.cluster().Stopped())
}

func TestScenarioUnreachableNodeAborts(t *testing.T) {
	config := DefaultConfig()
	config.SkipRestart = true

	o, builder, clock := newScenario(t, config, nil)
	start := clock.Now()

	result, err := runOnFakeClock(t, clock, o, context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsQueryError(err))
	assert.False(t, errors.IsTimeoutError(err))
	assert.Contains(t, err.Error(), "node1 status query failed in state Recovering")
	assert.Equal(t, StateFailed, result.State)

	// the first poll after the grace period fails
	assert.Equal(t, 9*time.Second, clock.Since(start))
	assert.True(t, builder.cluster().Stopped())
}

func TestScenarioQueryErrorWhileDegraded(t *testing.T) {
	o, builder, clock := newScenario(t, DefaultConfig(), func(c *memory.Cluster) {
		n, err := c.MemoryNode(0)
		require.NoError(t, err)

		n.SetMalformed(true)
	})

	result, err := runOnFakeClock(t, clock, o, context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsQueryError(err))
	assert.Contains(t, err.Error(), "node0 status query failed in state Degraded")
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, time.Duration(0), result.Phases[StateDegraded])
	assert.True(t, builder.cluster().Stopped())
}

func TestScenarioBuildErrorPropagates(t *testing.T) {
	buildErr := errors.NewClusterError("localnet init failed")
	builder := &failingBuilder{err: buildErr}

	result, err := New(ulogger.TestLogger{}, builder, DefaultConfig()).Run(context.Background(), DefaultTopology())
	require.Error(t, err)

	assert.Same(t, buildErr, err)
	assert.Equal(t, 1, builder.calls)
	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Phases, StateBuilding)
}

func TestScenarioInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.StoppedNode = config.LiveNode

	builder := &failingBuilder{}

	_, err := New(ulogger.TestLogger{}, builder, config).Run(context.Background(), DefaultTopology())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Equal(t, 0, builder.calls)

	_, err = New(ulogger.TestLogger{}, builder, DefaultConfig()).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestScenarioNodeOutOfRange(t *testing.T) {
	config := DefaultConfig()
	config.StoppedNode = 5

	o, builder, clock := newScenario(t, config, nil)

	_, err := runOnFakeClock(t, clock, o, context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, builder.cluster().Stopped())
}

func TestScenarioCancelledWhileDegraded(t *testing.T) {
	config := DefaultConfig()
	config.TargetHeight = 1 << 40

	o, builder, clock := newScenario(t, config, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		_, err := o.Run(ctx, DefaultTopology())
		done <- err
	}()

	for i := 0; i < 5; i++ {
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
		waitCancel()

		clock.Advance(2 * time.Second)
	}

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsContextError(err))
	case <-time.After(5 * time.Second):
		t.Fatal("scenario ignored cancellation")
	}

	assert.True(t, builder.cluster().Stopped())
}

// scriptedNode answers status queries from a fixed list of heights.
type scriptedNode struct {
	index   int
	heights []uint64
	started bool
}

func (n *scriptedNode) Index() int                 { return n.index }
func (n *scriptedNode) Name() string               { return cluster.NodeName(n.index) }
func (n *scriptedNode) Kill(context.Context) error { return nil }

func (n *scriptedNode) Start(context.Context, cluster.Node) error {
	n.started = true
	return nil
}

func (n *scriptedNode) GetStatus(context.Context) (*status.StatusResponse, error) {
	h := n.heights[0]
	if len(n.heights) > 1 {
		n.heights = n.heights[1:]
	}

	return status.AtHeight(h), nil
}

type scriptedCluster struct {
	nodes   []cluster.Node
	stopped int
}

func (c *scriptedCluster) Nodes() []cluster.Node { return c.nodes }

func (c *scriptedCluster) Node(i int) (cluster.Node, error) { return cluster.NodeAt(c.nodes, i) }

func (c *scriptedCluster) Stop(context.Context) error {
	c.stopped++
	return errors.NewClusterError("node0 did not exit")
}

type scriptedBuilder struct {
	c *scriptedCluster
}

func (b scriptedBuilder) Start(context.Context, *cluster.Topology) (cluster.Cluster, error) {
	return b.c, nil
}

func TestScenarioCapturedTargetAndRegressions(t *testing.T) {
	live := &scriptedNode{index: 0, heights: []uint64{30, 20, 61, 90}}
	stopped := &scriptedNode{index: 1, heights: []uint64{40, 61, 62}}
	c := &scriptedCluster{nodes: []cluster.Node{live, stopped}}

	logger := mocklogger.NewTestLogger()
	clock := clockwork.NewFakeClock()

	o := New(logger, scriptedBuilder{c}, DefaultConfig(), WithClock(clock))

	result, err := runOnFakeClock(t, clock, o, context.Background())

	// the scenario passed but teardown failed
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCluster))
	assert.Equal(t, 1, c.stopped)

	assert.Equal(t, StateVerified, result.State)
	assert.True(t, stopped.started)

	// node0 may have moved on, node1 only has to reach the height captured earlier
	assert.Equal(t, uint64(61), result.TargetHeight)
	assert.Equal(t, uint64(61), result.FinalHeight)

	assert.True(t, logger.Contains("node0 height went backwards from 30 to 20"))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(c *Config){
		"zero timeout":   func(c *Config) { c.Timeout = 0 },
		"zero interval":  func(c *Config) { c.PollInterval = 0 },
		"negative grace": func(c *Config) { c.RestartGrace = -time.Second },
		"negative node":  func(c *Config) { c.LiveNode = -1 },
		"same node":      func(c *Config) { c.StoppedNode = c.LiveNode },
	} {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			assert.True(t, errors.Is(config.Validate(), errors.ErrConfiguration))
		})
	}
}

func TestDefaultTopology(t *testing.T) {
	topology := DefaultTopology()
	require.NoError(t, topology.Validate())

	assert.Equal(t, 2, topology.NumValidators)
	assert.Equal(t, 0, topology.NumObservers)
	assert.Equal(t, 1, topology.NumOverridden)
	assert.Len(t, topology.GenesisOverrides, 8)

	for i := 0; i < 2; i++ {
		timing, ok := topology.ConsensusTiming(i)
		require.True(t, ok)
		assert.Equal(t, 100*time.Millisecond, timing.MinBlockProductionDelay.Std())
		assert.Equal(t, 400*time.Millisecond, timing.MaxBlockProductionDelay.Std())
		assert.Equal(t, 400*time.Millisecond, timing.MaxBlockWaitDelay.Std())
	}
}
