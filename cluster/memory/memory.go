// Package memory is an in-process cluster whose chain advances deterministically with
// an injected clock. It needs no node binaries and is used to test the scenario and
// to exercise failure modes that are hard to provoke on real nodes.
//
// Heights are computed lazily: nothing runs in the background, every operation first
// brings the chain up to the clock's current time.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/jonboulle/clockwork"
)

// DefaultBlockInterval is used for nodes without consensus timing.
const DefaultBlockInterval = 600 * time.Millisecond

type options struct {
	clock     clockwork.Clock
	syncDelay time.Duration
	logger    ulogger.Logger
	chainID   string
	// statusWhileKilled keeps killed nodes answering status with their frozen height
	statusWhileKilled bool
}

type Option func(*options)

// WithClock sets the clock the chain advances with.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithSyncDelay sets how long a (re)started node reports its old height before it
// follows the tip.
func WithSyncDelay(d time.Duration) Option {
	return func(o *options) {
		o.syncDelay = d
	}
}

// WithStatusWhileKilled keeps a killed node reachable: it answers status queries with
// the height it had when it was killed. Without it a killed node is unreachable.
func WithStatusWhileKilled() Option {
	return func(o *options) {
		o.statusWhileKilled = true
	}
}

func WithLogger(logger ulogger.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithSettings(tSettings *settings.Settings) Option {
	return func(o *options) {
		o.syncDelay = tSettings.Memory.SyncDelay
	}
}

type Builder struct {
	opts options
}

func NewBuilder(opts ...Option) *Builder {
	o := options{
		clock:     clockwork.NewRealClock(),
		syncDelay: 5 * time.Second,
		logger:    ulogger.TestLogger{},
		chainID:   "memorynet",
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Builder{opts: o}
}

func (b *Builder) Start(ctx context.Context, topology *cluster.Topology) (cluster.Cluster, error) {
	return b.Build(ctx, topology)
}

// Build is Start returning the concrete cluster, for access to the fault hooks.
func (b *Builder) Build(ctx context.Context, topology *cluster.Topology) (*Cluster, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}

	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}

	now := b.opts.clock.Now()

	c := &Cluster{
		opts:      b.opts,
		logger:    b.opts.logger.New("memory"),
		cursor:    now,
		lastBlock: now,
	}

	c.nodes = make([]*Node, topology.NumNodes())

	for i := range c.nodes {
		interval := DefaultBlockInterval
		if timing, ok := topology.ConsensusTiming(i); ok && timing.MinBlockProductionDelay.Std() > 0 {
			interval = timing.MinBlockProductionDelay.Std()
		}

		c.nodes[i] = &Node{
			cluster:       c,
			index:         i,
			name:          cluster.NodeName(i),
			validator:     topology.IsValidator(i),
			blockInterval: interval,
			running:       true,
			syncedAt:      now,
		}
	}

	c.logger.Infof("[memory] started %d validators and %d observers", topology.NumValidators, topology.NumObservers)

	return c, nil
}

// Cluster is a simulated network. All state is guarded by mu.
type Cluster struct {
	mu     sync.Mutex
	opts   options
	logger ulogger.Logger
	nodes  []*Node

	tip uint64
	// cursor is the time the chain has been computed up to
	cursor time.Time
	// lastBlock is the time the tip last advanced, or the time production stalled
	lastBlock time.Time
	stopped   bool
}

func (c *Cluster) Nodes() []cluster.Node {
	nodes := make([]cluster.Node, len(c.nodes))
	for i, n := range c.nodes {
		nodes[i] = n
	}

	return nodes
}

func (c *Cluster) Node(index int) (cluster.Node, error) {
	return cluster.NodeAt(c.Nodes(), index)
}

// MemoryNode returns the concrete node for access to its fault hooks.
func (c *Cluster) MemoryNode(index int) (*Node, error) {
	if index < 0 || index >= len(c.nodes) {
		return nil, errors.NewNotFoundError("node %d not in cluster of %d nodes", index, len(c.nodes))
	}

	return c.nodes[index], nil
}

func (c *Cluster) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	c.advanceLocked(c.opts.clock.Now())

	for _, n := range c.nodes {
		n.freezeLocked(c.cursor)
		n.running = false
	}

	c.stopped = true
	c.logger.Infof("[memory] stopped at tip %d", c.tip)

	return nil
}

// Stopped reports whether Stop has been called.
func (c *Cluster) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// Tip returns the height of the best chain at the current time.
func (c *Cluster) Tip() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceLocked(c.opts.clock.Now())

	return c.tip
}

// advanceLocked brings the tip up to now. The set of producing validators only changes
// when a restarted node finishes syncing or on an explicit operation, so the interval
// is split at every sync point that falls inside it.
func (c *Cluster) advanceLocked(now time.Time) {
	if !now.After(c.cursor) {
		return
	}

	for {
		next := now

		for _, n := range c.nodes {
			if n.running && n.syncedAt.After(c.cursor) && n.syncedAt.Before(next) {
				next = n.syncedAt
			}
		}

		c.advanceSegmentLocked(next)

		if !next.Before(now) {
			return
		}
	}
}

func (c *Cluster) advanceSegmentLocked(to time.Time) {
	interval := c.blockIntervalLocked(c.cursor)

	if interval == 0 {
		c.lastBlock = to
	} else if elapsed := to.Sub(c.lastBlock); elapsed >= interval {
		blocks := elapsed / interval
		c.tip += uint64(blocks)
		c.lastBlock = c.lastBlock.Add(blocks * interval)
	}

	c.cursor = to
}

// blockIntervalLocked is the fastest production interval among validators producing
// at t, zero when none is.
func (c *Cluster) blockIntervalLocked(t time.Time) time.Duration {
	var interval time.Duration

	for _, n := range c.nodes {
		if !n.producingAt(t) {
			continue
		}

		if interval == 0 || n.blockInterval < interval {
			interval = n.blockInterval
		}
	}

	return interval
}

// Node is one simulated node.
type Node struct {
	cluster       *Cluster
	index         int
	name          string
	validator     bool
	blockInterval time.Duration

	running bool
	paused  bool
	// height is the frozen height while the node is stopped, paused or syncing
	height   uint64
	syncedAt time.Time
	// lastReported keeps observations monotonic
	lastReported uint64

	failErr   error
	malformed bool
	queries   int
}

func (n *Node) Index() int {
	return n.index
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) producingAt(t time.Time) bool {
	return n.validator && n.running && !n.paused && !n.syncedAt.After(t)
}

func (n *Node) heightAt(t time.Time) uint64 {
	if !n.running || n.paused || n.syncedAt.After(t) {
		return n.height
	}

	return n.cluster.tip
}

func (n *Node) freezeLocked(t time.Time) {
	n.height = n.heightAt(t)
}

func (n *Node) Kill(_ context.Context) error {
	c := n.cluster

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errors.NewClusterError("[memory] cannot kill %s, cluster is stopped", n.name)
	}

	c.advanceLocked(c.opts.clock.Now())

	if !n.running {
		return nil
	}

	n.freezeLocked(c.cursor)
	n.running = false
	n.paused = false

	c.logger.Infof("[memory] killed %s at height %d", n.name, n.height)

	return nil
}

func (n *Node) Start(_ context.Context, boot cluster.Node) error {
	c := n.cluster

	bootNode, ok := boot.(*Node)
	if !ok || bootNode == nil || bootNode.cluster != c {
		return errors.NewInvalidArgumentError("[memory] boot node for %s is not part of the cluster", n.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errors.NewClusterError("[memory] cannot start %s, cluster is stopped", n.name)
	}

	if n.running {
		return errors.NewClusterError("[memory] %s is already running", n.name)
	}

	if bootNode != n && !bootNode.running {
		return errors.NewClusterError("[memory] boot node %s of %s is not running", bootNode.name, n.name)
	}

	now := c.opts.clock.Now()
	c.advanceLocked(now)

	n.running = true
	n.syncedAt = now.Add(c.opts.syncDelay)

	c.logger.Infof("[memory] started %s from height %d with boot node %s", n.name, n.height, bootNode.name)

	return nil
}

func (n *Node) GetStatus(_ context.Context) (*status.StatusResponse, error) {
	c := n.cluster

	c.mu.Lock()
	defer c.mu.Unlock()

	n.queries++

	if c.stopped || (!n.running && !c.opts.statusWhileKilled) {
		return nil, errors.NewQueryError("[memory] %s unreachable: connection refused", n.name)
	}

	if n.failErr != nil {
		return nil, errors.NewQueryError("[memory] %s status failed", n.name, n.failErr)
	}

	if n.malformed {
		return &status.StatusResponse{ChainID: c.opts.chainID}, nil
	}

	now := c.opts.clock.Now()
	c.advanceLocked(now)

	h := n.heightAt(now)
	if h < n.lastReported {
		h = n.lastReported
	}

	n.lastReported = h

	resp := status.AtHeight(h)
	resp.ChainID = c.opts.chainID
	resp.SyncInfo.Syncing = n.syncedAt.After(now)

	return resp, nil
}

// Pause freezes the node's height while keeping it reachable.
func (n *Node) Pause() {
	c := n.cluster

	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceLocked(c.opts.clock.Now())
	n.freezeLocked(c.cursor)
	n.paused = true
}

// Resume undoes Pause. The node catches up after the sync delay.
func (n *Node) Resume() {
	c := n.cluster

	c.mu.Lock()
	defer c.mu.Unlock()

	if !n.paused {
		return
	}

	now := c.opts.clock.Now()
	c.advanceLocked(now)

	n.paused = false
	n.syncedAt = now.Add(c.opts.syncDelay)
}

// FailStatus makes every status query fail with err until called with nil.
func (n *Node) FailStatus(err error) {
	n.cluster.mu.Lock()
	defer n.cluster.mu.Unlock()

	n.failErr = err
}

// SetMalformed makes status responses omit sync_info.
func (n *Node) SetMalformed(malformed bool) {
	n.cluster.mu.Lock()
	defer n.cluster.mu.Unlock()

	n.malformed = malformed
}

func (n *Node) Running() bool {
	n.cluster.mu.Lock()
	defer n.cluster.mu.Unlock()

	return n.running
}

// Queries returns the number of status queries the node received.
func (n *Node) Queries() int {
	n.cluster.mu.Lock()
	defer n.cluster.mu.Unlock()

	return n.queries
}
