// Package compose runs the cluster as services of a docker compose stack. Node i is the
// service <prefix><i>. The stack reads the per-node payloads written by the builder
// from the directory exported as HARNESS_DATA_DIR.
package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bsv-blockchain/gcsync/chain"
	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/retry"
	"github.com/bsv-blockchain/gcsync/util/wait"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DataDirEnv = "HARNESS_DATA_DIR"

	configPatchFile      = "config.patch.json"
	genesisOverridesFile = "genesis_overrides.json"
	bootNodesFile        = "boot_nodes"

	healthInterval = time.Second
)

type Builder struct {
	logger       ulogger.Logger
	settings     settings.ComposeSettings
	httpTimeout  time.Duration
	newStack     StackFactory
	retryOpts    []retry.Options
	skipTeardown bool
}

type Option func(*Builder)

// WithStackFactory replaces the docker compose stack, used by tests.
func WithStackFactory(f StackFactory) Option {
	return func(b *Builder) {
		b.newStack = f
	}
}

// WithRetryOptions sets the retry behaviour of service lookups.
func WithRetryOptions(opts ...retry.Options) Option {
	return func(b *Builder) {
		b.retryOpts = opts
	}
}

// WithSkipTeardown leaves the stack running when the cluster is stopped, so the
// containers can be inspected after a run.
func WithSkipTeardown(skip bool) Option {
	return func(b *Builder) {
		b.skipTeardown = skip
	}
}

func NewBuilder(logger ulogger.Logger, tSettings *settings.Settings, opts ...Option) *Builder {
	b := &Builder{
		logger:      logger.New("compose"),
		settings:    tSettings.Compose,
		httpTimeout: tSettings.HTTPTimeout,
		newStack:    NewDockerStack,
		retryOpts: []retry.Options{
			retry.WithRetryCount(5),
			retry.WithBackoffDurationType(500 * time.Millisecond),
			retry.WithExponentialBackoff(),
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Start writes the node payloads, brings the stack up and waits until every node
// answers status.
func (b *Builder) Start(ctx context.Context, topology *cluster.Topology) (cluster.Cluster, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}

	id := "gcsync-" + uuid.NewString()

	dataDir, err := filepath.Abs(filepath.Join(b.settings.DataDir, id))
	if err != nil {
		return nil, errors.NewClusterError("[compose] invalid data dir %s", b.settings.DataDir, err)
	}

	if err = writePayloads(dataDir, topology); err != nil {
		return nil, err
	}

	stack, err := b.newStack(b.settings.Files, id, map[string]string{DataDirEnv: dataDir})
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		logger:       b.logger,
		settings:     b.settings,
		httpTimeout:  b.httpTimeout,
		skipTeardown: b.skipTeardown,
		stack:        stack,
		id:           id,
		dataDir:      dataDir,
		nodes:        make([]*Node, topology.NumNodes()),
	}

	for i := range c.nodes {
		c.nodes[i] = &Node{
			cluster: c,
			index:   i,
			name:    cluster.NodeName(i),
			service: fmt.Sprintf("%s%d", b.settings.ServicePrefix, i),
		}
	}

	b.logger.Infof("[compose] bringing up stack %s from %v", id, b.settings.Files)

	if err = stack.Up(ctx); err != nil {
		return nil, c.abort(ctx, errors.NewClusterError("[compose] failed to bring up stack %s", id, err))
	}

	if err = c.waitHealthy(ctx, b.retryOpts); err != nil {
		return nil, c.abort(ctx, err)
	}

	return c, nil
}

// writePayloads writes the genesis overrides and each node's config patch under dataDir.
func writePayloads(dataDir string, topology *cluster.Topology) error {
	overrides := topology.GenesisOverrides
	if overrides == nil {
		overrides = []chain.Override{}
	}

	for i := 0; i < topology.NumNodes(); i++ {
		dir := filepath.Join(dataDir, cluster.NodeName(i))

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewClusterError("[compose] failed to create %s", dir, err)
		}

		if err := writeJSON(filepath.Join(dir, configPatchFile), topology.NodeConfig(i)); err != nil {
			return err
		}

		if err := writeJSON(filepath.Join(dir, genesisOverridesFile), overrides); err != nil {
			return err
		}
	}

	return nil
}

func writeJSON(path string, v any) error {
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewClusterError("[compose] failed to encode %s", path, err)
	}

	if err = os.WriteFile(path, doc, 0o644); err != nil {
		return errors.NewClusterError("[compose] failed to write %s", path, err)
	}

	return nil
}

type Cluster struct {
	logger       ulogger.Logger
	settings     settings.ComposeSettings
	httpTimeout  time.Duration
	skipTeardown bool
	stack        Stack
	id           string
	dataDir      string
	nodes        []*Node

	mu      sync.Mutex
	stopped bool
}

// ID is the compose stack identifier.
func (c *Cluster) ID() string {
	return c.id
}

// DataDir is the directory exported to the stack.
func (c *Cluster) DataDir() string {
	return c.dataDir
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

// Stop brings the stack down, unless teardown is skipped.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	c.stopped = true

	if c.skipTeardown {
		c.logger.Warnf("[compose] leaving stack %s running, data in %s", c.id, c.dataDir)
		return nil
	}

	if err := c.stack.Down(ctx); err != nil {
		return errors.NewClusterError("[compose] failed to bring down stack %s", c.id, err)
	}

	c.logger.Infof("[compose] stack %s is down", c.id)

	return nil
}

func (c *Cluster) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// waitHealthy resolves every service, retrying while the containers come up, then
// waits for every node to answer status within StartupTimeout.
func (c *Cluster) waitHealthy(ctx context.Context, retryOpts []retry.Options) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, n := range c.nodes {
		g.Go(func() error {
			_, err := retry.Retry(gCtx, c.logger, func() (string, error) {
				return n.endpoint(gCtx)
			}, append([]retry.Options{retry.WithMessage(fmt.Sprintf("[compose] resolving %s", n.service))}, retryOpts...)...)
			if err != nil {
				return errors.NewClusterError("[compose] service %s has no %s endpoint", n.service, c.settings.RPCPort, err)
			}

			return wait.Until(gCtx, func(ctx context.Context) (bool, error) {
				if _, err := status.CurrentHeight(ctx, n); err != nil {
					c.logger.Debugf("[compose] %s not ready: %v", n.name, err)
					return false, nil
				}

				return true, nil
			},
				wait.WithInterval(healthInterval),
				wait.WithDeadline(c.settings.StartupTimeout),
				wait.WithLogger(c.logger),
				wait.WithDescription(fmt.Sprintf("%s startup", n.name)),
			)
		})
	}

	return g.Wait()
}

func (c *Cluster) abort(ctx context.Context, err error) error {
	if stopErr := c.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		c.logger.Errorf("[compose] failed to stop after startup error: %v", stopErr)
	}

	return err
}

type Node struct {
	cluster *Cluster
	index   int
	name    string
	service string
}

func (n *Node) Index() int {
	return n.index
}

func (n *Node) Name() string {
	return n.name
}

// Service is the compose service running the node.
func (n *Node) Service() string {
	return n.service
}

func (n *Node) Kill(ctx context.Context) error {
	if n.cluster.isStopped() {
		return errors.NewClusterError("[compose] cannot kill %s, cluster is stopped", n.name)
	}

	if err := n.cluster.stack.StopService(ctx, n.service); err != nil {
		return errors.NewClusterError("[compose] failed to stop %s", n.service, err)
	}

	n.cluster.logger.Infof("[compose] stopped %s", n.service)

	return nil
}

// Start starts the node's container again. The boot node is written to the node's
// boot_nodes file, empty when the node boots from its own state.
func (n *Node) Start(ctx context.Context, boot cluster.Node) error {
	bootNode, ok := boot.(*Node)
	if !ok || bootNode == nil || bootNode.cluster != n.cluster {
		return errors.NewInvalidArgumentError("[compose] boot node for %s is not part of the cluster", n.name)
	}

	if n.cluster.isStopped() {
		return errors.NewClusterError("[compose] cannot start %s, cluster is stopped", n.name)
	}

	bootNodes := ""
	if bootNode != n {
		bootNodes = bootNode.service
	}

	path := filepath.Join(n.cluster.dataDir, n.name, bootNodesFile)
	if err := os.WriteFile(path, []byte(bootNodes), 0o644); err != nil {
		return errors.NewClusterError("[compose] failed to write %s", path, err)
	}

	if err := n.cluster.stack.StartService(ctx, n.service); err != nil {
		return errors.NewClusterError("[compose] failed to start %s", n.service, err)
	}

	n.cluster.logger.Infof("[compose] started %s with boot node %s", n.service, bootNode.name)

	return nil
}

// GetStatus resolves the mapped RPC port on every call, it changes when the
// container is restarted.
func (n *Node) GetStatus(ctx context.Context) (*status.StatusResponse, error) {
	endpoint, err := n.endpoint(ctx)
	if err != nil {
		return nil, errors.NewQueryError("[compose] %s unreachable", n.name, err)
	}

	return status.NewClient("http://"+endpoint, status.WithTimeout(n.cluster.httpTimeout)).GetStatus(ctx)
}

func (n *Node) endpoint(ctx context.Context) (string, error) {
	return n.cluster.stack.Endpoint(ctx, n.service, nat.Port(n.cluster.settings.RPCPort))
}
