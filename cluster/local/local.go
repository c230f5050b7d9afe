// Package local runs a cluster of node binaries as child processes of the harness.
//
// The binary initialises all node homes in one localnet call. Each node's genesis and
// config are then patched from the topology before the node is started with
// `<binary> --home <dir> run`.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/wait"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const healthInterval = 500 * time.Millisecond

type Builder struct {
	logger      ulogger.Logger
	settings    settings.LocalSettings
	httpTimeout time.Duration
}

func NewBuilder(logger ulogger.Logger, tSettings *settings.Settings) *Builder {
	return &Builder{
		logger:      logger.New("local"),
		settings:    tSettings.Local,
		httpTimeout: tSettings.HTTPTimeout,
	}
}

// Start initialises a fresh localnet under a new directory of HomeBase, starts every
// node and waits for all of them to answer status. Node 0 starts without boot nodes,
// every other node boots from node 0.
func (b *Builder) Start(ctx context.Context, topology *cluster.Topology) (cluster.Cluster, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}

	runDir, err := filepath.Abs(filepath.Join(b.settings.HomeBase, uuid.NewString()))
	if err != nil {
		return nil, errors.NewClusterError("[local] invalid home base %s", b.settings.HomeBase, err)
	}

	if err = os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.NewClusterError("[local] failed to create %s", runDir, err)
	}

	if err = b.initLocalnet(ctx, runDir, topology); err != nil {
		return nil, err
	}

	c := &Cluster{
		logger:      b.logger,
		settings:    b.settings,
		httpTimeout: b.httpTimeout,
		runDir:      runDir,
		nodes:       make([]*Node, topology.NumNodes()),
	}

	for i := range c.nodes {
		if c.nodes[i], err = c.prepareNode(i, topology); err != nil {
			return nil, err
		}
	}

	for _, n := range c.nodes {
		if err = n.Start(ctx, c.nodes[0]); err != nil {
			return nil, c.abort(ctx, err)
		}
	}

	if err = c.waitHealthy(ctx); err != nil {
		return nil, c.abort(ctx, err)
	}

	b.logger.Infof("[local] %d nodes running in %s", len(c.nodes), runDir)

	return c, nil
}

func (b *Builder) initLocalnet(ctx context.Context, runDir string, topology *cluster.Topology) error {
	args := []string{
		"--home", runDir,
		"localnet",
		"--v", strconv.Itoa(topology.NumValidators),
		"--n", strconv.Itoa(topology.NumObservers),
		"--prefix", "node",
	}

	b.logger.Infof("[local] %s %v", b.settings.NodeBinary, args)

	out, err := exec.CommandContext(ctx, b.settings.NodeBinary, args...).CombinedOutput()
	if err != nil {
		return errors.NewClusterError("[local] localnet init failed: %s", string(out), err)
	}

	return nil
}

type Cluster struct {
	logger      ulogger.Logger
	settings    settings.LocalSettings
	httpTimeout time.Duration
	runDir      string
	nodes       []*Node

	mu      sync.Mutex
	stopped bool
}

func (c *Cluster) prepareNode(i int, topology *cluster.Topology) (*Node, error) {
	dir := filepath.Join(c.runDir, cluster.NodeName(i))
	rpcPort := c.settings.RPCBasePort + i
	networkPort := c.settings.NetworkBasePort + i

	// every node needs the same genesis
	if err := patchGenesis(dir, topology.GenesisOverrides); err != nil {
		return nil, err
	}

	if err := patchConfig(dir, rpcPort, networkPort, topology.NodeConfig(i)); err != nil {
		return nil, err
	}

	key, err := readNodeKey(dir)
	if err != nil {
		return nil, err
	}

	return &Node{
		cluster:     c,
		index:       i,
		name:        cluster.NodeName(i),
		dir:         dir,
		networkPort: networkPort,
		key:         key,
		client:      status.NewClient(fmt.Sprintf("http://127.0.0.1:%d", rpcPort), status.WithTimeout(c.httpTimeout)),
	}, nil
}

// RunDir is the directory holding the homes and logs of all nodes.
func (c *Cluster) RunDir() string {
	return c.runDir
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

// Stop kills every running node. Node homes are kept for inspection.
func (c *Cluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}

	c.stopped = true
	c.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)

	for _, n := range c.nodes {
		g.Go(func() error {
			return n.Kill(gCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Infof("[local] stopped, node homes kept in %s", c.runDir)

	return nil
}

func (c *Cluster) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// waitHealthy waits for every node to answer status within StartupTimeout. A node
// that does not answer yet is not an error. A node whose process exited is, and so is
// one answering for another chain than ChainID, which means something else owns the port.
func (c *Cluster) waitHealthy(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, n := range c.nodes {
		g.Go(func() error {
			return wait.Until(gCtx, func(ctx context.Context) (bool, error) {
				if exited, exitErr := n.exited(); exited {
					return false, errors.NewClusterError("[local] %s exited during startup, see %s", n.name, filepath.Join(n.dir, logFile), exitErr)
				}

				resp, err := n.GetStatus(ctx)
				if err != nil {
					c.logger.Debugf("[local] %s not ready: %v", n.name, err)
					return false, nil
				}

				if c.settings.ChainID != "" && resp.ChainID != "" && resp.ChainID != c.settings.ChainID {
					return false, errors.NewClusterError("[local] %s answers for chain %s, expected %s", n.name, resp.ChainID, c.settings.ChainID)
				}

				if _, err = status.CurrentHeight(ctx, status.QuerierFunc(func(context.Context) (*status.StatusResponse, error) {
					return resp, nil
				})); err != nil {
					c.logger.Debugf("[local] %s not ready: %v", n.name, err)
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

// abort stops whatever was started and returns err.
func (c *Cluster) abort(ctx context.Context, err error) error {
	if stopErr := c.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		c.logger.Errorf("[local] failed to stop after startup error: %v", stopErr)
	}

	return err
}
