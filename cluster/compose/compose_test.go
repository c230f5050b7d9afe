package compose

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/gcsync/chain"
	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/bsv-blockchain/gcsync/status"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/retry"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeStack serves status for every running service from an httptest server.
type fakeStack struct {
	mu       sync.Mutex
	files    []string
	id       string
	env      map[string]string
	servers  map[string]*httptest.Server
	running  map[string]bool
	upErr    error
	noPorts  bool
	ups      int
	downs    int
	lastPort nat.Port
}

func newFakeStack(t *testing.T, services ...string) *fakeStack {
	t.Helper()

	s := &fakeStack{
		servers: make(map[string]*httptest.Server),
		running: make(map[string]bool),
	}

	for i, service := range services {
		height := 10 * (i + 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"sync_info": {"latest_block_height": %d}}`, height)
		}))
		t.Cleanup(srv.Close)

		s.servers[service] = srv
	}

	return s
}

func (s *fakeStack) factory(files []string, identifier string, env map[string]string) (Stack, error) {
	s.files = files
	s.id = identifier
	s.env = env

	return s, nil
}

func (s *fakeStack) Up(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ups++

	if s.upErr != nil {
		return s.upErr
	}

	for service := range s.servers {
		s.running[service] = true
	}

	return nil
}

func (s *fakeStack) Down(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.downs++
	s.running = make(map[string]bool)

	return nil
}

func (s *fakeStack) StopService(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[service]; !ok {
		return errors.NewNotFoundError("no such service %s", service)
	}

	s.running[service] = false

	return nil
}

func (s *fakeStack) StartService(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[service]; !ok {
		return errors.NewNotFoundError("no such service %s", service)
	}

	s.running[service] = true

	return nil
}

func (s *fakeStack) Endpoint(_ context.Context, service string, port nat.Port) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPort = port

	if s.noPorts || !s.running[service] {
		return "", errors.NewServiceError("container %s is not running", service)
	}

	return strings.TrimPrefix(s.servers[service].URL, "http://"), nil
}

func (s *fakeStack) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ups, s.downs
}

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()

	return &settings.Settings{
		HTTPTimeout: time.Second,
		Compose: settings.ComposeSettings{
			Files:          []string{"docker-compose.gcsync.yml"},
			ServicePrefix:  "node",
			RPCPort:        "3030/tcp",
			DataDir:        t.TempDir(),
			StartupTimeout: 5 * time.Second,
		},
	}
}

func fastRetry() Option {
	return WithRetryOptions(retry.WithRetryCount(2), retry.WithBackoffDurationType(time.Millisecond))
}

func testTopology() *cluster.Topology {
	fast := chain.FastConsensus()

	return &cluster.Topology{
		NumValidators:    2,
		NumOverridden:    1,
		GenesisOverrides: []chain.Override{chain.NewOverride(10, "epoch_length")},
		NodeConfigs:      map[int]chain.NodeConfig{0: {Consensus: &fast}},
	}
}

func TestComposeCluster(t *testing.T) {
	ctx := context.Background()
	stack := newFakeStack(t, "node0", "node1")

	built, err := NewBuilder(ulogger.TestLogger{}, testSettings(t), WithStackFactory(stack.factory), fastRetry()).
		Start(ctx, testTopology())
	require.NoError(t, err)

	c := built.(*Cluster)

	assert.Equal(t, []string{"docker-compose.gcsync.yml"}, stack.files)
	assert.Equal(t, c.ID(), stack.id)
	assert.Equal(t, c.DataDir(), stack.env[DataDirEnv])
	assert.Equal(t, nat.Port("3030/tcp"), stack.lastPort)

	t.Run("payloads", func(t *testing.T) {
		patch, err := os.ReadFile(filepath.Join(c.DataDir(), "node0", configPatchFile))
		require.NoError(t, err)
		assert.Equal(t, int64(400000000), gjson.GetBytes(patch, "consensus.max_block_wait_delay.nanos").Int())

		patch, err = os.ReadFile(filepath.Join(c.DataDir(), "node1", configPatchFile))
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(patch))

		overrides, err := os.ReadFile(filepath.Join(c.DataDir(), "node1", genesisOverridesFile))
		require.NoError(t, err)
		assert.JSONEq(t, `[{"path": ["epoch_length"], "value": 10}]`, string(overrides))
	})

	a, err := c.Node(0)
	require.NoError(t, err)

	b, err := c.Node(1)
	require.NoError(t, err)

	t.Run("status", func(t *testing.T) {
		h, err := status.CurrentHeight(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), h)

		h, err = status.CurrentHeight(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), h)
	})

	t.Run("kill and restart", func(t *testing.T) {
		require.NoError(t, b.Kill(ctx))

		_, err := status.CurrentHeight(ctx, b)
		require.Error(t, err)
		assert.True(t, errors.IsQueryError(err))
		assert.Contains(t, err.Error(), "node1 unreachable")

		require.NoError(t, b.Start(ctx, b))

		bootNodes, err := os.ReadFile(filepath.Join(c.DataDir(), "node1", bootNodesFile))
		require.NoError(t, err)
		assert.Empty(t, string(bootNodes))

		require.NoError(t, b.Start(ctx, a))

		bootNodes, err = os.ReadFile(filepath.Join(c.DataDir(), "node1", bootNodesFile))
		require.NoError(t, err)
		assert.Equal(t, "node0", string(bootNodes))

		_, err = status.CurrentHeight(ctx, b)
		require.NoError(t, err)
	})

	t.Run("foreign boot node", func(t *testing.T) {
		err := b.Start(ctx, &Node{name: "node0"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	})

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))

	_, downs := stack.counts()
	assert.Equal(t, 1, downs)

	err = a.Kill(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCluster))
}

func TestSkipTeardownLeavesStackRunning(t *testing.T) {
	ctx := context.Background()
	stack := newFakeStack(t, "node0", "node1")

	built, err := NewBuilder(ulogger.TestLogger{}, testSettings(t), WithStackFactory(stack.factory), fastRetry(), WithSkipTeardown(true)).
		Start(ctx, testTopology())
	require.NoError(t, err)

	require.NoError(t, built.Stop(ctx))

	_, downs := stack.counts()
	assert.Equal(t, 0, downs)

	n, err := built.Node(0)
	require.NoError(t, err)

	err = n.Kill(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCluster))
}

func TestUpFailureTearsDown(t *testing.T) {
	stack := newFakeStack(t, "node0", "node1")
	stack.upErr = errors.NewServiceError("pull access denied")

	_, err := NewBuilder(ulogger.TestLogger{}, testSettings(t), WithStackFactory(stack.factory), fastRetry()).
		Start(context.Background(), testTopology())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCluster))
	assert.Contains(t, err.Error(), "pull access denied")

	ups, downs := stack.counts()
	assert.Equal(t, 1, ups)
	assert.Equal(t, 1, downs)
}

func TestUnresolvableService(t *testing.T) {
	stack := newFakeStack(t, "node0", "node1")
	stack.noPorts = true

	_, err := NewBuilder(ulogger.TestLogger{}, testSettings(t), WithStackFactory(stack.factory), fastRetry()).
		Start(context.Background(), testTopology())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCluster))
	assert.Contains(t, err.Error(), "has no 3030/tcp endpoint")

	_, downs := stack.counts()
	assert.Equal(t, 1, downs)
}

func TestStackFactoryError(t *testing.T) {
	factoryErr := errors.NewClusterError("docker is not running")

	_, err := NewBuilder(ulogger.TestLogger{}, testSettings(t), WithStackFactory(func([]string, string, map[string]string) (Stack, error) {
		return nil, factoryErr
	})).Start(context.Background(), testTopology())

	require.Error(t, err)
	assert.Same(t, factoryErr, err)
}

func TestInvalidTopology(t *testing.T) {
	_, err := NewBuilder(ulogger.TestLogger{}, testSettings(t)).Start(context.Background(), &cluster.Topology{NumValidators: 1, NumObservers: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}
