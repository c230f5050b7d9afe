package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/bsv-blockchain/gcsync/cluster"
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/status"
)

type Node struct {
	cluster     *Cluster
	index       int
	name        string
	dir         string
	networkPort int
	key         nodeKey
	client      *status.Client

	mu   sync.Mutex
	proc *process
}

// process is one run of the node binary.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (n *Node) Index() int {
	return n.index
}

func (n *Node) Name() string {
	return n.name
}

// Dir is the node's home directory.
func (n *Node) Dir() string {
	return n.dir
}

// BootAddr is the address other nodes use to boot from this one.
func (n *Node) BootAddr() string {
	return fmt.Sprintf("%s@127.0.0.1:%d", n.key.PublicKey, n.networkPort)
}

func (n *Node) GetStatus(ctx context.Context) (*status.StatusResponse, error) {
	return n.client.GetStatus(ctx)
}

// Start runs the node binary. A node that is its own boot node runs without boot
// nodes and resumes from the state in its home.
func (n *Node) Start(_ context.Context, boot cluster.Node) error {
	bootNode, ok := boot.(*Node)
	if !ok || bootNode == nil || bootNode.cluster != n.cluster {
		return errors.NewInvalidArgumentError("[local] boot node for %s is not part of the cluster", n.name)
	}

	if n.cluster.isStopped() {
		return errors.NewClusterError("[local] cannot start %s, cluster is stopped", n.name)
	}

	args := []string{"--home", n.dir, "run"}

	if bootNode != n {
		if !bootNode.Running() {
			return errors.NewClusterError("[local] boot node %s of %s is not running", bootNode.name, n.name)
		}

		args = append(args, "--boot-nodes", bootNode.BootAddr())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.runningLocked() {
		return errors.NewClusterError("[local] %s is already running", n.name)
	}

	logPath := filepath.Join(n.dir, logFile)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.NewClusterError("[local] failed to open %s", logPath, err)
	}

	// the process outlives the context it was started with
	cmd := exec.Command(n.cluster.settings.NodeBinary, args...)
	cmd.Stdout = f
	cmd.Stderr = f

	if err = cmd.Start(); err != nil {
		_ = f.Close()
		return errors.NewClusterError("[local] failed to start %s", n.name, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}

	go func() {
		p.err = cmd.Wait()
		_ = f.Close()

		close(p.done)
	}()

	n.proc = p

	n.cluster.logger.Infof("[local] started %s (pid %d) %v", n.name, cmd.Process.Pid, args)

	return nil
}

// Kill terminates the node process and waits up to StopTimeout for it to exit.
// Killing a node that is not running is a no-op.
func (n *Node) Kill(ctx context.Context) error {
	n.mu.Lock()
	p := n.proc
	n.mu.Unlock()

	if p == nil {
		return nil
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Kill(); err != nil {
		return errors.NewClusterError("[local] failed to kill %s", n.name, err)
	}

	timer := time.NewTimer(n.cluster.settings.StopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		n.cluster.logger.Infof("[local] killed %s", n.name)
		return nil
	case <-timer.C:
		return errors.NewClusterError("[local] %s did not exit within %s", n.name, n.cluster.settings.StopTimeout)
	case <-ctx.Done():
		return errors.FromContext(ctx)
	}
}

func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.runningLocked()
}

func (n *Node) runningLocked() bool {
	if n.proc == nil {
		return false
	}

	select {
	case <-n.proc.done:
		return false
	default:
		return true
	}
}

// exited reports whether the last started process has exited, and its error.
func (n *Node) exited() (bool, error) {
	n.mu.Lock()
	p := n.proc
	n.mu.Unlock()

	if p == nil {
		return false, nil
	}

	select {
	case <-p.done:
		return true, p.err
	default:
		return false, nil
	}
}
