// Package cluster defines how the harness drives a set of blockchain nodes: a Builder
// boots a topology into a running Cluster whose Nodes can be killed, restarted and
// queried for status.
package cluster

import (
	"context"
	"fmt"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/status"
)

type Builder interface {
	// Start boots every node of the topology and returns once all of them report a
	// healthy status. On error nothing is left running.
	Start(ctx context.Context, topology *Topology) (Cluster, error)
}

type Cluster interface {
	Nodes() []Node
	Node(index int) (Node, error)
	// Stop terminates every node. It is safe to call more than once.
	Stop(ctx context.Context) error
}

// Node is a handle to one node process. A killed node stays part of the cluster and
// can be started again.
type Node interface {
	status.Querier

	Index() int
	Name() string
	Kill(ctx context.Context) error
	// Start (re)starts the node with boot as its boot node. A node passed as its own
	// boot node rejoins the network from its existing state.
	Start(ctx context.Context, boot Node) error
}

// NodeName is the name of the node at index i.
func NodeName(i int) string {
	return fmt.Sprintf("node%d", i)
}

// NodeAt returns nodes[index] or a not found error naming the cluster size.
func NodeAt(nodes []Node, index int) (Node, error) {
	if index < 0 || index >= len(nodes) {
		return nil, errors.NewNotFoundError("node %d not in cluster of %d nodes", index, len(nodes))
	}

	return nodes[index], nil
}
