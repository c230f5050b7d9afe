package cluster

import (
	"github.com/bsv-blockchain/gcsync/chain"
	"github.com/bsv-blockchain/gcsync/errors"
)

// Topology describes the cluster to boot. Builders must not modify it.
type Topology struct {
	NumValidators int
	NumObservers  int
	// NumOverridden is the number of nodes whose config differs from the defaults.
	NumOverridden int
	// BaseConfig is merged into every node's config before its own NodeConfigs entry.
	BaseConfig       map[string]any
	GenesisOverrides []chain.Override
	NodeConfigs      map[int]chain.NodeConfig
}

func (t *Topology) NumNodes() int {
	return t.NumValidators + t.NumObservers
}

// IsValidator reports whether node i produces blocks. Validators come first.
func (t *Topology) IsValidator(i int) bool {
	return i >= 0 && i < t.NumValidators
}

// NodeConfig returns the full config patch for node i.
func (t *Topology) NodeConfig(i int) map[string]any {
	out := chain.MergeConfig(nil, t.BaseConfig)

	if cfg, ok := t.NodeConfigs[i]; ok {
		out = chain.MergeConfig(out, cfg.Map())
	}

	return out
}

// ConsensusTiming returns the timing configured for node i, if any.
func (t *Topology) ConsensusTiming(i int) (chain.ConsensusTiming, bool) {
	cfg, ok := t.NodeConfigs[i]
	if !ok || cfg.Consensus == nil {
		return chain.ConsensusTiming{}, false
	}

	return *cfg.Consensus, true
}

func (t *Topology) Validate() error {
	if t == nil {
		return errors.NewInvalidArgumentError("topology is nil")
	}

	if t.NumValidators < 1 {
		return errors.NewInvalidArgumentError("topology needs at least one validator, got %d", t.NumValidators)
	}

	if t.NumObservers < 0 || t.NumOverridden < 0 {
		return errors.NewInvalidArgumentError("topology counts must not be negative: observers %d, overridden %d", t.NumObservers, t.NumOverridden)
	}

	if t.NumOverridden > t.NumNodes() {
		return errors.NewInvalidArgumentError("topology overrides %d nodes but has only %d", t.NumOverridden, t.NumNodes())
	}

	// NodeConfigs may cover more nodes than NumOverridden
	for i, cfg := range t.NodeConfigs {
		if i < 0 || i >= t.NumNodes() {
			return errors.NewInvalidArgumentError("node config for index %d out of range, topology has %d nodes", i, t.NumNodes())
		}

		if err := cfg.Validate(); err != nil {
			return errors.NewInvalidArgumentError("node config for index %d is invalid", i, err)
		}
	}

	for _, o := range t.GenesisOverrides {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	return nil
}
