package scenario

import (
	"github.com/bsv-blockchain/gcsync/chain"
	"github.com/bsv-blockchain/gcsync/cluster"
)

const (
	validatorStake = "110000000000000000000000000000000"
	totalSupply    = "3060000000000000000000000000000000"
)

// GenesisOverrides returns the genesis changes of the scenario: 10 block epochs, five
// producer seats on a single shard and the stake of validator 0.
func GenesisOverrides() []chain.Override {
	return []chain.Override{
		chain.NewOverride(10, "epoch_length"),
		chain.NewOverride(5, "num_block_producer_seats"),
		chain.NewOverride([]int{5}, "num_block_producer_seats_per_shard"),
		chain.NewOverride(80, "chunk_producer_kickout_threshold"),
		chain.NewOverride(map[string]any{
			"V0": map[string]any{
				"num_shards": 1,
				"version":    1,
			},
		}, "shard_layout"),
		chain.NewOverride(validatorStake, "validators", 0, "amount"),
		chain.NewOverride(validatorStake, "records", 0, "Account", "account", "locked"),
		chain.NewOverride(totalSupply, "total_supply"),
	}
}

// DefaultTopology is two validators, no observers, fast consensus timing on both.
func DefaultTopology() *cluster.Topology {
	fast := chain.FastConsensus()

	return &cluster.Topology{
		NumValidators:    2,
		NumObservers:     0,
		NumOverridden:    1,
		GenesisOverrides: GenesisOverrides(),
		NodeConfigs: map[int]chain.NodeConfig{
			0: {Consensus: &fast},
			1: {Consensus: &fast},
		},
	}
}
