// Package chain builds the opaque chain and node configuration payloads handed to
// the cluster: consensus timing, per-node config patches and genesis overrides.
package chain

import (
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
)

const nanosPerSecond = uint32(time.Second)

// Duration is the {"secs", "nanos"} form node config files use for durations.
type Duration struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

func FromDuration(d time.Duration) Duration {
	if d < 0 {
		d = 0
	}

	return Duration{
		Secs:  uint64(d / time.Second),
		Nanos: uint32(d % time.Second),
	}
}

func (d Duration) Std() time.Duration {
	return time.Duration(d.Secs)*time.Second + time.Duration(d.Nanos)
}

func (d Duration) Map() map[string]any {
	return map[string]any{
		"secs":  d.Secs,
		"nanos": d.Nanos,
	}
}

func (d Duration) String() string {
	return d.Std().String()
}

// ConsensusTiming controls how fast a node produces blocks.
type ConsensusTiming struct {
	MinBlockProductionDelay Duration `json:"min_block_production_delay"`
	MaxBlockProductionDelay Duration `json:"max_block_production_delay"`
	MaxBlockWaitDelay       Duration `json:"max_block_wait_delay"`
}

// FastConsensus produces a block every 100ms to 400ms.
func FastConsensus() ConsensusTiming {
	return ConsensusTiming{
		MinBlockProductionDelay: FromDuration(100 * time.Millisecond),
		MaxBlockProductionDelay: FromDuration(400 * time.Millisecond),
		MaxBlockWaitDelay:       FromDuration(400 * time.Millisecond),
	}
}

func (c ConsensusTiming) Validate() error {
	for name, d := range map[string]Duration{
		"min_block_production_delay": c.MinBlockProductionDelay,
		"max_block_production_delay": c.MaxBlockProductionDelay,
		"max_block_wait_delay":       c.MaxBlockWaitDelay,
	} {
		if d.Nanos >= nanosPerSecond {
			return errors.NewConfigurationError("consensus %s has %d nanos, must be below 1e9", name, d.Nanos)
		}
	}

	if c.MinBlockProductionDelay.Std() > c.MaxBlockProductionDelay.Std() {
		return errors.NewConfigurationError("consensus min_block_production_delay %s exceeds max_block_production_delay %s",
			c.MinBlockProductionDelay, c.MaxBlockProductionDelay)
	}

	return nil
}

func (c ConsensusTiming) Map() map[string]any {
	return map[string]any{
		"min_block_production_delay": c.MinBlockProductionDelay.Map(),
		"max_block_production_delay": c.MaxBlockProductionDelay.Map(),
		"max_block_wait_delay":       c.MaxBlockWaitDelay.Map(),
	}
}
