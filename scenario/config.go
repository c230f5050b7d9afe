package scenario

import (
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
)

const (
	DefaultTargetHeight = 60
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultRestartGrace = 3 * time.Second
)

// Config holds the scenario constants.
type Config struct {
	// TargetHeight is the height the live node must reach while the other node is down.
	TargetHeight uint64
	// Timeout bounds the catch-up of the restarted node. The restart grace is not part of it.
	Timeout      time.Duration
	PollInterval time.Duration
	RestartGrace time.Duration
	// LiveNode keeps running, StoppedNode is killed and restarted.
	LiveNode    int
	StoppedNode int
	// SkipRestart replaces the restart with a no-op.
	SkipRestart bool
}

func DefaultConfig() Config {
	return Config{
		TargetHeight: DefaultTargetHeight,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		RestartGrace: DefaultRestartGrace,
		LiveNode:     0,
		StoppedNode:  1,
	}
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.NewConfigurationError("scenario timeout must be positive, got %s", c.Timeout)
	}

	if c.PollInterval <= 0 {
		return errors.NewConfigurationError("scenario poll interval must be positive, got %s", c.PollInterval)
	}

	if c.RestartGrace < 0 {
		return errors.NewConfigurationError("scenario restart grace must not be negative, got %s", c.RestartGrace)
	}

	if c.LiveNode < 0 || c.StoppedNode < 0 {
		return errors.NewConfigurationError("scenario node indices must not be negative, got %d and %d", c.LiveNode, c.StoppedNode)
	}

	if c.LiveNode == c.StoppedNode {
		return errors.NewConfigurationError("scenario live and stopped node must differ, both are %d", c.LiveNode)
	}

	return nil
}
