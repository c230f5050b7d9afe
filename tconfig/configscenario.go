package tconfig

import (
	"time"

	"github.com/bsv-blockchain/gcsync/scenario"
)

// ConfigScenario holds the scenario constants.
type ConfigScenario struct {
	TargetHeight uint64        `mapstructure:"targetheight" json:"targetheight" yaml:"targetheight"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"pollinterval" json:"pollinterval" yaml:"pollinterval"`
	RestartGrace time.Duration `mapstructure:"restartgrace" json:"restartgrace" yaml:"restartgrace"`
	LiveNode     int           `mapstructure:"livenode" json:"livenode" yaml:"livenode"`
	StoppedNode  int           `mapstructure:"stoppednode" json:"stoppednode" yaml:"stoppednode"`

	// SkipRestart replaces the restart of the stopped node with a no-op
	SkipRestart bool `mapstructure:"skiprestart" json:"skiprestart" yaml:"skiprestart"`
}

// LoadConfigScenario returns the loader for ConfigScenario.
func LoadConfigScenario() TConfigLoader {
	return func(s *TConfig) error {
		defaults := scenario.DefaultConfig()

		s.viper.SetDefault(KeyScenarioTargetHeight, defaults.TargetHeight)
		s.Scenario.TargetHeight = s.viper.GetUint64(KeyScenarioTargetHeight)

		s.viper.SetDefault(KeyScenarioTimeout, defaults.Timeout)
		s.Scenario.Timeout = s.viper.GetDuration(KeyScenarioTimeout)

		s.viper.SetDefault(KeyScenarioPollInterval, defaults.PollInterval)
		s.Scenario.PollInterval = s.viper.GetDuration(KeyScenarioPollInterval)

		s.viper.SetDefault(KeyScenarioRestartGrace, defaults.RestartGrace)
		s.Scenario.RestartGrace = s.viper.GetDuration(KeyScenarioRestartGrace)

		s.viper.SetDefault(KeyScenarioLiveNode, defaults.LiveNode)
		s.Scenario.LiveNode = s.viper.GetInt(KeyScenarioLiveNode)

		s.viper.SetDefault(KeyScenarioStoppedNode, defaults.StoppedNode)
		s.Scenario.StoppedNode = s.viper.GetInt(KeyScenarioStoppedNode)

		s.viper.SetDefault(KeyScenarioSkipRestart, false)
		s.Scenario.SkipRestart = s.viper.GetBool(KeyScenarioSkipRestart)

		return s.ScenarioConfig().Validate()
	}
}

// ScenarioConfig converts the loaded values for the orchestrator.
func (c *TConfig) ScenarioConfig() scenario.Config {
	return scenario.Config{
		TargetHeight: c.Scenario.TargetHeight,
		Timeout:      c.Scenario.Timeout,
		PollInterval: c.Scenario.PollInterval,
		RestartGrace: c.Scenario.RestartGrace,
		LiveNode:     c.Scenario.LiveNode,
		StoppedNode:  c.Scenario.StoppedNode,
		SkipRestart:  c.Scenario.SkipRestart,
	}
}
