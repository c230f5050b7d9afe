package tconfig

import (
	"github.com/bsv-blockchain/gcsync/settings"
	"github.com/google/uuid"
)

// ConfigSuite holds the meta information of a run.
type ConfigSuite struct {
	// TestID identifies the run in logs, a random uuid by default
	TestID string `mapstructure:"testid" json:"testid" yaml:"testid"`

	// Name of the suite or CLI invocation
	Name string `mapstructure:"name" json:"name" yaml:"name"`

	// LogLevel is the logLevel setting by default
	LogLevel string `mapstructure:"loglevel" json:"loglevel" yaml:"loglevel"`

	// TConfigFile is the file the configuration was read from, if any
	TConfigFile string `mapstructure:"tconfigfile" json:"tconfigfile" yaml:"tconfigfile"`
}

// LoadConfigSuite returns the loader for ConfigSuite.
func LoadConfigSuite() TConfigLoader {
	return func(s *TConfig) error {
		s.viper.SetDefault(KeySuiteTestID, uuid.NewString())
		s.Suite.TestID = s.viper.GetString(KeySuiteTestID)

		s.viper.SetDefault(KeySuiteName, "gcsync")
		s.Suite.Name = s.viper.GetString(KeySuiteName)

		s.viper.SetDefault(KeySuiteLogLevel, settings.NewSettings().LogLevel)
		s.Suite.LogLevel = s.viper.GetString(KeySuiteLogLevel)

		return nil
	}
}
