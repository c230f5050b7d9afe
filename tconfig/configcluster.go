package tconfig

import (
	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/settings"
)

// ConfigCluster selects the cluster the scenario runs against. How the cluster itself
// is started is node-level configuration and lives in settings.
type ConfigCluster struct {
	// Kind is one of memory, local or compose, the gcsync_cluster setting by default
	Kind string `mapstructure:"kind" json:"kind" yaml:"kind"`

	// SkipTeardown leaves a compose stack running after the run, for inspection.
	// Other cluster kinds always stop their nodes.
	SkipTeardown bool `mapstructure:"skipteardown" json:"skipteardown" yaml:"skipteardown"`
}

// LoadConfigCluster returns the loader for ConfigCluster.
func LoadConfigCluster() TConfigLoader {
	return func(s *TConfig) error {
		s.viper.SetDefault(KeyClusterKind, settings.NewSettings().ClusterKind)
		s.Cluster.Kind = s.viper.GetString(KeyClusterKind)

		s.viper.SetDefault(KeyClusterSkipTeardown, false)
		s.Cluster.SkipTeardown = s.viper.GetBool(KeyClusterSkipTeardown)

		switch s.Cluster.Kind {
		case settings.ClusterMemory, settings.ClusterLocal, settings.ClusterCompose:
			return nil
		default:
			return errors.NewConfigurationError("unknown cluster kind %q", s.Cluster.Kind)
		}
	}
}
