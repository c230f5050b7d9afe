// Package tconfig loads the scenario configuration from, in decreasing priority,
// programmatic overrides, environment variables, a config file and defaults.
package tconfig

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type TConfigLoader func(s *TConfig) error

// TConfig holds the flat configuration of a scenario run.
type TConfig struct {
	// viper is the helper used to load configuration into TConfig
	viper *viper.Viper

	Suite ConfigSuite `mapstructure:"suite" json:"suite" yaml:"suite"`

	Cluster ConfigCluster `mapstructure:"cluster" json:"cluster" yaml:"cluster"`

	Scenario ConfigScenario `mapstructure:"scenario" json:"scenario" yaml:"scenario"`
}

// LoadAllConfig returns a loader running every loader of this package.
// It is used when the caller does not name any loader.
func LoadAllConfig() TConfigLoader {
	return func(s *TConfig) error {
		allLoader := []TConfigLoader{
			LoadConfigSuite(),
			LoadConfigCluster(),
			LoadConfigScenario(),
		}

		for _, load := range allLoader {
			if err := load(s); err != nil {
				return err
			}
		}

		return nil
	}
}

// LoadTConfig loads configured values into a TConfig.
//
// kv overrides any value set in environment variables or config files, give it nil
// when there is nothing to override. The config file is taken from kv under
// KeySuiteTConfigFile, then from a --tconfig-file command line argument, then from
// the TCONFIG_FILE environment variable.
func LoadTConfig(kv map[string]any, loaders ...TConfigLoader) (TConfig, error) {
	c := TConfig{}

	if err := c.initViper(kv); err != nil {
		return c, err
	}

	for key, value := range kv {
		c.Set(key, value)
	}

	if len(loaders) < 1 {
		loaders = []TConfigLoader{LoadAllConfig()}
	}

	for _, load := range loaders {
		if err := load(&c); err != nil {
			return c, err
		}
	}

	return c, nil
}

// StringYAML returns the config in yaml format.
func (c *TConfig) StringYAML() string {
	strYAML, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Error marshalling to YAML: %v\n", err)
	}

	return string(strYAML)
}

func (c *TConfig) Set(k string, v any) {
	c.viper.Set(k, v)
}

// initViper creates the viper instance reading environment variables and the
// optional config file.
func (c *TConfig) initViper(kv map[string]any) error {
	if c.viper != nil {
		return nil
	}

	c.viper = viper.New()
	c.viper.AutomaticEnv()
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, env := range envAliases {
		if err := c.viper.BindEnv(key, env, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return errors.NewConfigurationError("failed to bind %s to %s", key, env, err)
		}
	}

	tconfigFile := configFile(kv)
	if tconfigFile == "" {
		return nil
	}

	if isEnvFile(tconfigFile) {
		// viper maps my.var to MY_VAR for the environment only, so a .env file is
		// loaded into the environment. godotenv does not override variables already
		// set, which keeps the priority order.
		if err := godotenv.Load(tconfigFile); err != nil {
			return errors.NewConfigurationError("failed to load %s", tconfigFile, err)
		}
	} else {
		c.viper.SetConfigFile(tconfigFile)

		if err := c.viper.ReadInConfig(); err != nil {
			return errors.NewConfigurationError("failed to read %s", tconfigFile, err)
		}
	}

	c.Suite.TConfigFile = tconfigFile
	c.viper.Set(KeySuiteTConfigFile, tconfigFile)

	return nil
}

func configFile(kv map[string]any) string {
	if f, ok := kv[KeySuiteTConfigFile].(string); ok && f != "" {
		return f
	}

	localFlags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	localFlags.Usage = func() {}
	localFlags.SetOutput(io.Discard)

	tconfigFile := localFlags.String("tconfig-file", "", "Path to the scenario configuration file")

	// unknown flags stop the parse, whatever was read before them is kept
	_ = localFlags.Parse(os.Args[1:])

	if *tconfigFile != "" {
		return *tconfigFile
	}

	return os.Getenv("TCONFIG_FILE")
}

// isEnvFile checks if the file is .env
func isEnvFile(f string) bool {
	ext := filepath.Ext(f)
	if len(ext) > 1 {
		return ext[1:] == "env"
	}

	return false
}
