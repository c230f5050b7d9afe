package local

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bsv-blockchain/gcsync/chain"
	"github.com/bsv-blockchain/gcsync/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	genesisFile = "genesis.json"
	configFile  = "config.json"
	nodeKeyFile = "node_key.json"
	logFile     = "node.log"
)

type nodeKey struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
}

// patchGenesis applies the genesis overrides to dir/genesis.json in place.
func patchGenesis(dir string, overrides []chain.Override) error {
	if len(overrides) == 0 {
		return nil
	}

	path := filepath.Join(dir, genesisFile)

	doc, err := os.ReadFile(path)
	if err != nil {
		return errors.NewClusterError("[local] failed to read %s", path, err)
	}

	doc, err = chain.ApplyOverrides(doc, overrides...)
	if err != nil {
		return errors.NewClusterError("[local] failed to patch %s", path, err)
	}

	return writeFile(path, doc)
}

// patchConfig sets the node's listen addresses in dir/config.json and merges patch over it.
func patchConfig(dir string, rpcPort, networkPort int, patch map[string]any) error {
	path := filepath.Join(dir, configFile)

	doc, err := os.ReadFile(path)
	if err != nil {
		return errors.NewClusterError("[local] failed to read %s", path, err)
	}

	config := make(map[string]any)
	if err = json.Unmarshal(doc, &config); err != nil {
		return errors.NewClusterError("[local] %s is not a json object", path, err)
	}

	config = chain.MergeConfig(config, map[string]any{
		"rpc":     map[string]any{"addr": fmt.Sprintf("0.0.0.0:%d", rpcPort)},
		"network": map[string]any{"addr": fmt.Sprintf("0.0.0.0:%d", networkPort)},
	})
	config = chain.MergeConfig(config, patch)

	doc, err = json.MarshalIndent(config, "", "  ")
	if err != nil {
		return errors.NewClusterError("[local] failed to encode %s", path, err)
	}

	return writeFile(path, doc)
}

func readNodeKey(dir string) (nodeKey, error) {
	var key nodeKey

	path := filepath.Join(dir, nodeKeyFile)

	doc, err := os.ReadFile(path)
	if err != nil {
		return key, errors.NewClusterError("[local] failed to read %s", path, err)
	}

	if err = json.Unmarshal(doc, &key); err != nil {
		return key, errors.NewClusterError("[local] failed to decode %s", path, err)
	}

	if key.PublicKey == "" {
		return key, errors.NewClusterError("[local] %s has no public_key", path)
	}

	return key, nil
}

func writeFile(path string, doc []byte) error {
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		return errors.NewClusterError("[local] failed to write %s", path, err)
	}

	return nil
}
