// Package settings holds the node-running settings of the harness, read from
// settings.conf, settings_local.conf and the environment through gocore.
package settings

import (
	"time"
)

const (
	ClusterMemory  = "memory"
	ClusterLocal   = "local"
	ClusterCompose = "compose"
)

type Settings struct {
	ClusterKind string
	LogLevel    string
	LoggerType  string
	PrettyLogs  bool
	HTTPTimeout time.Duration
	Local       LocalSettings
	Compose     ComposeSettings
	Memory      MemorySettings
}

// LocalSettings configure nodes spawned as local processes.
type LocalSettings struct {
	NodeBinary      string
	HomeBase        string
	ChainID         string
	RPCBasePort     int
	NetworkBasePort int
	StartupTimeout  time.Duration
	StopTimeout     time.Duration
}

// ComposeSettings configure nodes running as services of a docker compose stack.
type ComposeSettings struct {
	Files          []string
	ServicePrefix  string
	RPCPort        string
	DataDir        string
	StartupTimeout time.Duration
}

type MemorySettings struct {
	SyncDelay time.Duration
}

func NewSettings() *Settings {
	return &Settings{
		ClusterKind: getString("gcsync_cluster", ClusterLocal),
		LogLevel:    getString("logLevel", "INFO"),
		LoggerType:  getString("logger", "zerolog"),
		PrettyLogs:  getBool("PRETTY_LOGS", true),
		HTTPTimeout: getDuration("gcsync_http_timeout", 5*time.Second),
		Local: LocalSettings{
			NodeBinary:      getString("gcsync_local_binary", "neard"),
			HomeBase:        getString("gcsync_local_home", "data/localnet"),
			ChainID:         getString("gcsync_local_chain_id", "localnet"),
			RPCBasePort:     getInt("gcsync_local_rpc_port", 3030),
			NetworkBasePort: getInt("gcsync_local_network_port", 24567),
			StartupTimeout:  getDuration("gcsync_local_startup_timeout", 60*time.Second),
			StopTimeout:     getDuration("gcsync_local_stop_timeout", 10*time.Second),
		},
		Compose: ComposeSettings{
			Files:          getMultiString("gcsync_compose_files", "docker-compose.yml"),
			ServicePrefix:  getString("gcsync_compose_service_prefix", "node"),
			RPCPort:        getString("gcsync_compose_rpc_port", "3030/tcp"),
			DataDir:        getString("gcsync_compose_data_dir", "data/compose"),
			StartupTimeout: getDuration("gcsync_compose_startup_timeout", 120*time.Second),
		},
		Memory: MemorySettings{
			SyncDelay: getDuration("gcsync_memory_sync_delay", 5*time.Second),
		},
	}
}
