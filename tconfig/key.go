package tconfig

// Keys follow the viper format. The key path works for
//   - environment variables (scenario.targetheight is SCENARIO_TARGETHEIGHT)
//   - config files .env .yaml .json
//
// Scenario keys are also bound to the short environment names in envAliases.
const (
	// Keys for suite config
	KeySuiteTestID      = "suite.testid"
	KeySuiteName        = "suite.name"
	KeySuiteLogLevel    = "suite.loglevel"
	KeySuiteTConfigFile = "suite.tconfigfile"

	// Keys for cluster config
	KeyClusterKind         = "cluster.kind"
	KeyClusterSkipTeardown = "cluster.skipteardown"

	// Keys for scenario config
	KeyScenarioTargetHeight = "scenario.targetheight"
	KeyScenarioTimeout      = "scenario.timeout"
	KeyScenarioPollInterval = "scenario.pollinterval"
	KeyScenarioRestartGrace = "scenario.restartgrace"
	KeyScenarioLiveNode     = "scenario.livenode"
	KeyScenarioStoppedNode  = "scenario.stoppednode"
	KeyScenarioSkipRestart  = "scenario.skiprestart"
)

var envAliases = map[string]string{
	KeyScenarioTargetHeight: "TARGET_HEIGHT",
	KeyScenarioTimeout:      "TIMEOUT",
	KeyScenarioPollInterval: "POLL_INTERVAL",
	KeyScenarioRestartGrace: "RESTART_GRACE",
	KeyScenarioSkipRestart:  "SKIP_RESTART",
	KeyClusterKind:          "GCSYNC_CLUSTER",
}
