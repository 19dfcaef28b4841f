// Package config resolves the per-run configuration once at run start. The
// coordinator threads the resolved value through the budget selector and the
// artifact writers; nothing reads the environment after Resolve returns.
package config

import "github.com/spf13/viper"

const (
	envMaxMiners = "BB_MAX_MINERS_PER_RUN"
	envLogsDir   = "BB_OUTPUT_LOGS_DIR"
	envNetUID    = "BB_NETUID"

	defaultLogsDir = "./logs"
	defaultNetUID  = 60
)

// RunConfig is the immutable configuration for one run.
type RunConfig struct {
	// EngineURL is the utterance engine base URL predictions are driven
	// against. Empty is allowed; dispatch then fails per miner.
	EngineURL string

	// ScoresDir is where per-dialogue score artifacts are written.
	ScoresDir string

	// LogsDir is where raw per-utterance JSONL event logs are written.
	LogsDir string

	// MaxMiners bounds how many miners one run evaluates. Zero or negative
	// means unlimited.
	MaxMiners int

	// NetUID selects the subnet queried from the miner registry.
	NetUID int
}

// Resolve builds a RunConfig from the two invocation parameters plus the
// BB_* environment.
func Resolve(engineURL, scoresDir string) RunConfig {
	v := viper.New()
	v.SetDefault("output_logs_dir", defaultLogsDir)
	v.SetDefault("netuid", defaultNetUID)
	_ = v.BindEnv("max_miners_per_run", envMaxMiners)
	_ = v.BindEnv("output_logs_dir", envLogsDir)
	_ = v.BindEnv("netuid", envNetUID)

	return RunConfig{
		EngineURL: engineURL,
		ScoresDir: scoresDir,
		LogsDir:   v.GetString("output_logs_dir"),
		MaxMiners: v.GetInt("max_miners_per_run"),
		NetUID:    v.GetInt("netuid"),
	}
}

// Unlimited reports whether the run has no miner budget.
func (c RunConfig) Unlimited() bool {
	return c.MaxMiners <= 0
}
