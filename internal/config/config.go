// SPDX-License-Identifier: Apache-2.0

// Package config loads the governance kernel's own tunables the way
// pgroll's cmd/root.go binds its PGROLL_* environment variables with
// viper: a small set of env vars and flags, bound once at startup,
// read through typed accessors everywhere else.
package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// EnvPrefix is the prefix viper.AutomaticEnv binds against, e.g.
// SCHEMAFLOW_DATABASE_URL.
const EnvPrefix = "SCHEMAFLOW"

// Init registers the env prefix and automatic env lookup. Call once from
// cmd's root command init, mirroring pgroll's cmd/root.go init().
func Init() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
}

// BindFlags registers the persistent flags shared by every subcommand and
// binds each to its viper key, the way pgroll's flags.PgConnectionFlags
// does for postgres-url/schema/pgroll-schema.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("database-url", "", "Metastore connection string (or SCHEMAFLOW_DATABASE_URL)")
	cmd.PersistentFlags().String("host", "localhost", "Listener host (out-of-scope HTTP transport reads this)")
	cmd.PersistentFlags().Int("port", 8080, "Listener port (out-of-scope HTTP transport reads this)")
	cmd.PersistentFlags().Int("default-approvals", 1, "Minimum approvals required before a proposal auto-approves")
	cmd.PersistentFlags().String("rules-registry", "", "Path to a rules.yaml enablement/severity override file")
	cmd.PersistentFlags().Int("snapshot-retention", 0, "Snapshots to retain per connection after prune (0 disables pruning)")
	cmd.PersistentFlags().String("audit-log-file", ".schemaflow-audit.jsonl", "Append-only JSON-lines audit log")

	_ = viper.BindPFlag("DATABASE_URL", cmd.PersistentFlags().Lookup("database-url"))
	_ = viper.BindPFlag("HOST", cmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("PORT", cmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("DEFAULT_APPROVALS", cmd.PersistentFlags().Lookup("default-approvals"))
	_ = viper.BindPFlag("RULES_REGISTRY", cmd.PersistentFlags().Lookup("rules-registry"))
	_ = viper.BindPFlag("SNAPSHOT_RETENTION", cmd.PersistentFlags().Lookup("snapshot-retention"))
	_ = viper.BindPFlag("AUDIT_LOG_FILE", cmd.PersistentFlags().Lookup("audit-log-file"))
}

// Config is the resolved set of kernel tunables, out-of-scope HTTP/auth
// fields included only because the CLI's root command needs somewhere to
// read them from (§1: HTTP transport, auth and CORS are external
// collaborators, but they still consume the same env vars per §6).
type Config struct {
	DatabaseURL       string
	Host              string
	Port              int
	DefaultApprovals  int
	RulesRegistryPath string
	SnapshotRetention int
}

// Load resolves the current Config from viper (flags, then SCHEMAFLOW_*
// env, then defaults). DatabaseURL is required only when the caller intends
// to use the live metastore; Load itself never validates it, since the CLI's
// pure subcommands (rules list, diff against two files) don't need one.
func Load() Config {
	return Config{
		DatabaseURL:       viper.GetString("DATABASE_URL"),
		Host:              viper.GetString("HOST"),
		Port:              viper.GetInt("PORT"),
		DefaultApprovals:  viper.GetInt("DEFAULT_APPROVALS"),
		RulesRegistryPath: viper.GetString("RULES_REGISTRY"),
		SnapshotRetention: viper.GetInt("SNAPSHOT_RETENTION"),
	}
}

// RequireDatabaseURL returns a Config error when DatabaseURL is unset,
// for subcommands that actually need the metastore connection.
func RequireDatabaseURL(c Config) error {
	if c.DatabaseURL == "" {
		return sferrors.Config{Reason: "DATABASE_URL (or --database-url) is required for this command"}
	}
	return nil
}
