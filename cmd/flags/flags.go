// SPDX-License-Identifier: Apache-2.0

// Package flags exposes typed accessors over the viper-bound persistent
// flags every subcommand shares, the same split pgroll's cmd/flags package
// keeps between flag registration (internal/config) and flag reads (here).
package flags

import "github.com/spf13/viper"

func DatabaseURL() string { return viper.GetString("DATABASE_URL") }

func DefaultApprovals() int { return viper.GetInt("DEFAULT_APPROVALS") }

func RulesRegistryPath() string { return viper.GetString("RULES_REGISTRY") }

func SnapshotRetention() int { return viper.GetInt("SNAPSHOT_RETENTION") }

func AuditLogFile() string { return viper.GetString("AUDIT_LOG_FILE") }
