// SPDX-License-Identifier: Apache-2.0

// Package rulesregistry loads an on-disk enablement/severity-override file
// for the Rules Engine's default rule set (§4.5), the way pgroll's
// migrations.MigrationWriter round-trips YAML through sigs.k8s.io/yaml: the
// file is authored as YAML for humans, converted to JSON internally, and
// unmarshalled with the standard library from there.
package rulesregistry

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/schemaflow/schemaflow/pkg/rules"
)

// Entry overrides one rule's enablement and/or severity. Either field may be
// zero to mean "leave as default".
type Entry struct {
	Enabled  *bool         `json:"enabled,omitempty"`
	Severity rules.Severity `json:"severity,omitempty"`
}

// Registry is the on-disk shape of rules.yaml: a map from stable rule ID
// (R001, R002, ...) to its override entry.
type Registry map[string]Entry

// Load reads and parses a rules.yaml-shaped file at path. A missing file is
// not an error — callers fall back to rules.DefaultRules() unmodified, the
// same way pgroll treats an absent migrations directory as "nothing to do"
// rather than a hard failure.
func Load(path string) (Registry, error) {
	if path == "" {
		return Registry{}, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rules registry %s: %w", path, err)
	}

	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parsing rules registry %s: %w", path, err)
	}
	return reg, nil
}

// Apply overlays the registry's overrides onto the default rule set: a rule
// explicitly disabled is dropped from the returned slice; a rule with a
// Severity override keeps firing but at the overridden severity. Order is
// preserved from `base` (stable R001..R009 order).
func (reg Registry) Apply(base []rules.Rule) []rules.Rule {
	if len(reg) == 0 {
		return base
	}

	out := make([]rules.Rule, 0, len(base))
	for _, r := range base {
		entry, ok := reg[r.ID]
		if !ok {
			out = append(out, r)
			continue
		}
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		if entry.Severity != "" {
			r.Severity = entry.Severity
		}
		out = append(out, r)
	}
	return out
}

// Marshal renders a Registry back to YAML, used by `schemaflow rules export`
// to seed a rules.yaml a team can then edit.
func Marshal(reg Registry) ([]byte, error) {
	return yaml.Marshal(reg)
}
