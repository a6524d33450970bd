// SPDX-License-Identifier: Apache-2.0

package changewire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/schemaflow/schemaflow/pkg/schemachange"
)

// DecodeYAML accepts a single proposal change authored as YAML instead of
// JSON. The naive path — yaml.Unmarshal into a map[string]any, then
// json.Marshal — loses the author's column ordering for `columns: [...]`
// entries because Go map iteration is unordered; this walks the yaml.Node
// tree directly and reassembles JSON by hand, the same way pgroll's
// RawMigration.UnmarshalYAML preserves operation order when a migration is
// authored as YAML, then runs the result through the same schema validation
// and conversion as DecodeJSON.
func DecodeYAML(raw []byte) (schemachange.Change, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML change: %w", err)
	}
	jsonBytes, err := yamlNodeToJSON(&doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML change to JSON: %w", err)
	}
	return DecodeJSON(jsonBytes)
}

// yamlNodeToJSON converts a yaml.Node to JSON bytes while preserving
// mapping key order, since that order is what determines a CreateTable's
// column sequence once decoded.
func yamlNodeToJSON(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) > 0 {
			return yamlNodeToJSON(node.Content[0])
		}
		return []byte("null"), nil

	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := yamlNodeToJSON(node.Content[i])
			if err != nil {
				return nil, err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valueBytes, err := yamlNodeToJSON(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			buf.Write(valueBytes)
		}
		buf.WriteByte('}')

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := yamlNodeToJSON(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')

	case yaml.ScalarNode:
		switch node.Tag {
		case "!!str":
			return json.Marshal(node.Value)
		case "!!int", "!!float":
			return []byte(node.Value), nil
		case "!!bool":
			return []byte(node.Value), nil
		case "!!null":
			return []byte("null"), nil
		default:
			return json.Marshal(node.Value)
		}

	default:
		return nil, fmt.Errorf("unsupported YAML node kind %d", node.Kind)
	}

	return buf.Bytes(), nil
}
