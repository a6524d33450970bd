// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"encoding/json"
	"strings"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/schema"
)

// splitQualified splits "schema.table.column" into ("schema.table", "column").
func splitQualified(affectedObject string) (table, column string, ok bool) {
	idx := strings.LastIndex(affectedObject, ".")
	if idx < 0 {
		return "", "", false
	}
	return affectedObject[:idx], affectedObject[idx+1:], true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func decodeInto(raw json.RawMessage, dest any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func decodeColumns(item diffengine.DiffItem) (before, after schema.Column, ok bool) {
	if !decodeInto(item.Before, &before) {
		return schema.Column{}, schema.Column{}, false
	}
	if !decodeInto(item.After, &after) {
		return schema.Column{}, schema.Column{}, false
	}
	return before, after, true
}

func columnTypeChange(item diffengine.DiffItem) (from, to string, ok bool) {
	before, after, ok := decodeColumns(item)
	if !ok || before.DataType == after.DataType {
		return "", "", false
	}
	return before.DataType, after.DataType, true
}
