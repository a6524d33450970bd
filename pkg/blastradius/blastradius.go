// SPDX-License-Identifier: Apache-2.0

// Package blastradius computes the downstream impact of changing a table or
// column by walking the foreign-key dependency graph breadth-first (§4.4).
package blastradius

import (
	"github.com/schemaflow/schemaflow/pkg/schema"
)

// Relationship describes how an impacted object relates to the analysis
// target.
type Relationship string

const (
	RelationshipForeignKey Relationship = "foreign_key"
	RelationshipIndex      Relationship = "index"
)

// Level summarizes how widely a change propagates.
type Level string

const (
	LevelNone      Level = "none"
	LevelContained Level = "contained"
	LevelSpreading Level = "spreading"
	LevelPandemic  Level = "pandemic"
)

// Impact is one node reached during the BFS.
type Impact struct {
	Path         []string     `json:"path"`
	Relationship Relationship `json:"relationship"`
	Distance     int          `json:"distance"`
	Description  string       `json:"description"`
	IsDirect     bool         `json:"isDirect"`
}

// BlastRadius is the result of analyzing a table or column.
type BlastRadius struct {
	Target  string    `json:"target"`
	Impacts []Impact  `json:"impacts"`
	Level   Level     `json:"level"`
}

// edge is one hop in the FK dependency graph: `to` is the table that
// references (and therefore depends on) `from` via `via`.
type edge struct {
	to  string
	via schema.ForeignKey
}

// buildReferencingGraph maps each qualified table name to the set of tables
// that hold a foreign key pointing at it — the edges the BFS walks when
// asking "what breaks if I change this referenced table".
func buildReferencingGraph(s *schema.Snapshot) map[string][]edge {
	graph := make(map[string][]edge)
	for _, fk := range s.ForeignKeys {
		referenced := fk.ReferencedQualifiedName()
		referencing := fk.SourceSchema + "." + fk.SourceTable
		graph[referenced] = append(graph[referenced], edge{to: referencing, via: fk})
	}
	return graph
}

// AnalyzeTable performs a BFS from `schemaName.tableName`, following FKs
// that reference it (and transitively, FKs referencing its dependents).
func AnalyzeTable(s *schema.Snapshot, schemaName, tableName string) *BlastRadius {
	target := schemaName + "." + tableName
	graph := buildReferencingGraph(s)

	impacts := bfs(graph, target)
	return &BlastRadius{
		Target:  target,
		Impacts: impacts,
		Level:   classify(impacts, len(s.Tables)),
	}
}

// AnalyzeColumn restricts the first hop to FKs that reference this table and
// whose referenced column set contains `columnName`, then continues the BFS
// transitively the same way AnalyzeTable does. FKs declared on this table
// whose source columns contain `columnName` are not followed. Indexes
// touching the column are reported as distance-1 impacts alongside the FK
// impacts.
func AnalyzeColumn(s *schema.Snapshot, schemaName, tableName, columnName string) *BlastRadius {
	target := schemaName + "." + tableName + "." + columnName
	qualifiedTable := schemaName + "." + tableName
	graph := buildReferencingGraph(s)

	var impacts []Impact
	visited := map[string]bool{qualifiedTable: true}
	var queue []string

	for _, fk := range s.ForeignKeys {
		if fk.ReferencedQualifiedName() != qualifiedTable {
			continue
		}
		if !containsColumn(fk.ReferencedColumns, columnName) {
			continue
		}
		referencing := fk.SourceSchema + "." + fk.SourceTable
		if visited[referencing] {
			continue
		}
		visited[referencing] = true
		impacts = append(impacts, Impact{
			Path:         []string{qualifiedTable, referencing},
			Relationship: RelationshipForeignKey,
			Distance:     1,
			Description:  "foreign key " + fk.ConstraintName + " on " + referencing + " references " + target,
			IsDirect:     true,
		})
		queue = append(queue, referencing)
	}

	for _, idx := range s.IndexesForTable(schemaName, tableName) {
		if !containsColumn(idx.Columns, columnName) {
			continue
		}
		impacts = append(impacts, Impact{
			Path:         []string{qualifiedTable},
			Relationship: RelationshipIndex,
			Distance:     1,
			Description:  "index " + idx.Name + " covers " + target,
			IsDirect:     true,
		})
	}

	impacts = append(impacts, bfsFrom(graph, queue, visited, 1)...)

	return &BlastRadius{
		Target:  target,
		Impacts: impacts,
		Level:   classify(impacts, len(s.Tables)),
	}
}

func bfs(graph map[string][]edge, start string) []Impact {
	visited := map[string]bool{start: true}
	return bfsFrom(graph, []string{start}, visited, 0)
}

// bfsFrom continues a breadth-first traversal from the given frontier,
// which is already at `startDistance` hops from the true origin. The
// visited set prevents revisits, which bounds the walk to a finite number
// of steps regardless of cycles in the FK graph.
func bfsFrom(graph map[string][]edge, frontier []string, visited map[string]bool, startDistance int) []Impact {
	var impacts []Impact
	queue := append([]string(nil), frontier...)
	distance := startDistance

	for len(queue) > 0 {
		distance++
		var next []string
		for _, node := range queue {
			for _, e := range graph[node] {
				if visited[e.to] {
					continue
				}
				visited[e.to] = true
				impacts = append(impacts, Impact{
					Path:         []string{node, e.to},
					Relationship: RelationshipForeignKey,
					Distance:     distance,
					Description:  "foreign key " + e.via.ConstraintName + " on " + e.to + " transitively depends on " + node,
					IsDirect:     distance == 1,
				})
				next = append(next, e.to)
			}
		}
		queue = next
	}

	return impacts
}

func classify(impacts []Impact, totalTables int) Level {
	if len(impacts) == 0 {
		return LevelNone
	}

	onlyDirect := true
	impactedTables := map[string]bool{}
	for _, imp := range impacts {
		if !imp.IsDirect {
			onlyDirect = false
		}
		if len(imp.Path) > 0 {
			impactedTables[imp.Path[len(imp.Path)-1]] = true
		}
	}

	if totalTables > 0 && len(impactedTables)*2 > totalTables {
		return LevelPandemic
	}
	if onlyDirect {
		return LevelContained
	}
	return LevelSpreading
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
