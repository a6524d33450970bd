// SPDX-License-Identifier: Apache-2.0

// Package schemachange is the closed catalogue of schema-change variants a
// Proposal can carry (§4.7): one struct per DDL operation (plus four
// governance-only, non-DDL variants), each holding the minimum data its
// migrationgen rule needs for DDL synthesis. The set is closed by
// construction — Kind() is the sole discriminator and the exhaustive
// switch lives in migrationgen, never reopened elsewhere.
package schemachange

// Kind identifies which SchemaChange variant a value carries.
type Kind string

const (
	KindCreateTable          Kind = "CreateTable"
	KindDropTable            Kind = "DropTable"
	KindRenameTable          Kind = "RenameTable"
	KindAddColumn            Kind = "AddColumn"
	KindDropColumn           Kind = "DropColumn"
	KindAlterColumn          Kind = "AlterColumn"
	KindRenameColumn         Kind = "RenameColumn"
	KindAddForeignKey        Kind = "AddForeignKey"
	KindDropForeignKey       Kind = "DropForeignKey"
	KindAddPrimaryKey        Kind = "AddPrimaryKey"
	KindDropPrimaryKey       Kind = "DropPrimaryKey"
	KindAddUniqueConstraint  Kind = "AddUniqueConstraint"
	KindDropUniqueConstraint Kind = "DropUniqueConstraint"
	KindAddIndex             Kind = "AddIndex"
	KindDropIndex            Kind = "DropIndex"
	KindSetPiiClassification Kind = "SetPiiClassification"
	KindAddTag               Kind = "AddTag"
	KindRemoveTag            Kind = "RemoveTag"
	KindSetDescription       Kind = "SetDescription"
)

// Change is implemented by every variant. ModifiesDatabase distinguishes
// DDL-emitting variants from the four governance-only ones.
type Change interface {
	Kind() Kind
	ModifiesDatabase() bool
	TargetTable() string
}

type tableTarget struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (t tableTarget) TargetTable() string { return t.Schema + "." + t.Table }

// ColumnDef describes a column for CreateTable/AddColumn.
type ColumnDef struct {
	Name              string  `json:"name"`
	DataType          string  `json:"dataType"`
	Nullable          bool    `json:"nullable"`
	DefaultValue      *string `json:"defaultValue,omitempty"`
	Unique            bool    `json:"unique"`
	PrimaryKey        bool    `json:"primaryKey"`
	PiiClassification string  `json:"piiClassification,omitempty"`
}

type CreateTable struct {
	tableTarget
	Columns []ColumnDef `json:"columns"`
}

func (CreateTable) Kind() Kind            { return KindCreateTable }
func (CreateTable) ModifiesDatabase() bool { return true }

type DropTable struct {
	tableTarget
	Cascade bool `json:"cascade"`
}

func (DropTable) Kind() Kind            { return KindDropTable }
func (DropTable) ModifiesDatabase() bool { return true }

type RenameTable struct {
	tableTarget
	NewName string `json:"newName"`
}

func (RenameTable) Kind() Kind            { return KindRenameTable }
func (RenameTable) ModifiesDatabase() bool { return true }

type AddColumn struct {
	tableTarget
	Column ColumnDef `json:"column"`
}

func (AddColumn) Kind() Kind            { return KindAddColumn }
func (AddColumn) ModifiesDatabase() bool { return true }

type DropColumn struct {
	tableTarget
	Column  string `json:"column"`
	Cascade bool   `json:"cascade"`
}

func (DropColumn) Kind() Kind            { return KindDropColumn }
func (DropColumn) ModifiesDatabase() bool { return true }

// AlterColumn's sub-changes are all optional: callers set only the ones
// they want applied. migrationgen emits one statement per populated field.
type AlterColumn struct {
	tableTarget
	Column       string  `json:"column"`
	NewType      *string `json:"newType,omitempty"`
	SetNullable  *bool   `json:"setNullable,omitempty"`
	SetDefault   *string `json:"setDefault,omitempty"`
	DropDefault  bool    `json:"dropDefault,omitempty"`
}

func (AlterColumn) Kind() Kind            { return KindAlterColumn }
func (AlterColumn) ModifiesDatabase() bool { return true }

type RenameColumn struct {
	tableTarget
	Column  string `json:"column"`
	NewName string `json:"newName"`
}

func (RenameColumn) Kind() Kind            { return KindRenameColumn }
func (RenameColumn) ModifiesDatabase() bool { return true }

type AddForeignKey struct {
	tableTarget
	ConstraintName    string   `json:"constraintName"`
	Columns           []string `json:"columns"`
	ReferencedSchema  string   `json:"referencedSchema"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnDelete          string   `json:"onDelete"`
	OnUpdate          string   `json:"onUpdate"`
}

func (AddForeignKey) Kind() Kind            { return KindAddForeignKey }
func (AddForeignKey) ModifiesDatabase() bool { return true }

type DropForeignKey struct {
	tableTarget
	ConstraintName string `json:"constraintName"`
}

func (DropForeignKey) Kind() Kind            { return KindDropForeignKey }
func (DropForeignKey) ModifiesDatabase() bool { return true }

type AddPrimaryKey struct {
	tableTarget
	Columns []string `json:"columns"`
}

func (AddPrimaryKey) Kind() Kind            { return KindAddPrimaryKey }
func (AddPrimaryKey) ModifiesDatabase() bool { return true }

type DropPrimaryKey struct {
	tableTarget
}

func (DropPrimaryKey) Kind() Kind            { return KindDropPrimaryKey }
func (DropPrimaryKey) ModifiesDatabase() bool { return true }

type AddUniqueConstraint struct {
	tableTarget
	ConstraintName string   `json:"constraintName"`
	Columns        []string `json:"columns"`
}

func (AddUniqueConstraint) Kind() Kind            { return KindAddUniqueConstraint }
func (AddUniqueConstraint) ModifiesDatabase() bool { return true }

type DropUniqueConstraint struct {
	tableTarget
	ConstraintName string `json:"constraintName"`
}

func (DropUniqueConstraint) Kind() Kind            { return KindDropUniqueConstraint }
func (DropUniqueConstraint) ModifiesDatabase() bool { return true }

type AddIndex struct {
	tableTarget
	IndexName  string   `json:"indexName"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Concurrent bool     `json:"concurrent"`
	IndexType  string   `json:"indexType,omitempty"`
}

func (AddIndex) Kind() Kind            { return KindAddIndex }
func (AddIndex) ModifiesDatabase() bool { return true }

type DropIndex struct {
	tableTarget
	IndexName  string `json:"indexName"`
	Concurrent bool   `json:"concurrent"`
}

func (DropIndex) Kind() Kind            { return KindDropIndex }
func (DropIndex) ModifiesDatabase() bool { return true }

// SetPiiClassification, AddTag, RemoveTag and SetDescription are
// governance-only: they never emit DDL, only metadata mutations tracked by
// the audit log.

type SetPiiClassification struct {
	tableTarget
	Column         string `json:"column"`
	Classification string `json:"classification"`
}

func (SetPiiClassification) Kind() Kind            { return KindSetPiiClassification }
func (SetPiiClassification) ModifiesDatabase() bool { return false }

type AddTag struct {
	tableTarget
	Tag string `json:"tag"`
}

func (AddTag) Kind() Kind            { return KindAddTag }
func (AddTag) ModifiesDatabase() bool { return false }

type RemoveTag struct {
	tableTarget
	Tag string `json:"tag"`
}

func (RemoveTag) Kind() Kind            { return KindRemoveTag }
func (RemoveTag) ModifiesDatabase() bool { return false }

type SetDescription struct {
	tableTarget
	Column      string `json:"column,omitempty"`
	Description string `json:"description"`
}

func (SetDescription) Kind() Kind            { return KindSetDescription }
func (SetDescription) ModifiesDatabase() bool { return false }
