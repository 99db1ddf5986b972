// Package schema is the topic schema registry: a static, declarative lookup
// from a log topic to the rule that turns its messages into rows of one
// destination table.
//
// A Rule carries every per-table special case as data (derived columns,
// foreign-key resolution, blob extraction), so normalization never branches
// on table names.
package schema

import "fmt"

// Type is a destination scalar type.
type Type string

const (
	TypeText    Type = "text"
	TypeInt32   Type = "int32"
	TypeInt64   Type = "int64"
	TypeFloat32 Type = "float32"
	TypeFloat64 Type = "float64"

	// Reference-table only.
	TypeKey      Type = "key" // short text usable in UNIQUE constraints
	TypeBool     Type = "bool"
	TypeIdentity Type = "identity"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeInt32, TypeInt64, TypeFloat32, TypeFloat64, TypeKey, TypeBool, TypeIdentity:
		return true
	}
	return false
}

// Field maps one source message field to a destination column.
// Source may be a dotted path into nested message fields ("status.service",
// "K.0").
type Field struct {
	Source string
	Column string
	Type   Type
}

// DerivedKind selects the formula of a Derived column.
type DerivedKind string

const (
	// DeriveTime computes Inputs[0] + Inputs[1]*Scale.
	DeriveTime DerivedKind = "time"
	// DeriveConstant fills every row with Value.
	DeriveConstant DerivedKind = "constant"
	// DeriveDatetime formats Inputs[0] (unix seconds) as "2006-01-02 15:04:05" UTC.
	DeriveDatetime DerivedKind = "datetime"
	// DeriveNull fills every row with NULL.
	DeriveNull DerivedKind = "null"
	// DeriveIndex numbers the rows of a topic in arrival order from 0.
	DeriveIndex DerivedKind = "index"
)

// Derived is a synthesized column computed from columns already in the frame.
type Derived struct {
	Column string
	Kind   DerivedKind
	Inputs []string
	Scale  float64
	Value  any
	Type   Type
}

// ForeignKey declares that Source holds a natural key to resolve against
// RefTable.RefColumn. The surrogate id is written to Column and Source is
// dropped. Trim lists the characters stripped from both ends of the value.
type ForeignKey struct {
	Source    string
	Column    string
	RefTable  string
	RefColumn string
	Trim      string
}

// Blob declares that Source carries a binary payload that is written to the
// blob store instead of the table. The payload column is dropped and replaced
// by whichever of the output columns are non-empty.
type Blob struct {
	Source         string
	Ext            string // file extension of stored payloads, e.g. ".jpg"
	HashColumn     string
	LocationColumn string
	SizeColumn     string
	TimeColumn     string
}

// Columns returns the non-empty output columns in a fixed order.
func (b Blob) Columns() []string {
	var out []string
	for _, c := range []string{b.HashColumn, b.LocationColumn, b.SizeColumn, b.TimeColumn} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Column is a destination column that is not produced by normalization, such
// as a nullable column filled in later by a correction pass.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	Default  string
}

// Rule is the normalization contract of one topic.
type Rule struct {
	Topic      string
	Table      string
	Generation string

	// SessionColumn receives the session surrogate id on every row.
	SessionColumn string

	// Fields lists the source fields extracted by the frame builder, in order.
	Fields  []Field
	Derived []Derived

	ForeignKey *ForeignKey
	Blob       *Blob

	// Columns is the destination column order used for the bulk load.
	Columns []string

	// SecondsColumn and NanosColumn name the composite timestamp columns.
	SecondsColumn string
	NanosColumn   string

	// IndexColumn holds the arrival position of the message within its
	// topic. Header stamps repeat, so rows are told apart by position.
	IndexColumn string

	// Unique is the per-row identity inside the destination table. A repeated
	// load of the same session violates it.
	Unique []string

	Extra []Column

	// SensorID is the sensors row the topic belongs to; 0 when the table has
	// no sensor column.
	SensorID int64
}

// RequestedFields returns the source field names the frame builder extracts.
func (r Rule) RequestedFields() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Source
	}
	return out
}

// Types maps every destination column in r.Columns to its scalar type.
func (r Rule) Types() map[string]Type {
	types := make(map[string]Type, len(r.Columns))
	if r.SessionColumn != "" {
		types[r.SessionColumn] = TypeInt64
	}
	for _, f := range r.Fields {
		if r.Blob != nil && f.Source == r.Blob.Source {
			continue
		}
		types[f.Column] = f.Type
	}
	for _, d := range r.Derived {
		types[d.Column] = d.Type
	}
	if fk := r.ForeignKey; fk != nil {
		types[fk.Column] = TypeInt64
	}
	if b := r.Blob; b != nil {
		if b.HashColumn != "" {
			types[b.HashColumn] = TypeText
		}
		if b.LocationColumn != "" {
			types[b.LocationColumn] = TypeText
		}
		if b.SizeColumn != "" {
			types[b.SizeColumn] = TypeInt64
		}
		if b.TimeColumn != "" {
			types[b.TimeColumn] = TypeFloat64
		}
	}
	return types
}

// RenameMap returns source name → destination column for every extracted
// field that keeps its column after normalization. Foreign-key and blob
// sources are excluded because normalization replaces them.
func (r Rule) RenameMap() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		if r.ForeignKey != nil && f.Source == r.ForeignKey.Source {
			continue
		}
		if r.Blob != nil && f.Source == r.Blob.Source {
			continue
		}
		m[f.Source] = f.Column
	}
	return m
}

// NormalizedWidth is the number of columns a frame built for r has after the
// session, derived, foreign-key and blob steps, before the count check.
func (r Rule) NormalizedWidth() int {
	n := len(r.Fields) + len(r.Derived)
	if r.SessionColumn != "" {
		n++
	}
	if r.Blob != nil {
		n += len(r.Blob.Columns()) - 1
	}
	return n
}

// validate checks r for internal consistency.
func (r Rule) validate() error {
	if r.Topic == "" || r.Table == "" {
		return fmt.Errorf("schema: rule needs topic and table (topic=%q table=%q)", r.Topic, r.Table)
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("schema: %s: no destination columns", r.Topic)
	}
	if w := r.NormalizedWidth(); w != len(r.Columns) {
		return fmt.Errorf("schema: %s: rule produces %d columns, table %s declares %d",
			r.Topic, w, r.Table, len(r.Columns))
	}

	sources := make(map[string]bool, len(r.Fields))
	for _, f := range r.Fields {
		if sources[f.Source] {
			return fmt.Errorf("schema: %s: duplicate source field %q", r.Topic, f.Source)
		}
		sources[f.Source] = true
		if !f.Type.Valid() {
			return fmt.Errorf("schema: %s: field %q has unknown type %q", r.Topic, f.Source, f.Type)
		}
	}
	for _, d := range r.Derived {
		switch d.Kind {
		case DeriveTime, DeriveConstant, DeriveDatetime, DeriveNull, DeriveIndex:
		default:
			return fmt.Errorf("schema: %s: derived %q has unknown kind %q", r.Topic, d.Column, d.Kind)
		}
		if d.Kind == DeriveTime && len(d.Inputs) != 2 || d.Kind == DeriveDatetime && len(d.Inputs) != 1 {
			return fmt.Errorf("schema: %s: derived %q has %d inputs", r.Topic, d.Column, len(d.Inputs))
		}
		for _, in := range d.Inputs {
			if !sources[in] {
				return fmt.Errorf("schema: %s: derived %q reads %q which is not extracted", r.Topic, d.Column, in)
			}
		}
	}
	if fk := r.ForeignKey; fk != nil && !sources[fk.Source] {
		return fmt.Errorf("schema: %s: foreign key source %q is not extracted", r.Topic, fk.Source)
	}
	if b := r.Blob; b != nil && !sources[b.Source] {
		return fmt.Errorf("schema: %s: blob source %q is not extracted", r.Topic, b.Source)
	}

	types := r.Types()
	for _, c := range r.Columns {
		if _, ok := types[c]; !ok {
			return fmt.Errorf("schema: %s: destination column %q has no producer", r.Topic, c)
		}
	}
	if r.IndexColumn != "" {
		if _, ok := types[r.IndexColumn]; !ok {
			return fmt.Errorf("schema: %s: index column %q is not a destination column", r.Topic, r.IndexColumn)
		}
	}
	for _, c := range r.Unique {
		if _, ok := types[c]; !ok {
			return fmt.Errorf("schema: %s: unique column %q is not a destination column", r.Topic, c)
		}
	}
	return nil
}

// ParamRule describes a sensor-parameter topic: the first message of Topic is
// upserted into Table, keyed by the whole parameter tuple.
type ParamRule struct {
	Topic    string
	Table    string
	SensorID int64
	Fields   []Field
}

// Columns returns the parameter table columns in insert order, including the
// session and sensor columns.
func (p ParamRule) Columns() []string {
	out := make([]string, 0, len(p.Fields)+2)
	out = append(out, "bag_files_id", "sensors_id")
	for _, f := range p.Fields {
		out = append(out, f.Column)
	}
	return out
}
