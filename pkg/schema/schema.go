// Package schema plans the relational schema derived from an event
// descriptor: one primary table, plus one auxiliary table per top-level
// dynamic array, with deterministic, collision-free column and table
// names. How each leaf Kind maps to a concrete SQL column type is left to
// the storage backend, per spec.md §4.2/§4.3: this package only names
// tables and columns and records each column's Kind.
package schema

import (
	"fmt"
	"strings"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

// Column is one leaf field, already assigned to a table and given a
// unique, sanitized name.
type Column struct {
	Kind descriptor.Kind
	// Size is the leaf's bit width (int/uint) or byte length
	// (fixed_bytes); 0 for kinds it does not disambiguate.
	Size int
	Name string
}

// Table is a primary or dynamic-array table: a sanitized name and its
// ordered columns.
type Table struct {
	Name    string
	Columns []Column
}

// Tables is the complete schema plan for one event.
type Tables struct {
	Primary       Table
	DynamicArrays []Table
}

// Plan computes the schema for event, named name. name must already be a
// sanitized, non-reserved, non-underscore-prefixed identifier; Plan
// rejects it otherwise so that stored table names are always exactly what
// the caller configured, never silently altered.
//
// Grounded on the Rust ancestor's `database::event_to_tables` module,
// including its exact column/table naming scheme and its rejection of
// nested dynamic arrays.
func Plan(name string, event *descriptor.Event) (Tables, error) {
	sanitized := SanitizeName(name)
	if sanitized != name {
		return Tables{}, fmt.Errorf("event name %q is not valid, try %q", name, sanitized)
	}
	if strings.HasPrefix(name, "_") {
		return Tables{}, fmt.Errorf("event %q starts with an underscore, which isn't allowed", name)
	}

	if hasNestedDynamicArrays(event) {
		return Tables{}, fmt.Errorf("event %q contains a dynamic array inside of a dynamic array, which isn't supported", name)
	}

	p := &planner{
		eventName: name,
		primary:   Table{Name: name},
	}
	descriptor.VisitEvent(event, p)

	return Tables{Primary: p.primary, DynamicArrays: p.dynamicArrays}, nil
}

// planner implements descriptor.TypeVisitor, building up the primary
// table and the dynamic array tables as it walks every top-level field.
type planner struct {
	eventName     string
	primary       Table
	dynamicArrays []Table
	// arrayStack holds the index (into dynamicArrays) of the dynamic
	// array table currently receiving leaves; nil/empty means leaves go
	// to the primary table. Only ever has 0 or 1 entries since nested
	// dynamic arrays are rejected up front, but a stack keeps the logic
	// honest about TupleStart/FixedArrayStart nesting beneath an array.
	arrayStack []int
}

func (p *planner) TupleStart(name string)                {}
func (p *planner) TupleEnd()                              {}
func (p *planner) FixedArrayStart(length int, name string) {}
func (p *planner) FixedArrayEnd()                          {}

func (p *planner) ArrayStart(name string) {
	if name == "" {
		name = "array"
	}
	index := len(p.dynamicArrays)
	p.dynamicArrays = append(p.dynamicArrays, Table{
		Name: SanitizeName(fmt.Sprintf("%s_%s_%d", p.eventName, name, index)),
	})
	p.arrayStack = append(p.arrayStack, index)
}

func (p *planner) ArrayEnd() {
	p.arrayStack = p.arrayStack[:len(p.arrayStack)-1]
}

func (p *planner) Leaf(kind descriptor.Kind, size int, name string) {
	table := &p.primary
	if len(p.arrayStack) > 0 {
		table = &p.dynamicArrays[p.arrayStack[len(p.arrayStack)-1]]
	}
	if name == "" {
		name = "field"
	}
	col := Column{
		Kind: kind,
		Size: size,
		Name: SanitizeName(fmt.Sprintf("%s_%d", name, len(table.Columns))),
	}
	table.Columns = append(table.Columns, col)
}

// hasNestedDynamicArrays reports whether any field contains a dynamic
// array nested inside another dynamic array.
func hasNestedDynamicArrays(event *descriptor.Event) bool {
	v := &arrayDepthVisitor{}
	descriptor.VisitEvent(event, v)
	return v.max > 1
}

type arrayDepthVisitor struct {
	level int
	max   int
}

func (v *arrayDepthVisitor) TupleStart(name string)                {}
func (v *arrayDepthVisitor) TupleEnd()                              {}
func (v *arrayDepthVisitor) FixedArrayStart(length int, name string) {}
func (v *arrayDepthVisitor) FixedArrayEnd()                          {}
func (v *arrayDepthVisitor) Leaf(kind descriptor.Kind, size int, name string) {}

func (v *arrayDepthVisitor) ArrayStart(name string) {
	v.level++
	if v.level > v.max {
		v.max = v.level
	}
}

func (v *arrayDepthVisitor) ArrayEnd() {
	v.level--
}

// reservedWords is the set of SQL identifiers that, sanitized, must gain a
// trailing underscore to avoid colliding with a keyword. Not exhaustive of
// every backend's reserved-word list; it covers the ANSI SQL core plus the
// extensions SQLite and Postgres both reserve, which is what matters since
// table/column names here must be legal identifiers on both backends.
var reservedWords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "from": {},
	"where": {}, "table": {}, "index": {}, "create": {}, "drop": {},
	"alter": {}, "into": {}, "values": {}, "set": {}, "and": {}, "or": {},
	"not": {}, "null": {}, "primary": {}, "key": {}, "foreign": {},
	"references": {}, "unique": {}, "check": {}, "default": {}, "group": {},
	"order": {}, "by": {}, "having": {}, "join": {}, "inner": {},
	"outer": {}, "left": {}, "right": {}, "on": {}, "as": {}, "distinct": {},
	"limit": {}, "offset": {}, "union": {}, "all": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "begin": {},
	"commit": {}, "rollback": {}, "transaction": {}, "view": {},
	"trigger": {}, "constraint": {}, "column": {}, "in": {}, "is": {},
	"like": {}, "between": {}, "exists": {}, "cast": {}, "collate": {},
	"if": {},
}

// SanitizeName is the identifier sanitizer spec.md §4.2 requires:
// ASCII-alphanumeric-or-underscore characters are kept, all others are
// dropped; an empty result or one that wouldn't start with a letter/
// underscore gets a leading underscore; a result that collides with a
// reserved SQL keyword (case-insensitively) gets a trailing underscore.
// It is idempotent: SanitizeName(SanitizeName(s)) == SanitizeName(s).
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	result := b.String()
	if result == "" || !isAllowedFirst(result[0]) {
		result = "_" + result
	}
	if _, reserved := reservedWords[strings.ToLower(result)]; reserved {
		result += "_"
	}
	return result
}

func isAllowedFirst(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}
