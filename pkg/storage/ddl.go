package storage

import (
	"fmt"
	"strings"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/schema"
)

// FixedColumns are the columns every event table carries in addition to
// its leaf columns, in column order.
var FixedColumns = []string{"block_number", "log_index", "transaction_index", "address"}

// Placeholder renders the i-th (1-based) bind placeholder for a backend;
// sqlite3's driver accepts "?", pgx requires "$1", "$2", ….
type Placeholder func(i int) string

// QuestionPlaceholder is the sqlite3/mattn driver's placeholder style.
func QuestionPlaceholder(i int) string { return "?" }

// DollarPlaceholder is pgx's placeholder style.
func DollarPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

// BuildCreateTable renders a `CREATE TABLE IF NOT EXISTS` statement for
// one event table. isArray adds the `array_index` column and
// extends the primary key accordingly, per spec.md §4.4's fixed layout.
func BuildCreateTable(name string, columns []schema.Column, columnType func(schema.Column) string, isArray bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(name))
	fmt.Fprintf(&b, "\tblock_number INTEGER NOT NULL,\n")
	fmt.Fprintf(&b, "\tlog_index INTEGER NOT NULL,\n")
	fmt.Fprintf(&b, "\ttransaction_index INTEGER NOT NULL,\n")
	fmt.Fprintf(&b, "\taddress %s NOT NULL,\n", columnType(schema.Column{Kind: descriptor.KindAddress}))
	if isArray {
		fmt.Fprintf(&b, "\tarray_index INTEGER NOT NULL,\n")
	}
	for _, col := range columns {
		fmt.Fprintf(&b, "\t%s %s NOT NULL,\n", quoteIdent(col.Name), columnType(col))
	}
	if isArray {
		fmt.Fprintf(&b, "\tPRIMARY KEY (block_number, log_index, array_index)\n")
	} else {
		fmt.Fprintf(&b, "\tPRIMARY KEY (block_number, log_index)\n")
	}
	b.WriteString(")")
	return b.String()
}

// BuildInsert renders an `INSERT INTO table (...) VALUES (...)` statement
// for one event table, fixed columns first, then (for array tables) the
// array index, then the leaf columns - the exact column order Update's
// inserts must bind arguments in.
func BuildInsert(name string, columns []schema.Column, isArray bool, ph Placeholder) string {
	names := append([]string{}, FixedColumns...)
	if isArray {
		names = append(names, "array_index")
	}
	for _, col := range columns {
		names = append(names, col.Name)
	}
	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
		placeholders[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// BuildDelete renders a `DELETE FROM table WHERE block_number >= $1`
// statement for one event table.
func BuildDelete(name string, ph Placeholder) string {
	return fmt.Sprintf("DELETE FROM %s WHERE block_number >= %s", quoteIdent(name), ph(1))
}

// quoteIdent double-quotes a SQL identifier; safe here because every
// table/column name passed through schema.SanitizeName first, which
// strips everything but ASCII alphanumerics and underscore.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
