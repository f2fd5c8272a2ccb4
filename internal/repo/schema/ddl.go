package schema

import (
	"fmt"
	"strings"
)

// SQLiteDDL renders s as a sequence of SQLite statements: CREATE TABLE,
// CREATE INDEX, CREATE VIRTUAL TABLE ... USING fts5, and the
// insert/update/delete triggers that keep an FTS mirror in sync, grounded
// on internal/store/sqlite_bm25.go's fts_content virtual-table pattern.
func SQLiteDDL(s Schema) []string {
	var stmts []string
	for _, t := range s.Tables {
		stmts = append(stmts, tableDDL(t))
		for _, idx := range t.Indexes {
			stmts = append(stmts, indexDDL(t.Name, idx))
		}
		if t.FTS != nil {
			stmts = append(stmts, ftsDDL(*t.FTS)...)
			stmts = append(stmts, ftsTriggerDDL(*t.FTS)...)
		}
	}
	return stmts
}

func tableDDL(t Table) string {
	var cols []string
	var pks []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pks = append(pks, quoteIdent(c.Name))
		}
	}
	for _, c := range t.Columns {
		if len(pks) > 1 {
			c.PrimaryKey = false
		}
		cols = append(cols, columnDDL(c))
	}
	if len(pks) > 1 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		cols = append(cols, foreignKeyDDL(fk))
	}
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 {
			// no table-level constraint is added for indexes; SQLiteDDL
			// emits every index, single- or multi-column, as its own
			// CREATE INDEX statement.
			continue
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(t.Name), strings.Join(cols, ",\n\t"))
}

func columnDDL(c Column) string {
	parts := []string{quoteIdent(c.Name), sqliteType(c.Type)}
	if c.PrimaryKey && singlePK(c) {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT", c.Default)
	}
	return strings.Join(parts, " ")
}

// singlePK reports whether the table-level PRIMARY KEY clause should be
// emitted inline on the column itself; callers with composite keys handle
// that case in tableDDL instead. A single Column never knows its table's
// other columns, so this always returns true here and tableDDL suppresses
// the inline PRIMARY KEY when more than one column is marked PrimaryKey.
func singlePK(Column) bool { return true }

func foreignKeyDDL(fk ForeignKey) string {
	clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
		quoteIdent(fk.Column), quoteIdent(fk.RefTable), quoteIdent(fk.RefColumn))
	if fk.OnDelete != "" {
		clause += " ON DELETE " + fk.OnDelete
	}
	return clause
}

func indexDDL(table string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, quoteIdent(idx.Name), quoteIdent(table), strings.Join(quoted, ", "))
}

func ftsDDL(f FTSMirror) []string {
	return []string{fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, content='%s', content_rowid='rowid')",
		quoteIdent(f.Name), strings.Join(f.ContentColumn, ", "), f.ContentTable,
	)}
}

// ftsTriggerDDL emits the standard external-content FTS5 sync triggers:
// mirror every insert/update/delete on the content table into the shadow
// index using the 'delete' command row for updates and deletes.
func ftsTriggerDDL(f FTSMirror) []string {
	cols := strings.Join(f.ContentColumn, ", ")
	newCols := prefixColumns("new", f.ContentColumn)

	insertTrigger := fmt.Sprintf(
		"CREATE TRIGGER IF NOT EXISTS %[1]s_ai AFTER INSERT ON %[2]s BEGIN\n"+
			"\tINSERT INTO %[1]s(rowid, %[3]s) VALUES (new.rowid, %[4]s);\n"+
			"END",
		f.Name, f.ContentTable, cols, newCols)

	deleteTrigger := fmt.Sprintf(
		"CREATE TRIGGER IF NOT EXISTS %[1]s_ad AFTER DELETE ON %[2]s BEGIN\n"+
			"\tINSERT INTO %[1]s(%[1]s, rowid, %[3]s) VALUES ('delete', old.rowid, %[4]s);\n"+
			"END",
		f.Name, f.ContentTable, cols, prefixColumns("old", f.ContentColumn))

	updateTrigger := fmt.Sprintf(
		"CREATE TRIGGER IF NOT EXISTS %[1]s_au AFTER UPDATE ON %[2]s BEGIN\n"+
			"\tINSERT INTO %[1]s(%[1]s, rowid, %[3]s) VALUES ('delete', old.rowid, %[4]s);\n"+
			"\tINSERT INTO %[1]s(rowid, %[3]s) VALUES (new.rowid, %[5]s);\n"+
			"END",
		f.Name, f.ContentTable, cols, prefixColumns("old", f.ContentColumn), newCols)

	return []string{insertTrigger, deleteTrigger, updateTrigger}
}

func prefixColumns(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + c
	}
	return strings.Join(out, ", ")
}

func sqliteType(d Domain) string {
	switch d {
	case Text, UUID, Timestamp, JSON:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Boolean:
		return "BOOLEAN"
	case Blob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
