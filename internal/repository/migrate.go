package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"

	entschema "github.com/joseph-ayodele/doctext/db/ent/schema"
)

// table is the DDL shape of an ent schema without code generation.
type table struct {
	name    string
	fields  []ent.Field
	indexes []ent.Index
}

var attemptTable = newTable(entschema.ExtractionAttempt{})

type entSchema interface {
	Fields() []ent.Field
	Indexes() []ent.Index
	Annotations() []schema.Annotation
}

func newTable(s entSchema) table {
	t := table{fields: s.Fields(), indexes: s.Indexes()}
	for _, a := range s.Annotations() {
		switch ann := a.(type) {
		case entsql.Annotation:
			t.name = ann.Table
		case *entsql.Annotation:
			t.name = ann.Table
		}
	}
	return t
}

// columnType maps an ent field type onto a column type for dialect d.
func columnType(d string, t field.Type) (string, error) {
	pg := d == dialect.Postgres
	switch t {
	case field.TypeUUID:
		if pg {
			return "uuid", nil
		}
		return "text", nil
	case field.TypeTime:
		if pg {
			return "timestamptz", nil
		}
		return "datetime", nil
	case field.TypeBool:
		return "boolean", nil
	case field.TypeInt64:
		return "bigint", nil
	case field.TypeInt, field.TypeInt32:
		return "integer", nil
	case field.TypeString, field.TypeEnum:
		return "text", nil
	default:
		return "", fmt.Errorf("unsupported field type %s", t)
	}
}

// statements returns CREATE TABLE and CREATE INDEX for dialect d.
func (t table) statements(d string) ([]string, error) {
	if t.name == "" {
		return nil, errors.New("schema has no table name annotation")
	}
	var err error
	create := sql.Dialect(d).String(func(b *sql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(t.name).WriteString("(")
		for i, f := range t.fields {
			desc := f.Descriptor()
			typ, terr := columnType(d, desc.Info.Type)
			if terr != nil {
				b.AddError(fmt.Errorf("column %s: %w", desc.Name, terr))
				continue
			}
			if i > 0 {
				b.Comma()
			}
			b.Ident(desc.Name).Pad().WriteString(typ)
			switch {
			case desc.Name == "id":
				b.WriteString(" PRIMARY KEY")
			case !desc.Optional:
				b.WriteString(" NOT NULL")
			}
		}
		b.WriteString(")")
		err = b.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", t.name, err)
	}

	out := []string{create}
	for _, idx := range t.indexes {
		cols := idx.Descriptor().Fields
		name := t.name + "_" + strings.Join(cols, "_")
		out = append(out, sql.Dialect(d).String(func(b *sql.Builder) {
			b.WriteString("CREATE INDEX IF NOT EXISTS ").Ident(name).
				WriteString(" ON ").Ident(t.name).
				WriteString("(").IdentComma(cols...).WriteString(")")
		}))
	}
	return out, nil
}

// validate runs the schema's string validators for the named field.
func (t table) validate(name, value string) error {
	for _, f := range t.fields {
		desc := f.Descriptor()
		if desc.Name != name {
			continue
		}
		for _, v := range desc.Validators {
			if fn, ok := v.(func(string) error); ok {
				if err := fn(value); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
		}
	}
	return nil
}

// Migrate creates the ledger table and its indexes when missing.
func (db *DB) Migrate(ctx context.Context) error {
	stmts, err := attemptTable.statements(db.dialect)
	if err != nil {
		db.logger.Error("migration failed", "table", attemptTable.name, "error", err)
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.drv.ExecContext(ctx, stmt); err != nil {
			db.logger.Error("migration failed", "statement", stmt, "error", err)
			return fmt.Errorf("migrate %s: %w", attemptTable.name, err)
		}
	}
	db.logger.Info("schema up to date", "table", attemptTable.name)
	return nil
}
