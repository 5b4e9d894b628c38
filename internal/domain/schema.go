package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ScalarKind classifies a column for type-aware condition checking.
type ScalarKind string

const (
	ScalarString    ScalarKind = "string"
	ScalarNumber    ScalarKind = "number"
	ScalarTimestamp ScalarKind = "timestamp"
	ScalarBoolean   ScalarKind = "boolean"
)

type SchemaColumn struct {
	Name     string     `json:"name"`
	Type     ScalarKind `json:"type"`
	Nullable bool       `json:"nullable"`
}

// ForeignKey is a discovered relationship from one table's column to another
// table's column.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type SchemaTable struct {
	Name        string         `json:"name"`
	Columns     []SchemaColumn `json:"columns"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`
}

// SchemaCatalog is the identifier allow-list the compiler validates against.
// It is supplied by the schema-discovery collaborator and refreshed
// explicitly, never polled per compile.
type SchemaCatalog struct {
	DiscoveredAt time.Time     `json:"discovered_at"`
	Tables       []SchemaTable `json:"tables"`
}

func (c SchemaCatalog) Table(name string) (SchemaTable, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}

	return SchemaTable{}, false
}

func (c SchemaCatalog) Column(table, column string) (SchemaColumn, bool) {
	t, ok := c.Table(table)
	if !ok {
		return SchemaColumn{}, false
	}

	for _, col := range t.Columns {
		if col.Name == column {
			return col, true
		}
	}

	return SchemaColumn{}, false
}

// JoinSuggestion is a join condition derived from a foreign-key relationship.
type JoinSuggestion struct {
	FromTable string `json:"from_table"`
	ToTable   string `json:"to_table"`
	Condition string `json:"condition"`
}

// SuggestJoins derives join conditions between the given tables from the
// catalog's foreign keys, in both directions.
func (c SchemaCatalog) SuggestJoins(tables []string) []JoinSuggestion {
	var suggestions []JoinSuggestion

	for i, from := range tables {
		fromTable, ok := c.Table(from)
		if !ok {
			continue
		}

		for _, to := range tables[i+1:] {
			for _, fk := range fromTable.ForeignKeys {
				if fk.ReferencedTable == to {
					suggestions = append(suggestions, JoinSuggestion{
						FromTable: from,
						ToTable:   to,
						Condition: fmt.Sprintf("%s.%s = %s.%s", from, fk.Column, to, fk.ReferencedColumn),
					})
				}
			}

			toTable, ok := c.Table(to)
			if !ok {
				continue
			}

			for _, fk := range toTable.ForeignKeys {
				if fk.ReferencedTable == from {
					suggestions = append(suggestions, JoinSuggestion{
						FromTable: from,
						ToTable:   to,
						Condition: fmt.Sprintf("%s.%s = %s.%s", from, fk.ReferencedColumn, to, fk.Column),
					})
				}
			}
		}
	}

	return suggestions
}

// ScalarKindForSQLType maps an information_schema data type onto the kinds the
// condition evaluator understands.
func ScalarKindForSQLType(sqlType string) ScalarKind {
	t := strings.ToLower(sqlType)

	switch {
	case strings.Contains(t, "int"), strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "double"), strings.Contains(t, "real"), strings.Contains(t, "float"):
		return ScalarNumber
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"), strings.Contains(t, "time"):
		return ScalarTimestamp
	case strings.Contains(t, "bool"):
		return ScalarBoolean
	default:
		return ScalarString
	}
}

// SchemaProvider is the schema-discovery collaborator.
type SchemaProvider interface {
	DescribeSchema(ctx context.Context) (SchemaCatalog, error)
	Refresh(ctx context.Context) error
}
