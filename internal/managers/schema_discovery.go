package managers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// pgSchemaProvider discovers the relational schema backing agent queries from
// information_schema. The catalog is cached until an explicit Refresh; the
// compiler never triggers a discovery round trip per compile.
type pgSchemaProvider struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	catalog domain.SchemaCatalog
	loaded  bool
}

type PGSchemaProviderDependencies struct {
	Pool *pgxpool.Pool
}

func NewPGSchemaProvider(deps PGSchemaProviderDependencies) domain.SchemaProvider {
	return &pgSchemaProvider{pool: deps.Pool}
}

func (p *pgSchemaProvider) DescribeSchema(ctx context.Context) (domain.SchemaCatalog, error) {
	p.mu.RLock()
	if p.loaded {
		catalog := p.catalog
		p.mu.RUnlock()
		return catalog, nil
	}
	p.mu.RUnlock()

	if err := p.Refresh(ctx); err != nil {
		return domain.SchemaCatalog{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.catalog, nil
}

func (p *pgSchemaProvider) Refresh(ctx context.Context) error {
	tables, err := p.discoverColumns(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover columns: %w", err)
	}

	if err := p.discoverForeignKeys(ctx, tables); err != nil {
		return fmt.Errorf("failed to discover foreign keys: %w", err)
	}

	ordered := make([]domain.SchemaTable, 0, len(tables))
	for _, name := range sortedTableNames(tables) {
		ordered = append(ordered, *tables[name])
	}

	p.mu.Lock()
	p.catalog = domain.SchemaCatalog{
		DiscoveredAt: time.Now().UTC(),
		Tables:       ordered,
	}
	p.loaded = true
	p.mu.Unlock()

	log.Info().Int("tables", len(ordered)).Msg("Schema catalog refreshed")

	return nil
}

const columnsQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

func (p *pgSchemaProvider) discoverColumns(ctx context.Context) (map[string]*domain.SchemaTable, error) {
	rows, err := p.pool.Query(ctx, columnsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := map[string]*domain.SchemaTable{}

	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, err
		}

		table, ok := tables[tableName]
		if !ok {
			table = &domain.SchemaTable{Name: tableName}
			tables[tableName] = table
		}

		table.Columns = append(table.Columns, domain.SchemaColumn{
			Name:     columnName,
			Type:     domain.ScalarKindForSQLType(dataType),
			Nullable: isNullable == "YES",
		})
	}

	return tables, rows.Err()
}

const foreignKeysQuery = `
SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'`

func (p *pgSchemaProvider) discoverForeignKeys(ctx context.Context, tables map[string]*domain.SchemaTable) error {
	rows, err := p.pool.Query(ctx, foreignKeysQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, referencedTable, referencedColumn string
		if err := rows.Scan(&tableName, &columnName, &referencedTable, &referencedColumn); err != nil {
			return err
		}

		table, ok := tables[tableName]
		if !ok {
			continue
		}

		table.ForeignKeys = append(table.ForeignKeys, domain.ForeignKey{
			Column:           columnName,
			ReferencedTable:  referencedTable,
			ReferencedColumn: referencedColumn,
		})
	}

	return rows.Err()
}

func sortedTableNames(tables map[string]*domain.SchemaTable) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
