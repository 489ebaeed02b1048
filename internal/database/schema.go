package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// KnownTables はアプリケーションが前提とするテーブルの一覧。
var KnownTables = []string{
	"users",
	"identities",
	"sessions",
	"spirits",
	"videos",
	"comments",
	"news_sources",
	"news_items",
}

// Column はinformation_schemaから取得したカラム情報。
type Column struct {
	Table      string `db:"table_name"`
	Name       string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

// SchemaReport はスキーマ診断の結果。
type SchemaReport struct {
	Columns       map[string][]Column
	MissingTables []string
}

// CheckSchema は既知テーブルのカラム構成を取得し、存在しないテーブルを報告する。
// 本番DBのスキーマずれを手動で調査するための診断用。
func CheckSchema(ctx context.Context, db sqlx.QueryerContext) (*SchemaReport, error) {
	query, args, err := sqlx.In(
		`SELECT table_name, column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name IN (?)
		 ORDER BY table_name, ordinal_position`,
		KnownTables,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema query: %w", err)
	}

	var cols []Column
	if err := sqlx.SelectContext(ctx, db, &cols, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, fmt.Errorf("failed to query information_schema: %w", err)
	}

	report := &SchemaReport{Columns: make(map[string][]Column)}
	for _, c := range cols {
		report.Columns[c.Table] = append(report.Columns[c.Table], c)
	}
	for _, table := range KnownTables {
		if _, ok := report.Columns[table]; !ok {
			report.MissingTables = append(report.MissingTables, table)
		}
	}
	sort.Strings(report.MissingTables)

	return report, nil
}
