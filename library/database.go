// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penny-vault/pvledger/loader"
)

type Library struct {
	DBUrl string
	Name  string
	Owner string

	Pool *pgxpool.Pool
}

// Import is the outcome of one processed source file
type Import struct {
	ID         uuid.UUID `db:"id"`
	RunID      uuid.UUID `db:"run_id"`
	FileName   string    `db:"file_name"`
	Kind       string    `db:"kind"`
	Succeeded  bool      `db:"succeeded"`
	Inserted   int64     `db:"inserted"`
	Updated    int64     `db:"updated"`
	Unresolved int64     `db:"unresolved"`
	Message    string    `db:"message"`
	ImportedOn time.Time `db:"imported_on"`
}

func newPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// Connect to the database configured for the library
func (myLibrary *Library) Connect(ctx context.Context) error {
	if myLibrary.Pool != nil {
		return nil
	}

	pool, err := newPool(ctx, myLibrary.DBUrl)
	if err != nil {
		return err
	}
	myLibrary.Pool = pool

	return nil
}

// Close the database pool
func (myLibrary *Library) Close() {
	if myLibrary.Pool != nil {
		myLibrary.Pool.Close()
	}
}

// NewFromDB creates a new library object with values from the database
func NewFromDB(ctx context.Context, dbURL string) (*Library, error) {
	pool, err := newPool(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer conn.Release()

	myLibrary := Library{
		DBUrl: dbURL,
		Pool:  pool,
	}

	if err := conn.QueryRow(ctx, "SELECT name, owner FROM library LIMIT 1").Scan(&myLibrary.Name, &myLibrary.Owner); err != nil {
		pool.Close()
		return nil, fmt.Errorf("read library record: %w", err)
	}

	return &myLibrary, nil
}

// SaveDB creates a new record in the library table for this library
func (myLibrary *Library) SaveDB(ctx context.Context) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO library ("name", "owner") VALUES ($1, $2)`, myLibrary.Name, myLibrary.Owner)
	return err
}

// Loader returns a merge loader writing to the library
func (myLibrary *Library) Loader() *loader.Loader {
	return loader.New(myLibrary.Pool)
}

// KnownPayees returns the clean payees already categorized in the library,
// longest first so that the most specific one matches first.
func (myLibrary *Library) KnownPayees(ctx context.Context) ([]string, error) {
	var payees []string
	err := pgxscan.Select(ctx, myLibrary.Pool, &payees,
		`SELECT DISTINCT upper(payee) AS payee FROM payee_categories WHERE payee <> '' ORDER BY length(upper(payee)) DESC, payee`)
	if err != nil {
		return nil, fmt.Errorf("select known payees: %w", err)
	}
	return payees, nil
}

// SecuritiesWithoutTicker returns the ISIN of every security that has not
// been mapped to a ticker yet
func (myLibrary *Library) SecuritiesWithoutTicker(ctx context.Context) ([]string, error) {
	var isins []string
	err := pgxscan.Select(ctx, myLibrary.Pool, &isins,
		`SELECT isin FROM securities WHERE ticker IS NULL OR ticker = '' ORDER BY isin`)
	if err != nil {
		return nil, fmt.Errorf("select securities without ticker: %w", err)
	}
	return isins, nil
}

// SecuritiesMissingInfo returns the tickers of securities whose type or
// market is still unknown
func (myLibrary *Library) SecuritiesMissingInfo(ctx context.Context) ([]string, error) {
	var tickers []string
	err := pgxscan.Select(ctx, myLibrary.Pool, &tickers,
		`SELECT DISTINCT ticker FROM securities WHERE ticker IS NOT NULL AND ticker <> '' AND (type IS NULL OR market IS NULL) ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("select securities missing info: %w", err)
	}
	return tickers, nil
}

// SaveImport records the outcome of a processed file
func (myLibrary *Library) SaveImport(ctx context.Context, imp *Import) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}

	_, err := myLibrary.Pool.Exec(ctx, `INSERT INTO imports (id, run_id, file_name, kind, succeeded, inserted, updated, unresolved, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, imp.ID, imp.RunID, imp.FileName, imp.Kind, imp.Succeeded,
		imp.Inserted, imp.Updated, imp.Unresolved, imp.Message)
	return err
}

// RecentImports returns the last limit imports, newest first
func (myLibrary *Library) RecentImports(ctx context.Context, limit int) ([]*Import, error) {
	var imports []*Import
	err := pgxscan.Select(ctx, myLibrary.Pool, &imports,
		`SELECT id, run_id, file_name, kind, succeeded, inserted, updated, unresolved, coalesce(message, '') AS message, imported_on
FROM imports ORDER BY imported_on DESC LIMIT $1`, limit)
	return imports, err
}

// LastUpdated returns the time of the last successful import
func (myLibrary *Library) LastUpdated(ctx context.Context) (time.Time, error) {
	var lastUpdated time.Time
	err := myLibrary.Pool.QueryRow(ctx,
		"SELECT coalesce(max(imported_on), '0001-01-01'::timestamp) FROM imports WHERE succeeded").Scan(&lastUpdated)
	if err != nil {
		return time.Time{}, err
	}

	return lastUpdated, nil
}

// tableCounts returns the number of rows of every ledger table
func (myLibrary *Library) tableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var count int64
		if err := myLibrary.Pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{table}.Sanitize())).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}
	return counts, nil
}

var countedTables = []string{"banks", "currencies", "account_types", "accounts", "securities",
	"balances", "security_operations", "security_prices", "transactions"}
