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
package coverage

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/penny-vault/pvledger/data"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Aggregate is the operation history of one security reduced to the values
// the coverage rule needs. It is computed over every operation of the
// security, not per round trip.
type Aggregate struct {
	ISIN           string          `db:"isin"`
	Ticker         *string         `db:"ticker"`
	FirstPurchase  *time.Time      `db:"first_purchase"`
	TotalPurchased decimal.Decimal `db:"total_purchased"`
	LastSale       *time.Time      `db:"last_sale"`
	TotalSold      decimal.Decimal `db:"total_sold"`
	LastImported   *time.Time      `db:"last_imported"`
}

// Window is the range of days whose prices still have to be fetched for a
// security. EndExclusive is the day after the last needed day.
type Window struct {
	ISIN         string
	Ticker       string
	Start        time.Time
	EndExclusive time.Time
}

func (window Window) String() string {
	return fmt.Sprintf("%s (%s) [%s, %s)", window.Ticker, window.ISIN,
		window.Start.Format(time.DateOnly), window.EndExclusive.Format(time.DateOnly))
}

func (window Window) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ISIN", window.ISIN)
	e.Str("Ticker", window.Ticker)
	e.Time("Start", window.Start)
	e.Time("EndExclusive", window.EndExclusive)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Resolver computes price fetch windows from the operations and prices
// already in the library.
type Resolver struct {
	db    Querier
	today func() time.Time
}

func NewResolver(db Querier) *Resolver {
	return &Resolver{
		db:    db,
		today: data.Today,
	}
}

const aggregateSQL = `SELECT s.isin, s.ticker,
	MIN(o.date) FILTER (WHERE o.operation_type = 'purchase') AS first_purchase,
	COALESCE(SUM(ABS(o.quantity)) FILTER (WHERE o.operation_type = 'purchase'), 0) AS total_purchased,
	MAX(o.date) FILTER (WHERE o.operation_type = 'sale') AS last_sale,
	COALESCE(SUM(ABS(o.quantity)) FILTER (WHERE o.operation_type = 'sale'), 0) AS total_sold,
	(SELECT MAX(p.date) FROM security_prices p WHERE p.security_id = s.id) AS last_imported
FROM securities s
JOIN security_operations o ON o.security_id = s.id
GROUP BY s.id, s.isin, s.ticker
ORDER BY s.isin`

// Aggregates reads the per-security operation aggregates and price
// watermarks.
func (resolver *Resolver) Aggregates(ctx context.Context) ([]*Aggregate, error) {
	aggregates := make([]*Aggregate, 0, 32)
	if err := pgxscan.Select(ctx, resolver.db, &aggregates, aggregateSQL); err != nil {
		return nil, fmt.Errorf("select security aggregates: %w", err)
	}
	return aggregates, nil
}

// Windows returns the fetch window of every security whose prices are
// behind its position.
func (resolver *Resolver) Windows(ctx context.Context) ([]Window, error) {
	aggregates, err := resolver.Aggregates(ctx)
	if err != nil {
		return nil, err
	}

	windows := Resolve(aggregates, resolver.today())
	zerolog.Ctx(ctx).Info().Int("Securities", len(aggregates)).Int("Windows", len(windows)).Msg("resolved price coverage")
	return windows, nil
}

// Resolve applies the coverage rule to each aggregate:
//
//	end   = last sale when everything bought was sold, else today
//	start = the later of first purchase and last imported price (or EpochFloor)
//
// A security is left out when it has no ticker, was never purchased, or
// when end is not after its last imported price.
func Resolve(aggregates []*Aggregate, today time.Time) []Window {
	today = data.Day(today)
	windows := make([]Window, 0, len(aggregates))

	for _, agg := range aggregates {
		window, ok := resolveOne(agg, today)
		if ok {
			windows = append(windows, window)
		}
	}

	return windows
}

func resolveOne(agg *Aggregate, today time.Time) (Window, bool) {
	if agg.Ticker == nil || *agg.Ticker == "" {
		return Window{}, false
	}

	if agg.FirstPurchase == nil || !agg.TotalPurchased.IsPositive() {
		return Window{}, false
	}

	watermark := data.EpochFloor
	if agg.LastImported != nil {
		watermark = data.Day(*agg.LastImported)
	}

	end := today
	if agg.TotalSold.Equal(agg.TotalPurchased) {
		if agg.LastSale == nil {
			return Window{}, false
		}
		end = data.Day(*agg.LastSale)
	}

	if !end.After(watermark) {
		return Window{}, false
	}

	start := data.Day(*agg.FirstPurchase)
	if watermark.After(start) {
		start = watermark
	}

	return Window{
		ISIN:         agg.ISIN,
		Ticker:       *agg.Ticker,
		Start:        start,
		EndExclusive: data.AddDays(end, 1),
	}, true
}
