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
package figi

import (
	"context"
	"sort"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/penny-vault/pvledger/data"
	"github.com/rs/zerolog"
)

type knownTicker struct {
	ISIN   string `db:"isin"`
	Ticker string `db:"ticker"`
}

// LoadCacheFromDB seeds the client cache with the tickers already stored in
// the library
func (figiClient *Client) LoadCacheFromDB(ctx context.Context, db pgxscan.Querier) error {
	var known []*knownTicker
	err := pgxscan.Select(ctx, db, &known, "SELECT isin, ticker FROM securities WHERE ticker IS NOT NULL AND ticker <> ''")
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("could not load known tickers")
		return err
	}

	for _, row := range known {
		figiClient.cache.Set(row.ISIN, row.Ticker)
	}

	zerolog.Ctx(ctx).Debug().Int("NumTickers", len(known)).Msg("loaded ticker cache")
	return nil
}

// TickerRows converts an isin to ticker mapping into enrichment rows
func TickerRows(mapping map[string]string) []data.SecurityTicker {
	rows := make([]data.SecurityTicker, 0, len(mapping))
	for isin, ticker := range mapping {
		rows = append(rows, data.SecurityTicker{ISIN: isin, Ticker: ticker})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ISIN < rows[j].ISIN
	})
	return rows
}
