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
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/penny-vault/pvledger/data"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStatusCode = errors.New("market data source returned an invalid status code")
	ErrNoData            = errors.New("market data source returned no data")
)

// Bar is one day of auto-adjusted prices
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Info describes the instrument behind a ticker
type Info struct {
	Ticker string
	Type   string
	Market string
}

// PriceProvider fetches daily history and instrument details for a ticker.
// History returns the bars of [start, endExclusive).
type PriceProvider interface {
	Name() string
	History(ctx context.Context, ticker string, start, endExclusive time.Time) ([]*Bar, error)
	Info(ctx context.Context, ticker string) (*Info, error)
}

// FetchError is a failed fetch for one security. It never aborts fetching
// the other securities.
type FetchError struct {
	ISIN   string
	Ticker string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("fetch %s: %v", e.ISIN, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Ticker, e.ISIN, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PriceRows converts bars fetched for ticker into price rows keyed by isin
func PriceRows(isin string, bars []*Bar) []data.SecurityPrice {
	rows := make([]data.SecurityPrice, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, data.SecurityPrice{
			ISIN:   isin,
			Date:   bar.Date,
			Open:   decimal.NewFromFloat(bar.Open),
			Close:  decimal.NewFromFloat(bar.Close),
			High:   decimal.NewFromFloat(bar.High),
			Low:    decimal.NewFromFloat(bar.Low),
			Volume: bar.Volume,
		})
	}

	return rows
}

// Row converts info into an enrichment row; empty values stay NULL
func (info *Info) Row() data.SecurityInfo {
	row := data.SecurityInfo{Ticker: info.Ticker}
	if info.Type != "" {
		val := info.Type
		row.Type = &val
	}
	if info.Market != "" {
		val := info.Market
		row.Market = &val
	}
	return row
}
