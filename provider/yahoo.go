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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/pkginfo"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	YAHOO_CHART_URL string = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// Yahoo reads daily prices from the Yahoo Finance chart API
type Yahoo struct {
	BaseURL string

	client  *resty.Client
	limiter *rate.Limiter
}

// NewYahoo creates a Yahoo Finance client issuing at most rateLimit
// requests per minute
func NewYahoo(baseURL string, rateLimit int) *Yahoo {
	if baseURL == "" {
		baseURL = YAHOO_CHART_URL
	}

	if rateLimit <= 0 {
		rateLimit = 60
	}

	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", pkginfo.UserAgent())

	return &Yahoo{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(rateLimit)/float64(61)), 1),
	}
}

func (yahoo *Yahoo) Name() string {
	return "yahoo"
}

func (yahoo *Yahoo) chart(ctx context.Context, ticker string, params map[string]string) (gjson.Result, error) {
	if err := yahoo.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	url := fmt.Sprintf("%s/%s", yahoo.BaseURL, ticker)
	resp, err := yahoo.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("yahoo request: %w", err)
	}

	body := gjson.ParseBytes(resp.Body())
	if resp.StatusCode() >= 300 {
		description := body.Get("chart.error.description").String()
		zerolog.Ctx(ctx).Error().Int("StatusCode", resp.StatusCode()).Str("Ticker", ticker).Str("URL", url).Str("Description", description).Msg("yahoo returned an invalid HTTP response")
		return gjson.Result{}, fmt.Errorf("%w: %d %s", ErrInvalidStatusCode, resp.StatusCode(), description)
	}

	result := body.Get("chart.result.0")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}

	return result, nil
}

// History returns auto-adjusted daily bars: open, high, low and close are
// scaled by the ratio of adjusted to raw close. Days without a close are
// skipped.
func (yahoo *Yahoo) History(ctx context.Context, ticker string, start, endExclusive time.Time) ([]*Bar, error) {
	result, err := yahoo.chart(ctx, ticker, map[string]string{
		"period1":              fmt.Sprintf("%d", data.Day(start).Unix()),
		"period2":              fmt.Sprintf("%d", data.Day(endExclusive).Unix()),
		"interval":             "1d",
		"events":               "div,split",
		"includeAdjustedClose": "true",
	})
	if err != nil {
		return nil, err
	}

	gmtOffset := result.Get("meta.gmtoffset").Int()
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	adjCloses := result.Get("indicators.adjclose.0.adjclose").Array()

	at := func(values []gjson.Result, idx int) gjson.Result {
		if idx < len(values) {
			return values[idx]
		}
		return gjson.Result{}
	}

	bars := make([]*Bar, 0, len(timestamps))
	for idx, ts := range timestamps {
		closePrice := at(closes, idx)
		if closePrice.Type != gjson.Number || closePrice.Float() == 0 {
			continue
		}

		date := data.Day(time.Unix(ts.Int()+gmtOffset, 0).UTC())
		if date.Before(data.Day(start)) || !date.Before(data.Day(endExclusive)) {
			continue
		}

		factor := 1.0
		if adj := at(adjCloses, idx); adj.Type == gjson.Number {
			factor = adj.Float() / closePrice.Float()
		}

		bars = append(bars, &Bar{
			Date:   date,
			Open:   adjust(at(opens, idx).Float(), factor),
			High:   adjust(at(highs, idx).Float(), factor),
			Low:    adjust(at(lows, idx).Float(), factor),
			Close:  adjust(closePrice.Float(), factor),
			Volume: at(volumes, idx).Int(),
		})
	}

	zerolog.Ctx(ctx).Debug().Str("Ticker", ticker).Int("NumBars", len(bars)).Msg("downloaded yahoo history")

	return bars, nil
}

func adjust(value, factor float64) float64 {
	return math.Round(value*factor*1e6) / 1e6
}

// Info returns the instrument type and exchange of ticker
func (yahoo *Yahoo) Info(ctx context.Context, ticker string) (*Info, error) {
	result, err := yahoo.chart(ctx, ticker, map[string]string{
		"range":    "1d",
		"interval": "1d",
	})
	if err != nil {
		return nil, err
	}

	meta := result.Get("meta")
	return &Info{
		Ticker: ticker,
		Type:   meta.Get("instrumentType").String(),
		Market: meta.Get("exchangeName").String(),
	}, nil
}
