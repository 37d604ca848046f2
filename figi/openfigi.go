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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	OPENFIGI_MAPPING_URL string = "https://api.openfigi.com/v3/mapping"
	DefaultExchange      string = "FP"

	// requests without an api key are limited to 10 jobs each
	maxJobsWithKey    = 100
	maxJobsWithoutKey = 10
)

var (
	ErrInvalidStatusCode = errors.New("openfigi returned an invalid status code")
)

// yahooSuffix maps Bloomberg exchange codes to Yahoo Finance ticker suffixes
var yahooSuffix = map[string]string{
	"US": "",
	"UN": "",
	"UW": "",
	"FP": ".PA",
	"GY": ".DE",
	"GR": ".DE",
	"NA": ".AS",
	"LN": ".L",
	"IM": ".MI",
	"SM": ".MC",
	"BB": ".BR",
	"SW": ".SW",
	"ID": ".IR",
	"PL": ".LS",
}

type MappingResponse struct {
	Data    []*OpenFigiAsset `json:"data"`
	Warning string           `json:"warning"`
	Error   string           `json:"error"`
}

type OpenFigiAsset struct {
	Figi                string `json:"figi"`
	SecurityType        string `json:"securityType"`
	MarketSector        string `json:"marketSector"`
	Ticker              string `json:"ticker"`
	Name                string `json:"name"`
	ExchangeCode        string `json:"exchCode"`
	ShareClassFIGI      string `json:"shareClassFIGI"`
	CompositeFIGI       string `json:"compositeFIGI"`
	SecurityType2       string `json:"securityType2"`
	SecurityDescription string `json:"securityDescription"`
}

type OpenFigiQuery struct {
	IdType       string `json:"idType"`
	IdValue      string `json:"idValue"`
	ExchangeCode string `json:"exchCode,omitempty"`
}

// Client maps ISINs to Yahoo Finance tickers through the OpenFIGI mapping
// API. Mappings are cached for the lifetime of the client.
type Client struct {
	URL      string
	APIKey   string
	Exchange string

	client  *resty.Client
	limiter *rate.Limiter
	cache   *haxmap.Map[string, string]
}

func rateLimit() *rate.Limiter {
	dur := (time.Second * 6) / 25
	openFigiRate := rate.Every(dur)
	return rate.NewLimiter(openFigiRate, 10)
}

// NewClient creates an OpenFIGI client resolving tickers listed on exchange
func NewClient(apiKey, exchange string) *Client {
	if exchange == "" {
		exchange = DefaultExchange
	}

	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return &Client{
		URL:      OPENFIGI_MAPPING_URL,
		APIKey:   apiKey,
		Exchange: strings.ToUpper(exchange),
		client:   client,
		limiter:  rateLimit(),
		cache:    haxmap.New[string, string](),
	}
}

// Remember records a known ISIN to ticker mapping
func (figiClient *Client) Remember(isin, ticker string) {
	figiClient.cache.Set(isin, ticker)
}

// YahooTicker appends the Yahoo Finance suffix of exchange to ticker
func YahooTicker(ticker, exchange string) string {
	ticker = strings.ReplaceAll(strings.TrimSpace(ticker), "/", "-")
	ticker = strings.ReplaceAll(ticker, " ", "-")
	return ticker + yahooSuffix[strings.ToUpper(exchange)]
}

func (figiClient *Client) batchSize() int {
	if figiClient.APIKey == "" {
		return maxJobsWithoutKey
	}
	return maxJobsWithKey
}

// Tickers returns the Yahoo Finance ticker of every ISIN OpenFIGI knows on
// the configured exchange. ISINs without a match are left out.
func (figiClient *Client) Tickers(ctx context.Context, isins []string) (map[string]string, error) {
	logger := zerolog.Ctx(ctx)
	result := make(map[string]string, len(isins))

	pending := make([]string, 0, len(isins))
	for _, isin := range isins {
		if ticker, ok := figiClient.cache.Get(isin); ok {
			result[isin] = ticker
			continue
		}
		pending = append(pending, isin)
	}

	size := figiClient.batchSize()
	for start := 0; start < len(pending); start += size {
		end := min(start+size, len(pending))
		batch := pending[start:end]

		if err := figiClient.limiter.Wait(ctx); err != nil {
			return result, err
		}

		mapping, err := figiClient.mapISINs(ctx, batch)
		if err != nil {
			return result, err
		}

		for idx, resp := range mapping {
			if idx >= len(batch) {
				break
			}

			isin := batch[idx]
			if len(resp.Data) == 0 {
				logger.Warn().Str("ISIN", isin).Str("Exchange", figiClient.Exchange).Str("Warning", resp.Warning).Str("Error", resp.Error).Msg("openfigi has no ticker for isin")
				continue
			}

			asset := resp.Data[0]
			exchange := asset.ExchangeCode
			if exchange == "" {
				exchange = figiClient.Exchange
			}

			ticker := YahooTicker(asset.Ticker, exchange)
			figiClient.cache.Set(isin, ticker)
			result[isin] = ticker
		}
	}

	logger.Info().Int("Requested", len(isins)).Int("Mapped", len(result)).Msg("mapped isins to tickers")

	return result, nil
}

func (figiClient *Client) mapISINs(ctx context.Context, isins []string) ([]*MappingResponse, error) {
	query := make([]*OpenFigiQuery, len(isins))
	for idx, isin := range isins {
		query[idx] = &OpenFigiQuery{
			IdType:       "ID_ISIN",
			IdValue:      isin,
			ExchangeCode: figiClient.Exchange,
		}
	}

	req := figiClient.client.R().SetContext(ctx)
	if figiClient.APIKey != "" {
		req.SetHeader("X-OPENFIGI-APIKEY", figiClient.APIKey)
	}

	mappingResponse := make([]*MappingResponse, 0, len(isins))
	resp, err := req.
		SetBody(query).
		SetResult(&mappingResponse).
		Post(figiClient.URL)

	zerolog.Ctx(ctx).Debug().Str("URL", figiClient.URL).Int("NumISINs", len(isins)).Msg("map isins to tickers")

	if err != nil {
		return nil, fmt.Errorf("openfigi request: %w", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("%w: %d %s", ErrInvalidStatusCode, resp.StatusCode(), string(resp.Body()))
	}

	return mappingResponse, nil
}
