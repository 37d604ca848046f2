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
package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pvledger/provider"
)

const chartHistory = `{
  "chart": {
    "result": [{
      "meta": {"currency": "EUR", "symbol": "TTE.PA", "exchangeName": "PAR", "instrumentType": "EQUITY", "gmtoffset": 3600},
      "timestamp": [1704182400, 1704268800, 1704355200, 1704441600],
      "indicators": {
        "quote": [{
          "open":   [10, null, 20, 30],
          "high":   [11, null, 22, 31],
          "low":    [9, null, 19, 29],
          "close":  [10, null, 21, 30],
          "volume": [100, null, 200, 300]
        }],
        "adjclose": [{"adjclose": [5, null, 21, 30]}]
      }
    }],
    "error": null
  }
}`

const chartInfo = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "TTE.PA", "exchangeName": "PAR", "instrumentType": "EQUITY", "gmtoffset": 3600},
      "timestamp": [],
      "indicators": {"quote": [{}]}
    }],
    "error": null
  }
}`

func jan(dd int) time.Time {
	return time.Date(2024, time.January, dd, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("Yahoo", func() {
	var (
		server  *httptest.Server
		paths   []string
		queries []url.Values
		agents  []string
		status  int
		payload string
		yahoo   *provider.Yahoo
		ctx     context.Context
	)

	BeforeEach(func() {
		paths = nil
		queries = nil
		agents = nil
		status = http.StatusOK
		payload = chartHistory
		ctx = context.Background()

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			queries = append(queries, r.URL.Query())
			agents = append(agents, r.Header.Get("User-Agent"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(payload))
		}))

		yahoo = provider.NewYahoo(server.URL+"/", 6000)
	})

	AfterEach(func() {
		server.Close()
	})

	It("downloads auto-adjusted bars inside the window", func() {
		bars, err := yahoo.History(ctx, "TTE.PA", jan(2), jan(5))
		Expect(err).ToNot(HaveOccurred())

		Expect(paths).To(Equal([]string{"/TTE.PA"}))
		Expect(queries[0].Get("period1")).To(Equal("1704153600"))
		Expect(queries[0].Get("period2")).To(Equal("1704412800"))
		Expect(queries[0].Get("interval")).To(Equal("1d"))
		Expect(agents[0]).To(HavePrefix("pvledger/"))

		Expect(bars).To(HaveLen(2))
		Expect(*bars[0]).To(Equal(provider.Bar{Date: jan(2), Open: 5, High: 5.5, Low: 4.5, Close: 5, Volume: 100}))
		Expect(*bars[1]).To(Equal(provider.Bar{Date: jan(4), Open: 20, High: 22, Low: 19, Close: 21, Volume: 200}))
	})

	It("reads the instrument type and exchange", func() {
		payload = chartInfo
		info, err := yahoo.Info(ctx, "TTE.PA")
		Expect(err).ToNot(HaveOccurred())
		Expect(*info).To(Equal(provider.Info{Ticker: "TTE.PA", Type: "EQUITY", Market: "PAR"}))
		Expect(queries[0].Get("range")).To(Equal("1d"))
	})

	It("reports error status codes", func() {
		status = http.StatusNotFound
		payload = `{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`

		_, err := yahoo.History(ctx, "DEAD.PA", jan(2), jan(5))
		Expect(err).To(MatchError(provider.ErrInvalidStatusCode))
		Expect(err.Error()).To(ContainSubstring("symbol may be delisted"))
	})

	It("reports an empty result", func() {
		payload = `{"chart": {"result": null, "error": null}}`

		_, err := yahoo.Info(ctx, "TTE.PA")
		Expect(err).To(MatchError(provider.ErrNoData))
	})
})

var _ = Describe("Rows", func() {
	It("keys price rows by isin", func() {
		rows := provider.PriceRows("FR0000120271", []*provider.Bar{{Date: jan(2), Open: 5, High: 5.5, Low: 4.5, Close: 5, Volume: 100}})
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].ISIN).To(Equal("FR0000120271"))
		Expect(rows[0].Date).To(Equal(jan(2)))
		Expect(rows[0].High.Equal(decimal.RequireFromString("5.5"))).To(BeTrue())
		Expect(rows[0].Volume).To(Equal(int64(100)))
	})

	It("leaves missing info as null", func() {
		info := &provider.Info{Ticker: "CW8.PA", Type: "ETF"}
		row := info.Row()
		Expect(row.Ticker).To(Equal("CW8.PA"))
		Expect(*row.Type).To(Equal("ETF"))
		Expect(row.Market).To(BeNil())
	})

	It("wraps fetch failures", func() {
		err := &provider.FetchError{ISIN: "FR0000120271", Ticker: "TTE.PA", Err: provider.ErrNoData}
		Expect(err).To(MatchError(provider.ErrNoData))
		Expect(err.Error()).To(Equal("fetch TTE.PA (FR0000120271): market data source returned no data"))

		unmapped := &provider.FetchError{ISIN: "FR0000120271", Err: provider.ErrNoData}
		Expect(unmapped.Error()).To(Equal("fetch FR0000120271: market data source returned no data"))
	})
})
