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
package coverage_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pvledger/coverage"
	"github.com/penny-vault/pvledger/data"
)

func day(year int, month time.Month, dd int) *time.Time {
	d := time.Date(year, month, dd, 0, 0, 0, 0, time.UTC)
	return &d
}

func ticker(val string) *string {
	return &val
}

var _ = Describe("Resolve", func() {
	var today time.Time

	BeforeEach(func() {
		today = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	})

	It("covers a closed position up to its last sale", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2023, 1, 5),
			TotalPurchased: decimal.NewFromInt(10),
			LastSale:       day(2023, 6, 10),
			TotalSold:      decimal.NewFromInt(10),
		}}, today)

		Expect(windows).To(HaveLen(1))
		Expect(windows[0].ISIN).To(Equal("FR0000120271"))
		Expect(windows[0].Ticker).To(Equal("TTE.PA"))
		Expect(windows[0].Start).To(Equal(*day(2023, 1, 5)))
		Expect(windows[0].EndExclusive).To(Equal(*day(2023, 6, 11)))
	})

	It("covers an open position from the last import up to today", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2023, 1, 5),
			TotalPurchased: decimal.NewFromInt(5),
			TotalSold:      decimal.Zero,
			LastImported:   day(2023, 3, 1),
		}}, today)

		Expect(windows).To(HaveLen(1))
		Expect(windows[0].Start).To(Equal(*day(2023, 3, 1)))
		Expect(windows[0].EndExclusive).To(Equal(*day(2024, 5, 21)))
	})

	It("keeps a partially sold position open", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2023, 1, 5),
			TotalPurchased: decimal.NewFromInt(10),
			LastSale:       day(2023, 6, 10),
			TotalSold:      decimal.NewFromInt(4),
		}}, today)

		Expect(windows).To(HaveLen(1))
		Expect(windows[0].EndExclusive).To(Equal(*day(2024, 5, 21)))
	})

	It("returns nothing once prices have caught up", func() {
		agg := &coverage.Aggregate{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2023, 1, 5),
			TotalPurchased: decimal.NewFromInt(5),
			TotalSold:      decimal.Zero,
		}

		first := coverage.Resolve([]*coverage.Aggregate{agg}, today)
		Expect(first).To(HaveLen(1))

		lastLoaded := data.AddDays(first[0].EndExclusive, -1)
		agg.LastImported = &lastLoaded

		Expect(coverage.Resolve([]*coverage.Aggregate{agg}, today)).To(BeEmpty())
	})

	It("returns nothing for a closed position already imported past its last sale", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2023, 1, 5),
			TotalPurchased: decimal.NewFromInt(10),
			LastSale:       day(2023, 6, 10),
			TotalSold:      decimal.NewFromInt(10),
			LastImported:   day(2023, 6, 10),
		}}, today)

		Expect(windows).To(BeEmpty())
	})

	It("skips securities without ticker or purchase", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{
			{ISIN: "A", FirstPurchase: day(2023, 1, 5), TotalPurchased: decimal.NewFromInt(1)},
			{ISIN: "B", Ticker: ticker(""), FirstPurchase: day(2023, 1, 5), TotalPurchased: decimal.NewFromInt(1)},
			{ISIN: "C", Ticker: ticker("C.PA"), TotalSold: decimal.NewFromInt(1), LastSale: day(2023, 1, 5)},
		}, today)

		Expect(windows).To(BeEmpty())
	})

	It("ends a bought, sold then bought again position at today when totals differ", func() {
		// aggregate spans both round trips
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2022, 1, 3),
			TotalPurchased: decimal.NewFromInt(15),
			LastSale:       day(2022, 6, 1),
			TotalSold:      decimal.NewFromInt(10),
		}}, today)

		Expect(windows).To(HaveLen(1))
		Expect(windows[0].Start).To(Equal(*day(2022, 1, 3)))
		Expect(windows[0].EndExclusive).To(Equal(*day(2024, 5, 21)))
	})

	It("ends a reopened position at its last sale when totals happen to match", func() {
		windows := coverage.Resolve([]*coverage.Aggregate{{
			ISIN:           "FR0000120271",
			Ticker:         ticker("TTE.PA"),
			FirstPurchase:  day(2022, 1, 3),
			TotalPurchased: decimal.NewFromInt(20),
			LastSale:       day(2023, 2, 1),
			TotalSold:      decimal.NewFromInt(20),
		}}, today)

		Expect(windows).To(HaveLen(1))
		Expect(windows[0].EndExclusive).To(Equal(*day(2023, 2, 2)))
	})
})

var _ = Describe("Resolver", func() {
	It("scans aggregate rows and resolves their windows", func() {
		mock, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		defer mock.Close()

		columns := []string{"isin", "ticker", "first_purchase", "total_purchased", "last_sale", "total_sold", "last_imported"}
		rows := pgxmock.NewRows(columns).
			AddRow("FR0000120271", ticker("TTE.PA"), day(2023, 1, 5), decimal.NewFromInt(10), day(2023, 6, 10), decimal.NewFromInt(10), nil).
			AddRow("LU1681043599", ticker("CW8.PA"), day(2023, 1, 5), decimal.RequireFromString("5.5"), nil, decimal.Zero, day(2023, 3, 1)).
			AddRow("US0378331005", nil, day(2023, 1, 5), decimal.NewFromInt(1), nil, decimal.Zero, nil)
		mock.ExpectQuery("GROUP BY s.id").WillReturnRows(rows)

		windows, err := coverage.NewResolver(mock).Windows(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(mock.ExpectationsWereMet()).To(Succeed())

		Expect(windows).To(HaveLen(2))
		Expect(windows[0]).To(Equal(coverage.Window{ISIN: "FR0000120271", Ticker: "TTE.PA", Start: *day(2023, 1, 5), EndExclusive: *day(2023, 6, 11)}))
		Expect(windows[1].Ticker).To(Equal("CW8.PA"))
		Expect(windows[1].Start).To(Equal(*day(2023, 3, 1)))
		Expect(windows[1].EndExclusive).To(Equal(data.AddDays(data.Today(), 1)))
	})

	It("wraps query errors", func() {
		mock, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		defer mock.Close()

		boom := errors.New("connection refused")
		mock.ExpectQuery("SELECT s.isin, s.ticker").WillReturnError(boom)

		_, err = coverage.NewResolver(mock).Windows(context.Background())
		Expect(err).To(MatchError(boom))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})
