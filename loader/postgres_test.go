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
package loader_test

import (
	"context"
	"os"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/db"
	"github.com/penny-vault/pvledger/loader"
	"github.com/penny-vault/pvledger/plan"
)

// These specs need a scratch PostgreSQL database; every table is truncated
// before each spec.
var _ = Describe("Loader against PostgreSQL", Ordered, func() {
	var (
		ctx      context.Context
		pool     *pgxpool.Pool
		myLoader *loader.Loader
		day      time.Time
	)

	BeforeAll(func() {
		dbURL := os.Getenv("PVLEDGER_TEST_DB_URL")
		if dbURL == "" {
			Skip("PVLEDGER_TEST_DB_URL is not set")
		}

		ctx = context.Background()
		Expect(db.Migrate(dbURL)).To(Succeed())

		cfg, err := pgxpool.ParseConfig(dbURL)
		Expect(err).ToNot(HaveOccurred())
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			pgxdecimal.Register(conn.TypeMap())
			return nil
		}

		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		Expect(err).ToNot(HaveOccurred())
		myLoader = loader.New(pool)
		day = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
	})

	truncate := func() {
		_, err := pool.Exec(ctx, `TRUNCATE banks, currencies, account_types, accounts, securities, balances,
security_operations, security_prices, transactions RESTART IDENTITY CASCADE`)
		Expect(err).ToNot(HaveOccurred())
	}

	BeforeEach(func() {
		truncate()
	})

	merge := func(entity string, rows []data.Record) *loader.Result {
		result, err := myLoader.Merge(ctx, plan.Specs[entity], rows)
		Expect(err).ToNot(HaveOccurred())
		return result
	}

	count := func(table string) int {
		var n int
		Expect(pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n)).To(Succeed())
		return n
	}

	loadDimensions := func() {
		merge(data.BankKey, data.Rows([]data.Bank{{Code: "30004", Name: "Undefined"}}))
		merge(data.CurrencyKey, data.Rows([]data.Currency{{Abbreviation: "EUR", Name: "Undefined", Symbol: "-"}}))
		merge(data.AccountTypeKey, data.Rows([]data.AccountType{{Name: "INVESTMENT"}}))
		merge(data.AccountKey, data.Rows([]data.Account{{Number: "12345678901", Name: "PEA", BankCode: "30004", CurrencyCode: "eur", TypeName: "investment"}}))
		merge(data.SecurityKey, data.Rows([]data.Security{{ISIN: "FR0000120271", Name: "TOTALENERGIES", CurrencyCode: "EUR"}}))
	}

	It("is idempotent", func() {
		loadDimensions()
		ops := data.Rows([]data.SecurityOperation{
			data.NewSecurityOperation(day, "FR0000120271", data.Purchase, decimal.NewFromInt(10), decimal.NewFromInt(600), decimal.NewFromInt(2), "12345678901"),
			data.NewSecurityOperation(day.AddDate(0, 1, 0), "FR0000120271", data.Sale, decimal.NewFromInt(10), decimal.NewFromInt(650), decimal.NewFromInt(2), "12345678901"),
		})

		first := merge(data.SecurityOperationKey, ops)
		Expect(first.Inserted).To(Equal(int64(2)))

		second := merge(data.SecurityOperationKey, ops)
		Expect(second.Inserted).To(BeZero())
		Expect(second.Unchanged()).To(Equal(int64(2)))
		Expect(count("security_operations")).To(Equal(2))
	})

	It("gives the same table for two overlapping batches as for their union", func() {
		b1 := []data.Balance{
			{AccountNumber: "12345678901", Date: day, Value: decimal.NewFromInt(100)},
			{AccountNumber: "12345678901", Date: day.AddDate(0, 0, 1), Value: decimal.NewFromInt(110)},
		}
		b2 := []data.Balance{
			{AccountNumber: "12345678901", Date: day.AddDate(0, 0, 1), Value: decimal.NewFromInt(110)},
			{AccountNumber: "12345678901", Date: day.AddDate(0, 0, 2), Value: decimal.NewFromInt(120)},
		}

		snapshot := func() []string {
			rows, err := pool.Query(ctx, "SELECT date::text || ':' || value::text FROM balances ORDER BY date")
			Expect(err).ToNot(HaveOccurred())
			values, err := pgx.CollectRows(rows, pgx.RowTo[string])
			Expect(err).ToNot(HaveOccurred())
			return values
		}

		loadDimensions()
		merge(data.BalanceKey, data.Rows(b1))
		merge(data.BalanceKey, data.Rows(b2))
		separate := snapshot()

		truncate()
		loadDimensions()
		merge(data.BalanceKey, data.Rows(append(append([]data.Balance{}, b1...), b2...)))
		union := snapshot()

		Expect(separate).To(HaveLen(3))
		Expect(union).To(Equal(separate))
	})

	It("never stores two rows with the same case-insensitive key", func() {
		result := merge(data.CurrencyKey, data.Rows([]data.Currency{
			{Abbreviation: "EUR", Name: "Euro", Symbol: "€"},
			{Abbreviation: "eur", Name: "Undefined", Symbol: "-"},
		}))
		Expect(result.Inserted).To(Equal(int64(1)))
		merge(data.CurrencyKey, data.Rows([]data.Currency{{Abbreviation: "Eur", Name: "Other", Symbol: "?"}}))
		Expect(count("currencies")).To(Equal(1))

		var name string
		Expect(pool.QueryRow(ctx, "SELECT name FROM currencies").Scan(&name)).To(Succeed())
		Expect(name).To(Equal("Euro"))
	})

	It("treats a security matching by name or by isin as present", func() {
		loadDimensions()
		result := merge(data.SecurityKey, data.Rows([]data.Security{
			{ISIN: "FR0000000000", Name: "TotalEnergies", CurrencyCode: "EUR"},
			{ISIN: "FR0000120271", Name: "TOTAL SA", CurrencyCode: "EUR"},
			{ISIN: "LU1681043599", Name: "AMUNDI MSCI WORLD", CurrencyCode: "EUR"},
		}))
		Expect(result.Inserted).To(Equal(int64(1)))
		Expect(count("securities")).To(Equal(2))
	})

	It("drops rows referencing a missing security and keeps the rest", func() {
		loadDimensions()
		result := merge(data.SecurityPriceKey, data.Rows([]data.SecurityPrice{
			{ISIN: "FR0000120271", Date: day, Open: decimal.NewFromInt(60), Close: decimal.NewFromInt(61), High: decimal.NewFromInt(62), Low: decimal.NewFromInt(59), Volume: 1000},
			{ISIN: "XX0000000000", Date: day, Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Volume: 1},
		}))
		Expect(result.Inserted).To(Equal(int64(1)))
		Expect(result.Unresolved).To(HaveLen(1))
		Expect(result.Unresolved[0].Ordinal).To(Equal(1))
		Expect(count("security_prices")).To(Equal(1))
	})

	It("enriches existing securities and never inserts through the update path", func() {
		loadDimensions()
		result := merge(data.SecurityTickerKey, data.Rows([]data.SecurityTicker{
			{ISIN: "FR0000120271", Ticker: "TTE.PA"},
			{ISIN: "XX0000000000", Ticker: "NOPE"},
		}))
		Expect(result.Updated).To(Equal(int64(1)))
		Expect(count("securities")).To(Equal(1))

		equity, market := "EQUITY", "PAR"
		merge(data.SecurityInfoKey, data.Rows([]data.SecurityInfo{{Ticker: "TTE.PA", Type: &equity, Market: &market}}))
		again := merge(data.SecurityInfoKey, data.Rows([]data.SecurityInfo{{Ticker: "TTE.PA", Type: &equity, Market: &market}}))
		Expect(again.Updated).To(BeZero())

		var ticker, secType string
		Expect(pool.QueryRow(ctx, "SELECT ticker, type FROM securities").Scan(&ticker, &secType)).To(Succeed())
		Expect(ticker).To(Equal("TTE.PA"))
		Expect(secType).To(Equal("EQUITY"))
	})
})
