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
package loader

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SQL", func() {
	var (
		accounts   *Spec
		securities *Spec
		info       *Spec
	)

	BeforeEach(func() {
		accounts = &Spec{
			Entity: "accounts",
			Table:  "accounts",
			Columns: []Column{
				{Name: "account_number", Type: "TEXT NOT NULL"},
				{Name: "name", Type: "TEXT NOT NULL"},
				{Name: "bank_code", Type: "TEXT NOT NULL"},
				{Name: "currency_abbreviation", Type: "TEXT NOT NULL"},
			},
			Keys: []Key{{{Column: "account_number", Compare: Exact}}},
			ForeignKeys: []ForeignKey{
				{Column: "bank_id", Source: "bank_code", RefTable: "banks", RefKey: "bank_code", Compare: Exact},
				{Column: "currency_id", Source: "currency_abbreviation", RefTable: "currencies", RefKey: "abbreviation", Compare: CaseInsensitive},
			},
		}

		securities = &Spec{
			Entity: "securities",
			Table:  "securities",
			Columns: []Column{
				{Name: "isin", Type: "TEXT NOT NULL"},
				{Name: "name", Type: "TEXT NOT NULL"},
			},
			Keys: []Key{
				{{Column: "name", Compare: CaseInsensitive}},
				{{Column: "isin", Compare: Exact}},
			},
		}

		info = &Spec{
			Entity: "security_info",
			Table:  "securities",
			Columns: []Column{
				{Name: "ticker", Type: "TEXT NOT NULL"},
				{Name: "type", Type: "TEXT"},
				{Name: "market", Type: "TEXT"},
			},
			Keys:   []Key{{{Column: "ticker"}}},
			Update: []string{"type", "market"},
		}
	})

	It("names temporary tables after the entity", func() {
		Expect(info.StageTable()).To(Equal("stage_security_info"))
		Expect(info.ResolvedTable()).To(Equal("resolved_security_info"))
	})

	It("creates a staging table with an ordinal column", func() {
		sql := accounts.createStageSQL()
		Expect(sql).To(HavePrefix("CREATE TEMPORARY TABLE stage_accounts ("))
		Expect(sql).To(ContainSubstring(`"ordinal" BIGINT NOT NULL`))
		Expect(sql).To(ContainSubstring(`"currency_abbreviation" TEXT NOT NULL`))
		Expect(sql).To(HaveSuffix("ON COMMIT DROP"))
		Expect(accounts.stageColumnNames()).To(Equal([]string{"ordinal", "account_number", "name", "bank_code", "currency_abbreviation"}))
	})

	It("resolves foreign keys with an inner join per reference", func() {
		sql := accounts.resolveSQL()
		Expect(sql).To(ContainSubstring("CREATE TEMPORARY TABLE resolved_accounts ON COMMIT DROP AS"))
		Expect(sql).To(ContainSubstring(`SELECT s."ordinal", s."account_number", s."name", r0."id" AS "bank_id", r1."id" AS "currency_id"`))
		Expect(sql).To(ContainSubstring(`JOIN "banks" r0 ON s."bank_code" = r0."bank_code"`))
		Expect(sql).To(ContainSubstring(`JOIN "currencies" r1 ON lower(s."currency_abbreviation") = lower(r1."abbreviation")`))
		Expect(sql).ToNot(ContainSubstring("LEFT JOIN"))
	})

	It("lists the resolved columns in insert order", func() {
		Expect(accounts.ResolvedColumns()).To(Equal([]string{"account_number", "name", "bank_id", "currency_id"}))
	})

	It("anti-joins against the target and earlier batch rows on any alternative key", func() {
		sql := securities.insertSQL()
		Expect(sql).To(HavePrefix(`INSERT INTO "securities" ("isin", "name")`))
		Expect(sql).To(ContainSubstring(`NOT EXISTS (SELECT 1 FROM "securities" t WHERE ((lower(t."name") = lower(r."name")) OR (t."isin" = r."isin")))`))
		Expect(sql).To(ContainSubstring(`p."ordinal" < r."ordinal" AND ((lower(p."name") = lower(r."name")) OR (p."isin" = r."isin"))`))
		Expect(sql).To(HaveSuffix(`ORDER BY r."ordinal"`))
	})

	It("updates only changed columns and lets the last row win", func() {
		sql := info.updateSQL()
		Expect(sql).To(HavePrefix(`UPDATE "securities" t`))
		Expect(sql).To(ContainSubstring(`SET "type" = r."type", "market" = r."market"`))
		Expect(sql).To(ContainSubstring(`n."ordinal" > r."ordinal" AND ((n."ticker" = r."ticker"))`))
		Expect(sql).To(ContainSubstring(`t."type" IS DISTINCT FROM r."type" OR t."market" IS DISTINCT FROM r."market"`))
	})

	It("lists staged rows missing from the resolved table", func() {
		sql := accounts.unresolvedSQL()
		Expect(sql).To(ContainSubstring(`FROM stage_accounts s`))
		Expect(sql).To(ContainSubstring(`NOT EXISTS (SELECT 1 FROM resolved_accounts r WHERE r."ordinal" = s."ordinal")`))
	})

	Describe("Validate", func() {
		It("accepts keys on resolved foreign key columns", func() {
			accounts.Keys = []Key{{{Column: "bank_id"}, {Column: "account_number"}}}
			Expect(accounts.Validate()).To(Succeed())
		})

		It("rejects keys on foreign key sources", func() {
			accounts.Keys = []Key{{{Column: "bank_code"}}}
			Expect(accounts.Validate()).To(MatchError(ErrInvalidSpec))
		})

		It("rejects unknown update columns", func() {
			info.Update = []string{"ticker", "price"}
			Expect(info.Validate()).To(MatchError(ErrInvalidSpec))
		})

		It("rejects entity names that are not plain identifiers", func() {
			accounts.Entity = "bank accounts"
			Expect(accounts.Validate()).To(MatchError(ErrInvalidSpec))

			accounts.Entity = "Accounts; DROP TABLE banks"
			Expect(accounts.Validate()).To(MatchError(ErrInvalidSpec))
		})

		It("rejects a foreign key without a staged source", func() {
			accounts.ForeignKeys[0].Source = "bank"
			Expect(accounts.Validate()).To(MatchError(ErrInvalidSpec))
		})
	})
})
