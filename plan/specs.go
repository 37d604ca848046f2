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
package plan

import (
	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/loader"
)

func text(name string) loader.Column {
	return loader.Column{Name: name, Type: "TEXT NOT NULL"}
}

func nullableText(name string) loader.Column {
	return loader.Column{Name: name, Type: "TEXT"}
}

func date(name string) loader.Column {
	return loader.Column{Name: name, Type: "DATE NOT NULL"}
}

func numeric(name string) loader.Column {
	return loader.Column{Name: name, Type: "NUMERIC(18, 6) NOT NULL"}
}

func exact(cols ...string) loader.Key {
	key := make(loader.Key, len(cols))
	for idx, col := range cols {
		key[idx] = loader.KeyPart{Column: col, Compare: loader.Exact}
	}
	return key
}

func caseInsensitive(col string) loader.Key {
	return loader.Key{{Column: col, Compare: loader.CaseInsensitive}}
}

var (
	bankFK = loader.ForeignKey{Column: "bank_id", Source: "bank_code", RefTable: "banks", RefKey: "bank_code", Compare: loader.Exact}

	currencyFK = loader.ForeignKey{Column: "currency_id", Source: "currency_abbreviation", RefTable: "currencies", RefKey: "abbreviation", Compare: loader.CaseInsensitive}

	accountTypeFK = loader.ForeignKey{Column: "account_type_id", Source: "account_type_name", RefTable: "account_types", RefKey: "name", Compare: loader.CaseInsensitive}

	accountFK = loader.ForeignKey{Column: "account_id", Source: "account_number", RefTable: "accounts", RefKey: "account_number", Compare: loader.Exact}

	securityFK = loader.ForeignKey{Column: "security_id", Source: "isin", RefTable: "securities", RefKey: "isin", Compare: loader.Exact}
)

// Specs holds the merge spec of every entity, keyed by entity name. Column
// order matches the Values() order of the corresponding data record.
var Specs = map[string]*loader.Spec{
	data.BankKey: {
		Entity:  data.BankKey,
		Table:   "banks",
		Columns: []loader.Column{text("bank_code"), text("name")},
		Keys:    []loader.Key{exact("bank_code")},
	},
	data.CurrencyKey: {
		Entity:  data.CurrencyKey,
		Table:   "currencies",
		Columns: []loader.Column{text("abbreviation"), text("name"), text("symbol")},
		Keys:    []loader.Key{caseInsensitive("abbreviation")},
	},
	data.AccountTypeKey: {
		Entity:  data.AccountTypeKey,
		Table:   "account_types",
		Columns: []loader.Column{text("name"), {Name: "is_checking", Type: "BOOLEAN NOT NULL"}},
		Keys:    []loader.Key{caseInsensitive("name")},
	},
	data.AccountKey: {
		Entity: data.AccountKey,
		Table:  "accounts",
		Columns: []loader.Column{text("account_number"), text("name"), text("bank_code"),
			text("currency_abbreviation"), text("account_type_name")},
		Keys:        []loader.Key{exact("account_number")},
		ForeignKeys: []loader.ForeignKey{bankFK, currencyFK, accountTypeFK},
	},
	// a security already stored under the same name or the same ISIN is kept as is
	data.SecurityKey: {
		Entity: data.SecurityKey,
		Table:  "securities",
		Columns: []loader.Column{text("isin"), text("name"), nullableText("ticker"), nullableText("type"),
			nullableText("market"), text("currency_abbreviation")},
		Keys:        []loader.Key{caseInsensitive("name"), exact("isin")},
		ForeignKeys: []loader.ForeignKey{currencyFK},
	},
	data.SecurityTickerKey: {
		Entity:  data.SecurityTickerKey,
		Table:   "securities",
		Columns: []loader.Column{text("isin"), text("ticker")},
		Keys:    []loader.Key{exact("isin")},
		Update:  []string{"ticker"},
	},
	data.SecurityInfoKey: {
		Entity:  data.SecurityInfoKey,
		Table:   "securities",
		Columns: []loader.Column{text("ticker"), nullableText("type"), nullableText("market")},
		Keys:    []loader.Key{exact("ticker")},
		Update:  []string{"type", "market"},
	},
	data.BalanceKey: {
		Entity:      data.BalanceKey,
		Table:       "balances",
		Columns:     []loader.Column{text("account_number"), date("date"), numeric("value")},
		Keys:        []loader.Key{exact("account_id", "date")},
		ForeignKeys: []loader.ForeignKey{accountFK},
	},
	data.SecurityOperationKey: {
		Entity: data.SecurityOperationKey,
		Table:  "security_operations",
		Columns: []loader.Column{date("date"), text("isin"), text("operation_type"), numeric("quantity"),
			numeric("net_amount"), numeric("gross_amount"), numeric("net_unit_price"),
			numeric("gross_unit_price"), numeric("fees"), text("account_number")},
		Keys:        []loader.Key{exact("date", "security_id", "quantity", "account_id")},
		ForeignKeys: []loader.ForeignKey{securityFK, accountFK},
	},
	data.SecurityPriceKey: {
		Entity: data.SecurityPriceKey,
		Table:  "security_prices",
		Columns: []loader.Column{text("isin"), date("date"), numeric("open_price"), numeric("close_price"),
			numeric("high"), numeric("low"), {Name: "volume", Type: "BIGINT NOT NULL"}},
		Keys:        []loader.Key{exact("security_id", "date")},
		ForeignKeys: []loader.ForeignKey{securityFK},
	},
	data.TransactionKey: {
		Entity: data.TransactionKey,
		Table:  "transactions",
		Columns: []loader.Column{text("fitid"), text("account_number"), date("date"), nullableText("payee"),
			nullableText("clean_payee"), nullableText("memo"), numeric("amount"), {Name: "is_expense", Type: "BOOLEAN NOT NULL"}},
		Keys:        []loader.Key{exact("fitid")},
		ForeignKeys: []loader.ForeignKey{accountFK},
	},
}
