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
package data

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity names, used as keys in logs, reports and staging table names.
const (
	BankKey              = "banks"
	CurrencyKey          = "currencies"
	AccountTypeKey       = "account_types"
	AccountKey           = "accounts"
	SecurityKey          = "securities"
	SecurityTickerKey    = "security_tickers"
	SecurityInfoKey      = "security_info"
	BalanceKey           = "balances"
	SecurityOperationKey = "security_operations"
	SecurityPriceKey     = "security_prices"
	TransactionKey       = "transactions"
)

// Record is a row that can be staged. Values must be returned in the
// staged column order of the record's entity.
type Record interface {
	Values() []any
}

type Bank struct {
	Code string `db:"bank_code"`
	Name string `db:"name"`
}

func (bank Bank) Values() []any {
	return []any{bank.Code, bank.Name}
}

type Currency struct {
	Abbreviation string `db:"abbreviation"`
	Name         string `db:"name"`
	Symbol       string `db:"symbol"`
}

func (currency Currency) Values() []any {
	return []any{currency.Abbreviation, currency.Name, currency.Symbol}
}

type AccountType struct {
	Name       string `db:"name"`
	IsChecking bool   `db:"is_checking"`
}

func (accountType AccountType) Values() []any {
	return []any{accountType.Name, accountType.IsChecking}
}

// Account references its bank, currency and account type by their natural keys.
type Account struct {
	Number       string `db:"account_number"`
	Name         string `db:"name"`
	BankCode     string `db:"bank_code"`
	CurrencyCode string `db:"currency_abbreviation"`
	TypeName     string `db:"account_type_name"`
}

func (account Account) Values() []any {
	return []any{account.Number, account.Name, account.BankCode, account.CurrencyCode, account.TypeName}
}

// Security is created by the brokerage import; ticker, type and market are
// usually unknown at that point and filled in by the enrichment pass.
type Security struct {
	ISIN         string  `db:"isin"`
	Name         string  `db:"name"`
	Ticker       *string `db:"ticker"`
	Type         *string `db:"type"`
	Market       *string `db:"market"`
	CurrencyCode string  `db:"currency_abbreviation"`
}

func (security Security) Values() []any {
	return []any{security.ISIN, security.Name, security.Ticker, security.Type, security.Market, security.CurrencyCode}
}

// SecurityTicker sets the ticker of the security identified by ISIN.
type SecurityTicker struct {
	ISIN   string `db:"isin"`
	Ticker string `db:"ticker"`
}

func (st SecurityTicker) Values() []any {
	return []any{st.ISIN, st.Ticker}
}

// SecurityInfo refreshes the optional details of every security with the given ticker.
type SecurityInfo struct {
	Ticker string  `db:"ticker"`
	Type   *string `db:"type"`
	Market *string `db:"market"`
}

func (info SecurityInfo) Values() []any {
	return []any{info.Ticker, info.Type, info.Market}
}

type Balance struct {
	AccountNumber string          `db:"account_number"`
	Date          time.Time       `db:"date"`
	Value         decimal.Decimal `db:"value"`
}

func (balance Balance) Values() []any {
	return []any{balance.AccountNumber, balance.Date, balance.Value}
}

type SecurityPrice struct {
	ISIN   string          `db:"isin"`
	Date   time.Time       `db:"date"`
	Open   decimal.Decimal `db:"open_price"`
	Close  decimal.Decimal `db:"close_price"`
	High   decimal.Decimal `db:"high"`
	Low    decimal.Decimal `db:"low"`
	Volume int64           `db:"volume"`
}

func (price SecurityPrice) Values() []any {
	return []any{price.ISIN, price.Date, price.Open, price.Close, price.High, price.Low, price.Volume}
}

// Transaction is a bank statement line. Amount is never negative; the sign
// is carried by IsExpense.
type Transaction struct {
	ID            string          `db:"fitid"`
	AccountNumber string          `db:"account_number"`
	Date          time.Time       `db:"date"`
	Payee         string          `db:"payee"`
	CleanPayee    string          `db:"clean_payee"`
	Memo          string          `db:"memo"`
	Amount        decimal.Decimal `db:"amount"`
	IsExpense     bool            `db:"is_expense"`
}

func (trx Transaction) Values() []any {
	return []any{trx.ID, trx.AccountNumber, trx.Date, trx.Payee, trx.CleanPayee, trx.Memo, trx.Amount, trx.IsExpense}
}

// NewTransaction splits a signed statement amount into its absolute value
// and expense flag. A zero amount counts as an expense.
func NewTransaction(id, accountNumber string, date time.Time, payee, memo string, amount decimal.Decimal) Transaction {
	return Transaction{
		ID:            id,
		AccountNumber: accountNumber,
		Date:          Day(date),
		Payee:         payee,
		Memo:          memo,
		Amount:        amount.Abs(),
		IsExpense:     !amount.IsPositive(),
	}
}
