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
package source

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/penny-vault/pvledger/data"
	"github.com/shopspring/decimal"
)

var (
	ErrNoStatements = errors.New("ofx file holds no bank or credit card statement")
)

const (
	undefinedName   = "Undefined"
	undefinedSymbol = "-"

	// credit card statements carry no routing number
	creditCardBank = "CREDITCARD"
	creditCardType = "CREDITCARD"
)

// OFXTransaction is one statement line as read from an OFX file
type OFXTransaction struct {
	ID     string
	Date   time.Time
	Payee  string
	Memo   string
	Amount decimal.Decimal
}

// OFXStatement is one account statement of an OFX file. BalanceDate is the
// server time of the response, which is when the balance was observed.
type OFXStatement struct {
	BankID       string
	AccountID    string
	AccountType  string
	Currency     string
	Balance      decimal.Decimal
	BalanceDate  time.Time
	Transactions []OFXTransaction
}

// ReadOFX parses an OFX response and returns its bank and credit card
// statements.
func ReadOFX(r io.Reader) ([]*OFXStatement, error) {
	resp, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("parse ofx: %w", err)
	}

	serverTime := resp.Signon.DtServer.Time
	statements := make([]*OFXStatement, 0, len(resp.Bank)+len(resp.CreditCard))

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}

		statement := &OFXStatement{
			BankID:      string(stmt.BankAcctFrom.BankID),
			AccountID:   string(stmt.BankAcctFrom.AcctID),
			AccountType: stmt.BankAcctFrom.AcctType.String(),
			Currency:    stmt.CurDef.String(),
			BalanceDate: balanceDate(serverTime, stmt.DtAsOf.Time),
		}
		if statement.Balance, err = ratToDecimal(&stmt.BalAmt.Rat); err != nil {
			return nil, err
		}
		if statement.Transactions, err = readTransactions(stmt.BankTranList); err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}

		statement := &OFXStatement{
			BankID:      creditCardBank,
			AccountID:   string(stmt.CCAcctFrom.AcctID),
			AccountType: creditCardType,
			Currency:    stmt.CurDef.String(),
			BalanceDate: balanceDate(serverTime, stmt.DtAsOf.Time),
		}
		if statement.Balance, err = ratToDecimal(&stmt.BalAmt.Rat); err != nil {
			return nil, err
		}
		if statement.Transactions, err = readTransactions(stmt.BankTranList); err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}

	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	return statements, nil
}

func balanceDate(serverTime, asOf time.Time) time.Time {
	if !serverTime.IsZero() {
		return data.Day(serverTime)
	}
	return data.Day(asOf)
}

func readTransactions(list *ofxgo.TransactionList) ([]OFXTransaction, error) {
	if list == nil {
		return nil, nil
	}

	transactions := make([]OFXTransaction, 0, len(list.Transactions))
	for _, tr := range list.Transactions {
		amount, err := ratToDecimal(&tr.TrnAmt.Rat)
		if err != nil {
			return nil, err
		}

		payee := string(tr.Name)
		if tr.Payee != nil && tr.Payee.Name != "" {
			payee = string(tr.Payee.Name)
		}

		transactions = append(transactions, OFXTransaction{
			ID:     string(tr.FiTID),
			Date:   data.Day(tr.DtPosted.Time),
			Payee:  strings.TrimSpace(payee),
			Memo:   strings.TrimSpace(string(tr.Memo)),
			Amount: amount,
		})
	}

	return transactions, nil
}

func ratToDecimal(rat *big.Rat) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(rat.FloatString(4))
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert ofx amount %s: %w", rat.String(), err)
	}
	return amount, nil
}

// TransformOFX maps OFX statements to ledger rows. Every statement yields
// its bank, currency, account type and account; the balance kept for an
// account is the one observed last. Transactions get a clean payee from
// known.
func TransformOFX(statements []*OFXStatement, known KnownPayees) *data.Batch {
	batch := &data.Batch{}

	banks := make(map[string]bool)
	currencies := make(map[string]bool)
	accountTypes := make(map[string]bool)
	accounts := make(map[string]bool)
	balances := make(map[string]int)

	for _, stmt := range statements {
		if !banks[stmt.BankID] {
			banks[stmt.BankID] = true
			batch.Banks = append(batch.Banks, data.Bank{Code: stmt.BankID, Name: undefinedName})
		}

		currency := strings.ToUpper(stmt.Currency)
		if !currencies[currency] {
			currencies[currency] = true
			batch.Currencies = append(batch.Currencies, data.Currency{Abbreviation: currency, Name: undefinedName, Symbol: undefinedSymbol})
		}

		if !accountTypes[stmt.AccountType] {
			accountTypes[stmt.AccountType] = true
			batch.AccountTypes = append(batch.AccountTypes, data.AccountType{
				Name:       stmt.AccountType,
				IsChecking: strings.Contains(strings.ToLower(stmt.AccountType), "checking"),
			})
		}

		if !accounts[stmt.AccountID] {
			accounts[stmt.AccountID] = true
			batch.Accounts = append(batch.Accounts, data.Account{
				Number:       stmt.AccountID,
				Name:         stmt.AccountID,
				BankCode:     stmt.BankID,
				CurrencyCode: currency,
				TypeName:     stmt.AccountType,
			})
		}

		balance := data.Balance{AccountNumber: stmt.AccountID, Date: stmt.BalanceDate, Value: stmt.Balance}
		if idx, ok := balances[stmt.AccountID]; ok {
			if !balance.Date.Before(batch.Balances[idx].Date) {
				batch.Balances[idx] = balance
			}
		} else {
			balances[stmt.AccountID] = len(batch.Balances)
			batch.Balances = append(batch.Balances, balance)
		}

		for _, tr := range stmt.Transactions {
			trx := data.NewTransaction(tr.ID, stmt.AccountID, tr.Date, tr.Payee, tr.Memo, tr.Amount)
			trx.CleanPayee = NormalizePayee(tr.Payee, known)
			batch.Transactions = append(batch.Transactions, trx)
		}
	}

	return batch
}
