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
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/penny-vault/pvledger/data"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNoAccountNumber = errors.New("no account number found in brokerage file")
	ErrInvalidDate     = errors.New("invalid operation date")
	ErrInvalidAmount   = errors.New("invalid amount")
)

const (
	brokerageAccountLine = 3
	brokeragePreamble    = 4
	brokerageSeparator   = ';'
	brokerageAccountType = "INVESTMENT"

	DefaultBrokerageBank     = "0"
	DefaultBrokerageCurrency = "EUR"

	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

var (
	accountNumberPattern = regexp.MustCompile(`\d{11}`)
	amountPattern        = regexp.MustCompile(`\d[\d.,]*`)
	amountDigit          = regexp.MustCompile(`\d`)
	amountSpaces         = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")
	operationDateLayouts = []string{"02/01/2006", "2006-01-02", "02/01/06"}
)

// BrokerageOptions configures how a brokerage export is read. The export
// itself names neither its bank nor its currency.
type BrokerageOptions struct {
	BankCode string
	Currency string
	Encoding string
}

// BrokerageLine is one row of the operations table of a brokerage export
type BrokerageLine struct {
	DateStr      string `csv:"Date"`
	Operation    string `csv:"Opération"`
	Security     string `csv:"Valeur"`
	ISIN         string `csv:"ISIN"`
	QuantityStr  string `csv:"Quantité"`
	NetAmountStr string `csv:"Montant Net"`
	FeesStr      string `csv:"Frais"`
}

// BrokerageExport is a parsed brokerage file
type BrokerageExport struct {
	AccountNumber string
	Lines         []*BrokerageLine
}

// ReadBrokerage parses a semicolon separated brokerage export. The third
// line must carry the 11 digit account number; the operations table starts
// after four preamble lines.
func ReadBrokerage(r io.Reader, opts BrokerageOptions) (*BrokerageExport, error) {
	if strings.EqualFold(opts.Encoding, EncodingLatin1) || strings.EqualFold(opts.Encoding, "iso-8859-1") {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	buffered := bufio.NewReader(r)

	export := &BrokerageExport{}
	for lineNum := 1; lineNum <= brokeragePreamble; lineNum++ {
		line, err := buffered.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("%w: file ends at line %d", ErrNoAccountNumber, lineNum)
		}

		if lineNum == brokerageAccountLine {
			export.AccountNumber = accountNumberPattern.FindString(line)
		}
	}

	if export.AccountNumber == "" {
		return nil, ErrNoAccountNumber
	}

	rest, err := io.ReadAll(buffered)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(bytes.NewReader(rest))
	csvReader.Comma = brokerageSeparator
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true

	if err := gocsv.UnmarshalCSV(csvReader, &export.Lines); err != nil {
		return nil, fmt.Errorf("decode brokerage operations: %w", err)
	}

	return export, nil
}

// ParseAmount reads a brokerage amount or quantity such as "1 234,56 €",
// "1.234,56" or "12.5". The last separator is the decimal point and any
// earlier one groups thousands; a lone separator repeated more than once
// groups thousands too. Only the magnitude is kept; an empty field is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := amountSpaces.Replace(raw)
	if strings.TrimSpace(cleaned) == "" {
		return decimal.Zero, nil
	}

	loc := amountPattern.FindStringIndex(cleaned)
	if loc == nil || amountDigit.MatchString(cleaned[loc[1]:]) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	amount, err := decimal.NewFromString(normalizeNumber(strings.TrimRight(cleaned[loc[0]:loc[1]], ".,")))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return amount, nil
}

// normalizeNumber rewrites a digit token with '.' and ',' separators to a
// plain decimal number
func normalizeNumber(token string) string {
	last := strings.LastIndexAny(token, ".,")
	if last < 0 {
		return token
	}

	sep := token[last : last+1]
	other := ","
	if sep == "," {
		other = "."
	}

	if !strings.Contains(token, other) && strings.Count(token, sep) > 1 {
		return strings.ReplaceAll(token, sep, "")
	}

	integral := strings.NewReplacer(".", "", ",", "").Replace(token[:last])
	return integral + "." + token[last+1:]
}

func parseOperationDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range operationDateLayouts {
		if dt, err := time.Parse(layout, raw); err == nil {
			return data.Day(dt), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// TransformBrokerage maps a brokerage export to ledger rows: the account
// with its dimensions, one security per ISIN and one operation per line.
// Lines without an ISIN are ignored.
func TransformBrokerage(export *BrokerageExport, opts BrokerageOptions) (*data.Batch, error) {
	bankCode := opts.BankCode
	if bankCode == "" {
		bankCode = DefaultBrokerageBank
	}

	currency := strings.ToUpper(opts.Currency)
	if currency == "" {
		currency = DefaultBrokerageCurrency
	}

	batch := &data.Batch{
		Banks:        []data.Bank{{Code: bankCode, Name: undefinedName}},
		Currencies:   []data.Currency{{Abbreviation: currency, Name: undefinedName, Symbol: undefinedSymbol}},
		AccountTypes: []data.AccountType{{Name: brokerageAccountType}},
		Accounts: []data.Account{{
			Number:       export.AccountNumber,
			Name:         undefinedName,
			BankCode:     bankCode,
			CurrencyCode: currency,
			TypeName:     brokerageAccountType,
		}},
	}

	securities := make(map[string]bool)
	for idx, line := range export.Lines {
		isin := strings.ToUpper(strings.TrimSpace(line.ISIN))
		if isin == "" {
			continue
		}

		if !securities[isin] {
			securities[isin] = true
			batch.Securities = append(batch.Securities, data.Security{
				ISIN:         isin,
				Name:         strings.TrimSpace(line.Security),
				CurrencyCode: currency,
			})
		}

		op, err := line.operation(isin, export.AccountNumber)
		if err != nil {
			return nil, fmt.Errorf("brokerage line %d: %w", idx+1, err)
		}
		batch.SecurityOperations = append(batch.SecurityOperations, op)
	}

	return batch, nil
}

func (line *BrokerageLine) operation(isin, accountNumber string) (data.SecurityOperation, error) {
	date, err := parseOperationDate(line.DateStr)
	if err != nil {
		return data.SecurityOperation{}, err
	}

	quantity, err := ParseAmount(line.QuantityStr)
	if err != nil {
		return data.SecurityOperation{}, err
	}

	netAmount, err := ParseAmount(line.NetAmountStr)
	if err != nil {
		return data.SecurityOperation{}, err
	}

	fees, err := ParseAmount(line.FeesStr)
	if err != nil {
		return data.SecurityOperation{}, err
	}

	return data.NewSecurityOperation(date, isin, data.OperationTypeFromLabel(line.Operation),
		quantity, netAmount, fees, accountNumber), nil
}
