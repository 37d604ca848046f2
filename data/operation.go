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
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OperationType string

const (
	Purchase OperationType = "purchase"
	Sale     OperationType = "sale"
	Tax      OperationType = "tax"
)

// unitPricePlaces is the precision of net and gross unit prices
const unitPricePlaces = 4

// OperationTypeFromLabel maps a brokerage operation label to its type.
// Anything that is neither a purchase (ACHAT) nor a sale (VENTE) is a tax.
func OperationTypeFromLabel(label string) OperationType {
	upper := strings.ToUpper(label)
	switch {
	case strings.Contains(upper, "ACHAT"):
		return Purchase
	case strings.Contains(upper, "VENTE"):
		return Sale
	default:
		return Tax
	}
}

type SecurityOperation struct {
	Date           time.Time       `db:"date"`
	ISIN           string          `db:"isin"`
	OperationType  OperationType   `db:"operation_type"`
	Quantity       decimal.Decimal `db:"quantity"`
	NetAmount      decimal.Decimal `db:"net_amount"`
	GrossAmount    decimal.Decimal `db:"gross_amount"`
	NetUnitPrice   decimal.Decimal `db:"net_unit_price"`
	GrossUnitPrice decimal.Decimal `db:"gross_unit_price"`
	Fees           decimal.Decimal `db:"fees"`
	AccountNumber  string          `db:"account_number"`
}

// NewSecurityOperation derives gross amount and unit prices from the net
// amount and fees. Fees are added to a sale and subtracted from a purchase
// or a tax.
func NewSecurityOperation(date time.Time, isin string, opType OperationType, quantity, netAmount, fees decimal.Decimal, accountNumber string) SecurityOperation {
	op := SecurityOperation{
		Date:          Day(date),
		ISIN:          isin,
		OperationType: opType,
		Quantity:      quantity,
		NetAmount:     netAmount,
		Fees:          fees,
		AccountNumber: accountNumber,
	}

	op.GrossAmount = GrossAmount(opType, netAmount, fees)
	if !quantity.IsZero() {
		op.NetUnitPrice = netAmount.Div(quantity).Round(unitPricePlaces)
		op.GrossUnitPrice = op.GrossAmount.Div(quantity).Round(unitPricePlaces)
	}

	return op
}

func GrossAmount(opType OperationType, netAmount, fees decimal.Decimal) decimal.Decimal {
	if opType == Sale {
		return netAmount.Add(fees)
	}
	return netAmount.Sub(fees)
}

func (op SecurityOperation) Values() []any {
	return []any{op.Date, op.ISIN, string(op.OperationType), op.Quantity, op.NetAmount, op.GrossAmount,
		op.NetUnitPrice, op.GrossUnitPrice, op.Fees, op.AccountNumber}
}
