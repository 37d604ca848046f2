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

// Batch holds the rows produced by one extraction for every entity. Nil or
// empty slices mean the entity is absent from the batch.
type Batch struct {
	Banks        []Bank
	Currencies   []Currency
	AccountTypes []AccountType

	Accounts   []Account
	Securities []Security

	Balances           []Balance
	SecurityOperations []SecurityOperation
	SecurityPrices     []SecurityPrice
	Transactions       []Transaction

	SecurityTickers []SecurityTicker
	SecurityInfo    []SecurityInfo
}

// Len returns the number of rows held for the given entity key
func (batch *Batch) Len(entity string) int {
	switch entity {
	case BankKey:
		return len(batch.Banks)
	case CurrencyKey:
		return len(batch.Currencies)
	case AccountTypeKey:
		return len(batch.AccountTypes)
	case AccountKey:
		return len(batch.Accounts)
	case SecurityKey:
		return len(batch.Securities)
	case BalanceKey:
		return len(batch.Balances)
	case SecurityOperationKey:
		return len(batch.SecurityOperations)
	case SecurityPriceKey:
		return len(batch.SecurityPrices)
	case TransactionKey:
		return len(batch.Transactions)
	case SecurityTickerKey:
		return len(batch.SecurityTickers)
	case SecurityInfoKey:
		return len(batch.SecurityInfo)
	default:
		return 0
	}
}

// Entities lists the keys of every entity with at least one row
func (batch *Batch) Entities() []string {
	all := []string{BankKey, CurrencyKey, AccountTypeKey, AccountKey, SecurityKey,
		BalanceKey, SecurityOperationKey, SecurityPriceKey, TransactionKey,
		SecurityTickerKey, SecurityInfoKey}

	present := make([]string, 0, len(all))
	for _, entity := range all {
		if batch.Len(entity) > 0 {
			present = append(present, entity)
		}
	}
	return present
}

// IsEmpty reports whether the batch holds no rows at all
func (batch *Batch) IsEmpty() bool {
	return len(batch.Entities()) == 0
}

// Rows converts a typed slice into records ready to be staged
func Rows[T Record](typed []T) []Record {
	rows := make([]Record, len(typed))
	for idx, row := range typed {
		rows[idx] = row
	}
	return rows
}
