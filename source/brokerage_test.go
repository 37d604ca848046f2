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
package source_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/source"
)

const brokerageExport = `Compte PEA
Export du 15/06/2023
Numéro de compte : 12345678901

Date;Opération;Valeur;ISIN;Quantité;Montant Net;Frais
05/01/2023;ACHAT COMPTANT;TOTALENERGIES;FR0000120271;10;600,50 €;2,00 €
10/06/2023;VENTE COMPTANT;TOTALENERGIES;FR0000120271;10;1 650,00 €;2,50 €
15/06/2023;TAXE TTF;TotalEnergies;FR0000120271;0;1,80 €;
20/06/2023;VIREMENT;;;;100,00 €;
`

var _ = Describe("Brokerage", func() {
	var opts source.BrokerageOptions

	BeforeEach(func() {
		opts = source.BrokerageOptions{BankCode: "30004", Currency: "eur"}
	})

	It("reads the account number and the operations table", func() {
		export, err := source.ReadBrokerage(strings.NewReader(brokerageExport), opts)
		Expect(err).ToNot(HaveOccurred())
		Expect(export.AccountNumber).To(Equal("12345678901"))
		Expect(export.Lines).To(HaveLen(4))
		Expect(export.Lines[0].Operation).To(Equal("ACHAT COMPTANT"))
		Expect(export.Lines[1].NetAmountStr).To(Equal("1 650,00 €"))
	})

	It("decodes latin-1 exports", func() {
		encoded, err := charmap.ISO8859_1.NewEncoder().String(strings.ReplaceAll(brokerageExport, " €", ""))
		Expect(err).ToNot(HaveOccurred())

		opts.Encoding = source.EncodingLatin1
		export, err := source.ReadBrokerage(strings.NewReader(encoded), opts)
		Expect(err).ToNot(HaveOccurred())
		Expect(export.Lines).To(HaveLen(4))
		Expect(export.Lines[0].QuantityStr).To(Equal("10"))
	})

	It("fails without an account number on the third line", func() {
		_, err := source.ReadBrokerage(strings.NewReader("a\nb\nno account here\n\nDate;ISIN\n"), opts)
		Expect(err).To(MatchError(source.ErrNoAccountNumber))

		_, err = source.ReadBrokerage(strings.NewReader("a\n"), opts)
		Expect(err).To(MatchError(source.ErrNoAccountNumber))
	})

	It("builds the account, its dimensions, securities and operations", func() {
		export, err := source.ReadBrokerage(strings.NewReader(brokerageExport), opts)
		Expect(err).ToNot(HaveOccurred())

		batch, err := source.TransformBrokerage(export, opts)
		Expect(err).ToNot(HaveOccurred())

		Expect(batch.Banks).To(Equal([]data.Bank{{Code: "30004", Name: "Undefined"}}))
		Expect(batch.Currencies[0].Abbreviation).To(Equal("EUR"))
		Expect(batch.AccountTypes).To(Equal([]data.AccountType{{Name: "INVESTMENT"}}))
		Expect(batch.Accounts).To(HaveLen(1))
		Expect(batch.Accounts[0].Number).To(Equal("12345678901"))
		Expect(batch.Accounts[0].TypeName).To(Equal("INVESTMENT"))

		Expect(batch.Securities).To(HaveLen(1))
		Expect(batch.Securities[0].ISIN).To(Equal("FR0000120271"))
		Expect(batch.Securities[0].Name).To(Equal("TOTALENERGIES"))
		Expect(batch.Securities[0].Ticker).To(BeNil())

		ops := batch.SecurityOperations
		Expect(ops).To(HaveLen(3))

		Expect(ops[0].OperationType).To(Equal(data.Purchase))
		Expect(ops[0].Date).To(Equal(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)))
		Expect(ops[0].NetAmount.String()).To(Equal("600.5"))
		Expect(ops[0].GrossAmount.String()).To(Equal("598.5"))
		Expect(ops[0].NetUnitPrice.String()).To(Equal("60.05"))
		Expect(ops[0].GrossUnitPrice.String()).To(Equal("59.85"))

		Expect(ops[1].OperationType).To(Equal(data.Sale))
		Expect(ops[1].NetAmount.String()).To(Equal("1650"))
		Expect(ops[1].GrossAmount.String()).To(Equal("1652.5"))

		Expect(ops[2].OperationType).To(Equal(data.Tax))
		Expect(ops[2].Quantity.IsZero()).To(BeTrue())
		Expect(ops[2].NetUnitPrice.IsZero()).To(BeTrue())
		Expect(ops[2].GrossAmount.String()).To(Equal("1.8"))
	})

	It("rejects a line with an unreadable date", func() {
		export := &source.BrokerageExport{
			AccountNumber: "12345678901",
			Lines:         []*source.BrokerageLine{{DateStr: "yesterday", ISIN: "FR0000120271", Operation: "ACHAT"}},
		}
		_, err := source.TransformBrokerage(export, opts)
		Expect(err).To(MatchError(source.ErrInvalidDate))
	})

	DescribeTable("amounts",
		func(raw string, expected string) {
			amount, err := source.ParseAmount(raw)
			Expect(err).ToNot(HaveOccurred())
			Expect(amount.Equal(decimal.RequireFromString(expected))).To(BeTrue(), amount.String())
		},
		Entry("decimal comma", "12,34", "12.34"),
		Entry("currency sign", "12,34 €", "12.34"),
		Entry("thousands separator", "1 234,5", "1234.5"),
		Entry("no-break space", "1\u00a0234,5", "1234.5"),
		Entry("negative sign dropped", "-5,00", "5"),
		Entry("empty", "", "0"),
		Entry("decimal point", "12.5", "12.5"),
		Entry("dot thousands with decimal comma", "1.234,56", "1234.56"),
		Entry("comma thousands with decimal point", "1,234.56", "1234.56"),
		Entry("repeated thousands separator", "1.234.567", "1234567"),
		Entry("fractional comma", "0,5", "0.5"),
		Entry("trailing period", "12,5 EUR.", "12.5"),
	)

	It("rejects an amount split by text", func() {
		_, err := source.ParseAmount("12 EUR 5")
		Expect(err).To(MatchError(source.ErrInvalidAmount))
	})

	It("keeps fractional quantities", func() {
		export := &source.BrokerageExport{
			AccountNumber: "12345678901",
			Lines: []*source.BrokerageLine{
				{DateStr: "05/01/2023", Operation: "ACHAT", ISIN: "FR0000120271", QuantityStr: "0,5", NetAmountStr: "30,00", FeesStr: ""},
				{DateStr: "06/01/2023", Operation: "ACHAT", ISIN: "FR0000120271", QuantityStr: "12.5", NetAmountStr: "1.234,56", FeesStr: "1,00"},
			},
		}

		batch, err := source.TransformBrokerage(export, opts)
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.SecurityOperations[0].Quantity.String()).To(Equal("0.5"))
		Expect(batch.SecurityOperations[0].NetUnitPrice.String()).To(Equal("60"))
		Expect(batch.SecurityOperations[1].Quantity.String()).To(Equal("12.5"))
		Expect(batch.SecurityOperations[1].NetAmount.String()).To(Equal("1234.56"))
	})
})
