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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvledger/source"
)

var _ = Describe("Payee", func() {
	DescribeTable("cleans payees that are not known yet",
		func(raw, expected string) {
			Expect(source.NormalizePayee(raw, nil)).To(Equal(expected))
		},
		Entry("card reference", "X1234  carrefour market", "CARREFOUR MARKET"),
		Entry("trailing date", "CARREFOUR 04/03", "CARREFOUR"),
		Entry("trailing date and time", "SNCF 04/03 12H30", "SNCF"),
		Entry("instant transfer", "VIR INST DE MR JOHN DOE", "JOHN DOE"),
		Entry("salutation", "MME JANE DOE", "JANE DOE"),
		Entry("already clean", "EDF", "EDF"),
	)

	It("prefers the longest known payee contained in the raw payee", func() {
		known := source.NewKnownPayees([]string{"amazon", "AMAZON PRIME", "", "Amazon"})
		Expect(known).To(Equal(source.KnownPayees{"AMAZON PRIME", "AMAZON"}))

		Expect(source.NormalizePayee("X1234 amazon  prime 04/03", known)).To(Equal("AMAZON PRIME"))
		Expect(source.NormalizePayee("WEB AMAZON MKTP", known)).To(Equal("AMAZON"))
		Expect(source.NormalizePayee("WEB FNAC", known)).To(Equal("FNAC"))
	})
})
