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
	"regexp"
	"sort"
	"strings"
)

var (
	multipleSpaces  = regexp.MustCompile(`\s{2,}`)
	cardPrefix      = regexp.MustCompile(`^[A-Z]\d{4}\s+`)
	trailingDates   = regexp.MustCompile(`(\s+\d{2}/\d{2}|\s+\d{2}H\d{2})+$`)
	payeeSalutation = regexp.MustCompile(`^(VIR INST\s+|WEB\s+|DE\s+|VERS\s+|MLLE.\s+|MLLE\s+|MR.\s+|MR\s+|M.\s+|M\s+|M.OU\s+|OU\s+|MME\s+|ET\s+)+`)
)

// KnownPayees is a snapshot of the clean payees already categorized in the
// library. It is read once per run and never refreshed while a run is
// transforming statements.
type KnownPayees []string

// NewKnownPayees upper-cases payees and orders them longest first so the
// most specific payee wins.
func NewKnownPayees(payees []string) KnownPayees {
	known := make(KnownPayees, 0, len(payees))
	seen := make(map[string]bool, len(payees))
	for _, payee := range payees {
		payee = strings.ToUpper(strings.TrimSpace(payee))
		if payee == "" || seen[payee] {
			continue
		}
		seen[payee] = true
		known = append(known, payee)
	}

	sort.SliceStable(known, func(i, j int) bool {
		return len(known[i]) > len(known[j])
	})

	return known
}

// NormalizePayee reduces a raw statement payee to a clean payee: the first
// known payee it contains, or else the payee stripped of card references,
// trailing dates and times, and salutation prefixes.
func NormalizePayee(payee string, known KnownPayees) string {
	payee = strings.ToUpper(payee)
	payee = multipleSpaces.ReplaceAllString(payee, " ")

	for _, knownPayee := range known {
		if strings.Contains(payee, knownPayee) {
			return knownPayee
		}
	}

	payee = cardPrefix.ReplaceAllString(payee, "")
	payee = trailingDates.ReplaceAllString(payee, "")
	payee = payeeSalutation.ReplaceAllString(payee, "")

	return strings.TrimSpace(payee)
}
