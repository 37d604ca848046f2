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
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/penny-vault/pvledger/plan"
	"github.com/penny-vault/pvledger/provider"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FileOutcome is the result of importing one source file
type FileOutcome struct {
	FileName string
	Kind     Kind
	Report   *plan.Report
	Err      error
}

func (outcome *FileOutcome) Succeeded() bool {
	return outcome.Err == nil
}

// Report collects the outcome of a pipeline run
type Report struct {
	RunID       uuid.UUID
	Started     time.Time
	Finished    time.Time
	Files       []*FileOutcome
	Market      *plan.Report
	FetchErrors []*provider.FetchError

	errs *multierror.Error
}

func NewReport() *Report {
	return &Report{
		RunID:   uuid.New(),
		Started: time.Now(),
	}
}

func (report *Report) AddFile(outcome *FileOutcome) {
	report.Files = append(report.Files, outcome)
	if outcome.Err != nil {
		report.errs = multierror.Append(report.errs, fmt.Errorf("%s: %w", outcome.FileName, outcome.Err))
	}
}

func (report *Report) AddError(err error) {
	report.errs = multierror.Append(report.errs, err)
}

// Err aggregates failed files, failed market merges and library errors.
// Fetch errors are reported but do not fail the run.
func (report *Report) Err() error {
	errs := report.errs
	if report.Market != nil {
		if err := report.Market.Err(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (report *Report) count(kind Kind, succeeded bool) int {
	count := 0
	for _, outcome := range report.Files {
		if outcome.Kind == kind && outcome.Succeeded() == succeeded {
			count++
		}
	}
	return count
}

// Succeeded is the number of files of kind that were fully loaded
func (report *Report) Succeeded(kind Kind) int {
	return report.count(kind, true)
}

// Failed is the number of files of kind moved to the error directory
func (report *Report) Failed(kind Kind) int {
	return report.count(kind, false)
}

// Markdown renders the report for the terminal or a healthcheck log
func (report *Report) Markdown() string {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	builder.WriteString(fmt.Sprintf("# Run %s\n\n", report.RunID))
	if !report.Finished.IsZero() {
		builder.WriteString(fmt.Sprintf("Elapsed: %s\n\n", report.Finished.Sub(report.Started).Round(time.Millisecond)))
	}

	builder.WriteString("## Files\n\n")
	if len(report.Files) == 0 {
		builder.WriteString("No files to process\n")
	}

	for _, outcome := range report.Files {
		if !outcome.Succeeded() {
			builder.WriteString(fmt.Sprintf("  * %s (%s) failed: %v\n", outcome.FileName, outcome.Kind, outcome.Err))
			continue
		}

		var inserted, updated int64
		var unresolved int
		if outcome.Report != nil {
			inserted = outcome.Report.Inserted()
			updated = outcome.Report.Updated()
			unresolved = len(outcome.Report.Unresolved())
		}
		builder.WriteString(p.Sprintf("  * %s (%s): %d inserted, %d updated, %d unresolved\n",
			outcome.FileName, outcome.Kind, inserted, updated, unresolved))
	}

	if report.Market != nil {
		builder.WriteString("\n## Market data\n\n")
		for _, result := range report.Market.Results {
			builder.WriteString(p.Sprintf("  * %s: %d inserted, %d updated\n", result.Entity, result.Inserted, result.Updated))
		}
		for _, failure := range report.Market.Failures {
			builder.WriteString(fmt.Sprintf("  * %s failed: %v\n", failure.Entity, failure.Err))
		}
		for _, fetchErr := range report.FetchErrors {
			builder.WriteString(fmt.Sprintf("  * %s\n", fetchErr.Error()))
		}
	}

	return builder.String()
}
