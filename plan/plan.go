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
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/loader"
	"github.com/rs/zerolog"
)

// Merger merges the rows of one entity. *loader.Loader satisfies it.
type Merger interface {
	Merge(ctx context.Context, spec *loader.Spec, rows []data.Record) (*loader.Result, error)
}

// Plan loads a batch tier by tier so that every foreign key target is
// merged before the entities referencing it.
type Plan struct {
	merger Merger
	specs  map[string]*loader.Spec
}

func New(merger Merger) *Plan {
	return &Plan{
		merger: merger,
		specs:  Specs,
	}
}

// stage is one entity merge within a tier
type stage struct {
	entity string
	rows   func(batch *data.Batch) []data.Record
}

var (
	dimensionStages = []stage{
		{data.BankKey, func(b *data.Batch) []data.Record { return data.Rows(b.Banks) }},
		{data.CurrencyKey, func(b *data.Batch) []data.Record { return data.Rows(b.Currencies) }},
		{data.AccountTypeKey, func(b *data.Batch) []data.Record { return data.Rows(b.AccountTypes) }},
	}

	ownerStages = []stage{
		{data.AccountKey, func(b *data.Batch) []data.Record { return data.Rows(b.Accounts) }},
		{data.SecurityKey, func(b *data.Batch) []data.Record { return data.Rows(b.Securities) }},
	}

	factStages = []stage{
		{data.BalanceKey, func(b *data.Batch) []data.Record { return data.Rows(b.Balances) }},
		{data.SecurityOperationKey, func(b *data.Batch) []data.Record { return data.Rows(b.SecurityOperations) }},
		{data.SecurityPriceKey, func(b *data.Batch) []data.Record { return data.Rows(b.SecurityPrices) }},
		{data.TransactionKey, func(b *data.Batch) []data.Record { return data.Rows(b.Transactions) }},
	}

	// tickers first: info rows are keyed on the ticker
	enrichmentStages = []stage{
		{data.SecurityTickerKey, func(b *data.Batch) []data.Record { return data.Rows(b.SecurityTickers) }},
		{data.SecurityInfoKey, func(b *data.Batch) []data.Record { return data.Rows(b.SecurityInfo) }},
	}
)

// Tier receipts. Each is only created by the tier that completes it and is
// required by the next one.
type (
	dimensionsLoaded struct{ report *Report }
	ownersLoaded     struct{ report *Report }
	factsLoaded      struct{ report *Report }
)

// Run merges every entity present in batch in dependency order. A failed
// entity merge is recorded in the report and the plan moves on; the
// returned error aggregates every merge failure.
func (myPlan *Plan) Run(ctx context.Context, batch *data.Batch) (*Report, error) {
	report := &Report{}

	if batch == nil || batch.IsEmpty() {
		zerolog.Ctx(ctx).Debug().Msg("batch is empty, nothing to load")
		return report, nil
	}

	dims := myPlan.loadDimensions(ctx, report, batch)
	owners := myPlan.loadOwners(ctx, dims, batch)
	facts := myPlan.loadFacts(ctx, owners, batch)
	myPlan.loadEnrichment(ctx, facts, batch)

	return report, report.Err()
}

func (myPlan *Plan) loadDimensions(ctx context.Context, report *Report, batch *data.Batch) dimensionsLoaded {
	myPlan.runStages(ctx, report, batch, dimensionStages)
	return dimensionsLoaded{report: report}
}

func (myPlan *Plan) loadOwners(ctx context.Context, prev dimensionsLoaded, batch *data.Batch) ownersLoaded {
	myPlan.runStages(ctx, prev.report, batch, ownerStages)
	return ownersLoaded(prev)
}

func (myPlan *Plan) loadFacts(ctx context.Context, prev ownersLoaded, batch *data.Batch) factsLoaded {
	myPlan.runStages(ctx, prev.report, batch, factStages)
	return factsLoaded(prev)
}

func (myPlan *Plan) loadEnrichment(ctx context.Context, prev factsLoaded, batch *data.Batch) {
	myPlan.runStages(ctx, prev.report, batch, enrichmentStages)
}

func (myPlan *Plan) runStages(ctx context.Context, report *Report, batch *data.Batch, stages []stage) {
	for _, st := range stages {
		rows := st.rows(batch)
		if len(rows) == 0 {
			continue
		}

		spec, ok := myPlan.specs[st.entity]
		if !ok {
			report.add(st.entity, nil, &loader.MergeError{Entity: st.entity, Step: loader.StepStage, Err: loader.ErrInvalidSpec})
			continue
		}

		result, err := myPlan.merger.Merge(ctx, spec, rows)
		report.add(st.entity, result, err)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("Entity", st.entity).Msg("entity merge failed, continuing with next entity")
		}
	}
}

// Report collects the outcome of every entity merged by a plan run
type Report struct {
	Results  []*loader.Result
	Failures []*loader.MergeError
	errs     *multierror.Error
}

func (report *Report) add(entity string, result *loader.Result, err error) {
	if err == nil {
		if result != nil && !result.Skipped {
			report.Results = append(report.Results, result)
		}
		return
	}

	var mergeErr *loader.MergeError
	if !errors.As(err, &mergeErr) {
		mergeErr = &loader.MergeError{Entity: entity, Step: loader.StepStage, Err: err}
	}
	report.Failures = append(report.Failures, mergeErr)
	report.errs = multierror.Append(report.errs, mergeErr)
}

// Err returns the aggregated merge failures, or nil when every entity merged
func (report *Report) Err() error {
	return report.errs.ErrorOrNil()
}

// Result returns the merge result of entity, or nil if it was not merged
func (report *Report) Result(entity string) *loader.Result {
	for _, result := range report.Results {
		if result.Entity == entity {
			return result
		}
	}
	return nil
}

// Inserted is the total number of rows inserted over all entities
func (report *Report) Inserted() int64 {
	var total int64
	for _, result := range report.Results {
		total += result.Inserted
	}
	return total
}

// Updated is the total number of rows updated over all entities
func (report *Report) Updated() int64 {
	var total int64
	for _, result := range report.Results {
		total += result.Updated
	}
	return total
}

// Unresolved returns every row dropped for a missing reference
func (report *Report) Unresolved() []loader.ResolutionFailure {
	var failures []loader.ResolutionFailure
	for _, result := range report.Results {
		failures = append(failures, result.Unresolved...)
	}
	return failures
}

// Merge folds other into report
func (report *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	report.Results = append(report.Results, other.Results...)
	for _, failure := range other.Failures {
		report.Failures = append(report.Failures, failure)
		report.errs = multierror.Append(report.errs, failure)
	}
}
