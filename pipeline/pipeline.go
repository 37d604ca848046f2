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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/penny-vault/pvledger/coverage"
	"github.com/penny-vault/pvledger/data"
	"github.com/penny-vault/pvledger/figi"
	"github.com/penny-vault/pvledger/library"
	"github.com/penny-vault/pvledger/plan"
	"github.com/penny-vault/pvledger/provider"
	"github.com/penny-vault/pvledger/source"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownKind = errors.New("unknown source file kind")
)

// Store is the part of the library the pipeline reads from and records
// imports in. *library.Library satisfies it.
type Store interface {
	KnownPayees(ctx context.Context) ([]string, error)
	SecuritiesWithoutTicker(ctx context.Context) ([]string, error)
	SecuritiesMissingInfo(ctx context.Context) ([]string, error)
	SaveImport(ctx context.Context, imp *library.Import) error
}

// BatchLoader merges a batch into the library. *plan.Plan satisfies it.
type BatchLoader interface {
	Run(ctx context.Context, batch *data.Batch) (*plan.Report, error)
}

// TickerMapper maps ISINs to tickers. *figi.Client satisfies it.
type TickerMapper interface {
	Tickers(ctx context.Context, isins []string) (map[string]string, error)
}

// WindowResolver computes the price windows to fetch. *coverage.Resolver
// satisfies it.
type WindowResolver interface {
	Windows(ctx context.Context) ([]coverage.Window, error)
}

// Archiver copies archived files off-site
type Archiver interface {
	Enabled() bool
	Upload(ctx context.Context, fn, dirname string) error
}

// Pipeline imports the source files waiting in the data directory and then
// brings market data up to date. Figi, Prices, Coverage and Archiver are
// optional.
type Pipeline struct {
	Layout    Layout
	Store     Store
	Loader    BatchLoader
	Figi      TickerMapper
	Prices    provider.PriceProvider
	Coverage  WindowResolver
	Archiver  Archiver
	Brokerage source.BrokerageOptions
}

// Run processes every waiting file, OFX first, then updates market data
func (pipeline *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := NewReport()
	logger := zerolog.Ctx(ctx).With().Str("RunID", report.RunID.String()).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Str("DataDir", pipeline.Layout.Root).Msg("starting run")

	if err := pipeline.Layout.Ensure(); err != nil {
		return nil, err
	}

	known, err := pipeline.knownPayees(ctx)
	if err != nil {
		return nil, err
	}

	for _, kind := range Kinds {
		requeued, err := pipeline.Layout.Requeue(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("requeue %s files: %w", kind, err)
		}
		logger.Info().Str("Kind", string(kind)).Int("NumFiles", requeued).Msg("file(s) moved to processing folder")

		files, err := pipeline.Layout.Files(ToProcessDir, kind)
		if err != nil {
			return nil, err
		}

		for _, fn := range files {
			outcome := pipeline.ImportFile(ctx, fn, kind, known)
			pipeline.saveImport(ctx, report.RunID, outcome)
			pipeline.settle(ctx, outcome, fn)
			report.AddFile(outcome)
		}

		logger.Info().Str("Kind", string(kind)).Int("Succeeded", report.Succeeded(kind)).Int("Failed", report.Failed(kind)).Msg("processed files")
	}

	marketReport, fetchErrors, err := pipeline.UpdateMarket(ctx)
	report.Market = marketReport
	report.FetchErrors = fetchErrors
	if err != nil {
		report.AddError(err)
	}

	report.Finished = time.Now()
	logger.Info().Dur("Elapsed", report.Finished.Sub(report.Started)).Msg("run finished")

	return report, report.Err()
}

// ImportFiles loads the given files in place without moving them
func (pipeline *Pipeline) ImportFiles(ctx context.Context, files []string) (*Report, error) {
	report := NewReport()
	ctx = zerolog.Ctx(ctx).With().Str("RunID", report.RunID.String()).Logger().WithContext(ctx)

	known, err := pipeline.knownPayees(ctx)
	if err != nil {
		return nil, err
	}

	for _, fn := range files {
		kind, ok := KindOf(fn)
		if !ok {
			report.AddFile(&FileOutcome{FileName: filepath.Base(fn), Err: fmt.Errorf("%w: %s", ErrUnknownKind, fn)})
			continue
		}

		outcome := pipeline.ImportFile(ctx, fn, kind, known)
		pipeline.saveImport(ctx, report.RunID, outcome)
		report.AddFile(outcome)
	}

	report.Finished = time.Now()
	return report, report.Err()
}

func (pipeline *Pipeline) knownPayees(ctx context.Context) (source.KnownPayees, error) {
	payees, err := pipeline.Store.KnownPayees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known payees: %w", err)
	}
	return source.NewKnownPayees(payees), nil
}

// ImportFile reads, transforms and loads a single file
func (pipeline *Pipeline) ImportFile(ctx context.Context, fn string, kind Kind, known source.KnownPayees) *FileOutcome {
	logger := zerolog.Ctx(ctx).With().Str("FileName", filepath.Base(fn)).Str("Kind", string(kind)).Logger()
	outcome := &FileOutcome{FileName: filepath.Base(fn), Kind: kind}

	logger.Info().Msg("extracting data")
	batch, err := pipeline.readFile(fn, kind, known)
	if err != nil {
		logger.Error().Err(err).Msg("could not read file")
		outcome.Err = err
		return outcome
	}

	logger.Info().Strs("Entities", batch.Entities()).Msg("loading data")
	outcome.Report, outcome.Err = pipeline.Loader.Run(logger.WithContext(ctx), batch)
	if outcome.Err != nil {
		logger.Error().Err(outcome.Err).Msg("error processing file")
		return outcome
	}

	logger.Info().Int64("Inserted", outcome.Report.Inserted()).Int64("Updated", outcome.Report.Updated()).Msg("data loaded")
	return outcome
}

func (pipeline *Pipeline) readFile(fn string, kind Kind, known source.KnownPayees) (*data.Batch, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	switch kind {
	case KindOFX:
		statements, err := source.ReadOFX(fh)
		if err != nil {
			return nil, err
		}
		return source.TransformOFX(statements, known), nil
	case KindBrokerage:
		export, err := source.ReadBrokerage(fh, pipeline.Brokerage)
		if err != nil {
			return nil, err
		}
		return source.TransformBrokerage(export, pipeline.Brokerage)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// settle moves the file to archives/ or, on any failure, to error/
func (pipeline *Pipeline) settle(ctx context.Context, outcome *FileOutcome, fn string) {
	logger := zerolog.Ctx(ctx).With().Str("FileName", outcome.FileName).Logger()

	if !outcome.Succeeded() {
		if _, err := pipeline.Layout.MoveTo(fn, ErrorDir); err != nil {
			logger.Error().Err(err).Msg("could not move file to error directory")
			outcome.Err = multierror.Append(outcome.Err, err)
		}
		return
	}

	archived, err := pipeline.Layout.MoveTo(fn, ArchivesDir)
	if err != nil {
		logger.Error().Err(err).Msg("could not archive file")
		outcome.Err = err
		return
	}

	if pipeline.Archiver != nil && pipeline.Archiver.Enabled() {
		if err := pipeline.Archiver.Upload(ctx, archived, string(outcome.Kind)); err != nil {
			logger.Warn().Err(err).Msg("archive upload failed")
		}
	}
}

func (pipeline *Pipeline) saveImport(ctx context.Context, runID uuid.UUID, outcome *FileOutcome) {
	imp := &library.Import{
		RunID:     runID,
		FileName:  outcome.FileName,
		Kind:      string(outcome.Kind),
		Succeeded: outcome.Succeeded(),
	}
	if outcome.Report != nil {
		imp.Inserted = outcome.Report.Inserted()
		imp.Updated = outcome.Report.Updated()
		imp.Unresolved = int64(len(outcome.Report.Unresolved()))
	}
	if outcome.Err != nil {
		imp.Message = outcome.Err.Error()
	}

	if err := pipeline.Store.SaveImport(ctx, imp); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("FileName", outcome.FileName).Msg("could not record import")
	}
}

// UpdateMarket maps missing tickers, fills instrument details and downloads
// the prices of every coverage window. A failed fetch is reported and
// skipped; the returned error is reserved for failures of the library.
func (pipeline *Pipeline) UpdateMarket(ctx context.Context) (*plan.Report, []*provider.FetchError, error) {
	report := &plan.Report{}
	var fetchErrors []*provider.FetchError
	logger := zerolog.Ctx(ctx)

	if pipeline.Figi != nil {
		tickerErrors, err := pipeline.updateTickers(ctx, report)
		fetchErrors = append(fetchErrors, tickerErrors...)
		if err != nil {
			return report, fetchErrors, err
		}
	}

	if pipeline.Prices == nil {
		logger.Info().Msg("no market data provider configured, skipping price update")
		return report, fetchErrors, nil
	}

	infoErrors, err := pipeline.updateInfo(ctx, report)
	fetchErrors = append(fetchErrors, infoErrors...)
	if err != nil {
		return report, fetchErrors, err
	}

	if pipeline.Coverage == nil {
		return report, fetchErrors, nil
	}

	priceErrors, err := pipeline.updatePrices(ctx, report)
	fetchErrors = append(fetchErrors, priceErrors...)
	return report, fetchErrors, err
}

func (pipeline *Pipeline) load(ctx context.Context, report *plan.Report, batch *data.Batch) {
	if batch.IsEmpty() {
		return
	}

	loaded, _ := pipeline.Loader.Run(ctx, batch)
	report.Merge(loaded)
}

// updateTickers maps securities without a ticker. When the lookup fails the
// partial mapping is still loaded and every unmapped isin is reported.
func (pipeline *Pipeline) updateTickers(ctx context.Context, report *plan.Report) ([]*provider.FetchError, error) {
	isins, err := pipeline.Store.SecuritiesWithoutTicker(ctx)
	if err != nil {
		return nil, err
	}
	if len(isins) == 0 {
		return nil, nil
	}

	var fetchErrors []*provider.FetchError
	mapping, err := pipeline.Figi.Tickers(ctx, isins)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("NumSecurities", len(isins)).Msg("ticker lookup failed")
		for _, isin := range isins {
			if _, ok := mapping[isin]; !ok {
				fetchErrors = append(fetchErrors, &provider.FetchError{ISIN: isin, Err: err})
			}
		}
	}

	zerolog.Ctx(ctx).Info().Int("NumSecurities", len(isins)).Int("NumMapped", len(mapping)).Msg("mapped isins to tickers")
	pipeline.load(ctx, report, &data.Batch{SecurityTickers: figi.TickerRows(mapping)})
	return fetchErrors, nil
}

func (pipeline *Pipeline) updateInfo(ctx context.Context, report *plan.Report) ([]*provider.FetchError, error) {
	tickers, err := pipeline.Store.SecuritiesMissingInfo(ctx)
	if err != nil {
		return nil, err
	}

	var fetchErrors []*provider.FetchError
	rows := make([]data.SecurityInfo, 0, len(tickers))
	for _, ticker := range tickers {
		info, err := pipeline.Prices.Info(ctx, ticker)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("Ticker", ticker).Msg("could not fetch security info")
			fetchErrors = append(fetchErrors, &provider.FetchError{Ticker: ticker, Err: err})
			continue
		}
		rows = append(rows, info.Row())
	}

	pipeline.load(ctx, report, &data.Batch{SecurityInfo: rows})
	return fetchErrors, nil
}

func (pipeline *Pipeline) updatePrices(ctx context.Context, report *plan.Report) ([]*provider.FetchError, error) {
	windows, err := pipeline.Coverage.Windows(ctx)
	if err != nil {
		return nil, err
	}

	var fetchErrors []*provider.FetchError
	var rows []data.SecurityPrice
	for _, window := range windows {
		zerolog.Ctx(ctx).Info().Object("Window", window).Msg("fetching prices")

		bars, err := pipeline.Prices.History(ctx, window.Ticker, window.Start, window.EndExclusive)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Object("Window", window).Msg("could not fetch prices")
			fetchErrors = append(fetchErrors, &provider.FetchError{ISIN: window.ISIN, Ticker: window.Ticker, Err: err})
			continue
		}
		rows = append(rows, provider.PriceRows(window.ISIN, bars)...)
	}

	pipeline.load(ctx, report, &data.Batch{SecurityPrices: rows})
	return fetchErrors, nil
}
