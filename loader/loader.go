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
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/penny-vault/pvledger/data"
	"github.com/rs/zerolog"
)

// DB is the part of a connection pool the loader needs. *pgxpool.Pool
// satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Loader merges batches of candidate rows into their durable tables
// without ever duplicating a natural key.
type Loader struct {
	db DB
}

func New(db DB) *Loader {
	return &Loader{db: db}
}

// Merge stages rows, resolves their foreign keys and inserts (or, for
// update specs, overwrites) only what is missing. The whole sequence runs
// in one transaction: on any failure nothing is kept and a *MergeError is
// returned. An empty rows slice is a no-op.
func (myLoader *Loader) Merge(ctx context.Context, spec *Spec, rows []data.Record) (*Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("Entity", spec.Entity).Logger()

	result := &Result{
		Entity: spec.Entity,
		Staged: len(rows),
	}

	if len(rows) == 0 {
		result.Skipped = true
		logger.Debug().Msg("no rows for entity, skipping merge")
		return result, nil
	}

	fail := func(step string, err error) (*Result, error) {
		logger.Error().Err(err).Str("Step", step).Msg("merge failed, batch discarded")
		return &Result{Entity: spec.Entity, Staged: len(rows)}, &MergeError{Entity: spec.Entity, Step: step, Err: err}
	}

	if err := spec.Validate(); err != nil {
		return fail(StepStage, err)
	}

	tx, err := myLoader.db.Begin(ctx)
	if err != nil {
		return fail(StepBegin, err)
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			if !errors.Is(err, pgx.ErrTxClosed) {
				logger.Error().Err(err).Msg("error rollingback tx")
			}
		}
	}()

	// 1. stage candidate rows verbatim
	if _, err := tx.Exec(ctx, spec.createStageSQL()); err != nil {
		return fail(StepStage, err)
	}

	source := pgx.CopyFromSlice(len(rows), func(idx int) ([]any, error) {
		values := rows[idx].Values()
		if len(values) != len(spec.Columns) {
			return nil, fmt.Errorf("%w: %s row %d has %d values, expected %d", ErrInvalidSpec, spec.Entity, idx, len(values), len(spec.Columns))
		}
		return append([]any{int64(idx)}, values...), nil
	})

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{spec.StageTable()}, spec.stageColumnNames(), source); err != nil {
		return fail(StepStage, err)
	}

	// 2. resolve foreign keys against already loaded dimensions
	if _, err := tx.Exec(ctx, spec.resolveSQL()); err != nil {
		return fail(StepResolve, err)
	}

	unresolvedRows, err := tx.Query(ctx, spec.unresolvedSQL())
	if err != nil {
		return fail(StepResolve, err)
	}

	ordinals, err := pgx.CollectRows(unresolvedRows, pgx.RowTo[int64])
	if err != nil {
		return fail(StepResolve, err)
	}

	for _, ordinal := range ordinals {
		failure := ResolutionFailure{
			Entity:  spec.Entity,
			Ordinal: int(ordinal),
		}
		if int(ordinal) < len(rows) {
			failure.Key = spec.KeyString(rows[ordinal].Values())
		}
		result.Unresolved = append(result.Unresolved, failure)
		logger.Warn().Int("Ordinal", failure.Ordinal).Str("Key", failure.Key).Msg("row references a missing dimension, dropped")
	}

	// 3. anti-join insert or match-and-overwrite
	if spec.IsUpdate() {
		tag, err := tx.Exec(ctx, spec.updateSQL())
		if err != nil {
			return fail(StepUpdate, err)
		}
		result.Updated = tag.RowsAffected()
	} else {
		tag, err := tx.Exec(ctx, spec.insertSQL())
		if err != nil {
			return fail(StepInsert, err)
		}
		result.Inserted = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(StepCommit, err)
	}

	logger.Info().Object("Result", result).Msg("merged entity")

	return result, nil
}
