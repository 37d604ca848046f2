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
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrMerge = errors.New("merge failed")
)

// Merge steps, reported in MergeError
const (
	StepBegin   = "begin"
	StepStage   = "stage"
	StepResolve = "resolve"
	StepInsert  = "insert"
	StepUpdate  = "update"
	StepCommit  = "commit"
)

// MergeError reports a failed merge. Nothing of the entity's batch was kept.
type MergeError struct {
	Entity string
	Step   string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrMerge, e.Entity, e.Step, e.Err)
}

func (e *MergeError) Unwrap() []error {
	return []error{ErrMerge, e.Err}
}

// ResolutionFailure is a candidate row dropped because one of its foreign
// keys did not match a stored row.
type ResolutionFailure struct {
	Entity  string
	Ordinal int
	Key     string
}

func (failure ResolutionFailure) String() string {
	return fmt.Sprintf("%s row %d (%s) has an unresolved reference", failure.Entity, failure.Ordinal, failure.Key)
}

// Result counts what a merge did with its candidate rows
type Result struct {
	Entity string

	// Skipped is set when there were no rows and the store was not touched
	Skipped bool

	Staged     int
	Unresolved []ResolutionFailure
	Inserted   int64
	Updated    int64
}

// Unchanged is the number of resolved rows that were neither inserted nor
// updated, either because their key already existed or, in update mode,
// because no stored row matched or its values were already current.
func (result *Result) Unchanged() int64 {
	unchanged := int64(result.Staged-len(result.Unresolved)) - result.Inserted - result.Updated
	if unchanged < 0 {
		// one update row may match several stored rows
		return 0
	}
	return unchanged
}

func (result *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Entity", result.Entity)
	e.Int("Staged", result.Staged)
	e.Int("Unresolved", len(result.Unresolved))
	e.Int64("Inserted", result.Inserted)
	e.Int64("Updated", result.Updated)
	e.Int64("Unchanged", result.Unchanged())
}
