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
	"regexp"
	"strings"
)

var (
	ErrInvalidSpec = errors.New("invalid merge spec")
)

var entityPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Comparison selects how a key column is matched against stored rows
type Comparison int

const (
	Exact Comparison = iota
	CaseInsensitive
)

// Column is a staged column and the SQL type used for its staging table
type Column struct {
	Name string
	Type string
}

// KeyPart is one column of a natural key. Column names the resolved
// column, so a key may include foreign key columns such as account_id.
type KeyPart struct {
	Column  string
	Compare Comparison
}

// Key is a natural key; all parts must match
type Key []KeyPart

// ForeignKey resolves the staged column Source, which carries the natural
// key of a referenced row, into Column holding that row's surrogate id.
type ForeignKey struct {
	Column   string
	Source   string
	RefTable string
	RefKey   string
	Compare  Comparison
}

// Spec describes how one entity is merged into its durable table.
//
// Keys lists alternative natural keys: a staged row is considered present
// when any of them matches. When Update is non-empty the merge overwrites
// those columns on matching rows instead of inserting.
type Spec struct {
	Entity      string
	Table       string
	Columns     []Column
	Keys        []Key
	ForeignKeys []ForeignKey
	Update      []string
}

// IsUpdate reports whether the spec runs in match-and-overwrite mode
func (spec *Spec) IsUpdate() bool {
	return len(spec.Update) > 0
}

// ResolvedColumns returns the columns written to the durable table: every
// staged column that is not a foreign key source, followed by the resolved
// foreign key columns.
func (spec *Spec) ResolvedColumns() []string {
	sources := make(map[string]bool, len(spec.ForeignKeys))
	for _, fk := range spec.ForeignKeys {
		sources[fk.Source] = true
	}

	cols := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		if !sources[col.Name] {
			cols = append(cols, col.Name)
		}
	}
	for _, fk := range spec.ForeignKeys {
		cols = append(cols, fk.Column)
	}
	return cols
}

// Validate checks that keys, foreign keys and update columns all refer to
// known columns.
func (spec *Spec) Validate() error {
	if spec.Entity == "" || spec.Table == "" {
		return fmt.Errorf("%w: entity and table are required", ErrInvalidSpec)
	}

	if !entityPattern.MatchString(spec.Entity) {
		return fmt.Errorf("%w: entity %q is not a lower-case identifier", ErrInvalidSpec, spec.Entity)
	}

	if len(spec.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidSpec, spec.Entity)
	}

	if len(spec.Keys) == 0 {
		return fmt.Errorf("%w: %s has no natural key", ErrInvalidSpec, spec.Entity)
	}

	staged := make(map[string]bool, len(spec.Columns))
	for _, col := range spec.Columns {
		staged[col.Name] = true
	}

	for _, fk := range spec.ForeignKeys {
		if !staged[fk.Source] {
			return fmt.Errorf("%w: %s foreign key source %q is not staged", ErrInvalidSpec, spec.Entity, fk.Source)
		}
	}

	resolved := make(map[string]bool)
	for _, col := range spec.ResolvedColumns() {
		resolved[col] = true
	}

	for _, key := range spec.Keys {
		if len(key) == 0 {
			return fmt.Errorf("%w: %s has an empty key", ErrInvalidSpec, spec.Entity)
		}
		for _, part := range key {
			if !resolved[part.Column] {
				return fmt.Errorf("%w: %s key column %q is not resolved", ErrInvalidSpec, spec.Entity, part.Column)
			}
		}
	}

	for _, col := range spec.Update {
		if !resolved[col] {
			return fmt.Errorf("%w: %s update column %q is not resolved", ErrInvalidSpec, spec.Entity, col)
		}
	}

	return nil
}

// KeyString renders the first natural key of a record for log messages
func (spec *Spec) KeyString(values []any) string {
	if len(spec.Keys) == 0 {
		return ""
	}

	idx := make(map[string]int, len(spec.Columns))
	for i, col := range spec.Columns {
		idx[col.Name] = i
	}
	for _, fk := range spec.ForeignKeys {
		idx[fk.Column] = idx[fk.Source]
	}

	parts := make([]string, 0, len(spec.Keys[0]))
	for _, part := range spec.Keys[0] {
		i, ok := idx[part.Column]
		if !ok || i >= len(values) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", part.Column, deref(values[i])))
	}
	return strings.Join(parts, ",")
}

func deref(val any) any {
	if s, ok := val.(*string); ok {
		if s == nil {
			return "<nil>"
		}
		return *s
	}
	return val
}
