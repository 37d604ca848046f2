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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ordinalColumn = "ordinal"

// tableName builds an unquoted temporary table name; Validate restricts
// entity names to lower-case identifiers
func tableName(prefix, entity string) string {
	return prefix + "_" + entity
}

// StageTable is the temporary table holding the verbatim candidate rows
func (spec *Spec) StageTable() string {
	return tableName("stage", spec.Entity)
}

// ResolvedTable is the temporary table holding candidate rows after
// foreign key resolution
func (spec *Spec) ResolvedTable() string {
	return tableName("resolved", spec.Entity)
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func qualified(alias, name string) string {
	return alias + "." + ident(name)
}

func compare(cmp Comparison, left, right string) string {
	if cmp == CaseInsensitive {
		return fmt.Sprintf("lower(%s) = lower(%s)", left, right)
	}
	return fmt.Sprintf("%s = %s", left, right)
}

// keysMatch renders the natural key predicate between two aliases
func (spec *Spec) keysMatch(left, right string) string {
	alternatives := make([]string, 0, len(spec.Keys))
	for _, key := range spec.Keys {
		parts := make([]string, 0, len(key))
		for _, part := range key {
			parts = append(parts, compare(part.Compare, qualified(left, part.Column), qualified(right, part.Column)))
		}
		alternatives = append(alternatives, "("+strings.Join(parts, " AND ")+")")
	}
	return "(" + strings.Join(alternatives, " OR ") + ")"
}

func (spec *Spec) stageColumnNames() []string {
	cols := make([]string, 0, len(spec.Columns)+1)
	cols = append(cols, ordinalColumn)
	for _, col := range spec.Columns {
		cols = append(cols, col.Name)
	}
	return cols
}

func (spec *Spec) createStageSQL() string {
	defs := make([]string, 0, len(spec.Columns)+1)
	defs = append(defs, ident(ordinalColumn)+" BIGINT NOT NULL")
	for _, col := range spec.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", ident(col.Name), col.Type))
	}

	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (\n\t%s\n) ON COMMIT DROP", spec.StageTable(), strings.Join(defs, ",\n\t"))
}

func (spec *Spec) resolveSQL() string {
	sources := make(map[string]bool, len(spec.ForeignKeys))
	for _, fk := range spec.ForeignKeys {
		sources[fk.Source] = true
	}

	selects := []string{qualified("s", ordinalColumn)}
	for _, col := range spec.Columns {
		if !sources[col.Name] {
			selects = append(selects, qualified("s", col.Name))
		}
	}

	joins := make([]string, 0, len(spec.ForeignKeys))
	for idx, fk := range spec.ForeignKeys {
		alias := fmt.Sprintf("r%d", idx)
		selects = append(selects, fmt.Sprintf("%s AS %s", qualified(alias, "id"), ident(fk.Column)))
		joins = append(joins, fmt.Sprintf("JOIN %s %s ON %s", ident(fk.RefTable), alias,
			compare(fk.Compare, qualified("s", fk.Source), qualified(alias, fk.RefKey))))
	}

	sql := fmt.Sprintf("CREATE TEMPORARY TABLE %s ON COMMIT DROP AS\nSELECT %s\nFROM %s s",
		spec.ResolvedTable(), strings.Join(selects, ", "), spec.StageTable())
	if len(joins) > 0 {
		sql += "\n" + strings.Join(joins, "\n")
	}
	return sql
}

func (spec *Spec) unresolvedSQL() string {
	return fmt.Sprintf(`SELECT s.%[3]s FROM %[1]s s
WHERE NOT EXISTS (SELECT 1 FROM %[2]s r WHERE r.%[3]s = s.%[3]s)
ORDER BY s.%[3]s`, spec.StageTable(), spec.ResolvedTable(), ident(ordinalColumn))
}

// insertSQL inserts resolved rows whose natural key is neither stored yet
// nor held by an earlier row of the same batch.
func (spec *Spec) insertSQL() string {
	cols := spec.ResolvedColumns()
	targetCols := make([]string, len(cols))
	selectCols := make([]string, len(cols))
	for idx, col := range cols {
		targetCols[idx] = ident(col)
		selectCols[idx] = qualified("r", col)
	}

	return fmt.Sprintf(`INSERT INTO %[1]s (%[2]s)
SELECT %[3]s
FROM %[4]s r
WHERE NOT EXISTS (SELECT 1 FROM %[1]s t WHERE %[5]s)
  AND NOT EXISTS (SELECT 1 FROM %[4]s p WHERE p.%[7]s < r.%[7]s AND %[6]s)
ORDER BY r.%[7]s`,
		ident(spec.Table), strings.Join(targetCols, ", "), strings.Join(selectCols, ", "),
		spec.ResolvedTable(), spec.keysMatch("t", "r"), spec.keysMatch("p", "r"), ident(ordinalColumn))
}

// updateSQL overwrites the update columns of stored rows matching a
// resolved row. The last row of the batch wins and rows whose values are
// already current are left untouched.
func (spec *Spec) updateSQL() string {
	sets := make([]string, len(spec.Update))
	changed := make([]string, len(spec.Update))
	for idx, col := range spec.Update {
		sets[idx] = fmt.Sprintf("%s = %s", ident(col), qualified("r", col))
		changed[idx] = fmt.Sprintf("%s IS DISTINCT FROM %s", qualified("t", col), qualified("r", col))
	}

	return fmt.Sprintf(`UPDATE %[1]s t
SET %[2]s
FROM %[3]s r
WHERE %[4]s
  AND NOT EXISTS (SELECT 1 FROM %[3]s n WHERE n.%[7]s > r.%[7]s AND %[5]s)
  AND (%[6]s)`,
		ident(spec.Table), strings.Join(sets, ", "), spec.ResolvedTable(),
		spec.keysMatch("t", "r"), spec.keysMatch("n", "r"), strings.Join(changed, " OR "), ident(ordinalColumn))
}
