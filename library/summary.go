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
package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary returns a description of the ledger in markdown, listing the
// last recent imports
func (myLibrary *Library) Summary(ctx context.Context, recent int) (string, error) {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	if _, err := builder.WriteString(fmt.Sprintf("# %s\n", myLibrary.Name)); err != nil {
		return "", err
	}

	if _, err := builder.WriteString("## Details\n\n"); err != nil {
		return "", err
	}

	if _, err := builder.WriteString(fmt.Sprintf("Database: %s\n\n", redactURL(myLibrary.DBUrl))); err != nil {
		return "", err
	}

	if myLibrary.Owner != "" {
		if _, err := builder.WriteString(fmt.Sprintf("Owner: %s\n\n", myLibrary.Owner)); err != nil {
			return "", err
		}
	}

	// Last updated time
	lastUpdated, err := myLibrary.LastUpdated(ctx)
	if err != nil {
		return "", err
	}

	if lastUpdated.Year() <= 1 {
		if _, err := builder.WriteString("Last Updated: Never\n\n"); err != nil {
			return "", err
		}
	} else {
		age := timeago.English.Format(lastUpdated)
		if _, err := builder.WriteString(fmt.Sprintf("Last Updated: %s (%s)\n\n", age, lastUpdated.Local().Format("01/02/2006"))); err != nil {
			return "", err
		}
	}

	// Row counts
	if _, err := builder.WriteString("## Records\n\n"); err != nil {
		return "", err
	}

	counts, err := myLibrary.tableCounts(ctx)
	if err != nil {
		return "", err
	}

	for _, table := range countedTables {
		if _, err := builder.WriteString(p.Sprintf("  * %s: %d\n", table, counts[table])); err != nil {
			return "", err
		}
	}

	// Recent imports
	imports, err := myLibrary.RecentImports(ctx, recent)
	if err != nil {
		return "", err
	}

	if _, err := builder.WriteString("\n## Recent imports\n\n"); err != nil {
		return "", err
	}

	if len(imports) == 0 {
		if _, err := builder.WriteString("No files imported yet\n"); err != nil {
			return "", err
		}
	}

	for _, imp := range imports {
		status := "ok"
		if !imp.Succeeded {
			status = "failed"
		}

		if _, err := builder.WriteString(p.Sprintf("  * %s %s (%s) %s: %d inserted, %d updated, %d unresolved\n",
			imp.ImportedOn.Local().Format(time.DateTime), imp.FileName, imp.Kind, status,
			imp.Inserted, imp.Updated, imp.Unresolved)); err != nil {
			return "", err
		}
	}

	return builder.String(), nil
}

// redactURL hides the password of a database url
func redactURL(dbURL string) string {
	schemeEnd := strings.Index(dbURL, "://")
	at := strings.LastIndex(dbURL, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return dbURL
	}

	userInfo := dbURL[schemeEnd+3 : at]
	if colon := strings.Index(userInfo, ":"); colon >= 0 {
		return dbURL[:schemeEnd+3] + userInfo[:colon] + ":xxxxx" + dbURL[at:]
	}
	return dbURL
}
