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
package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/penny-vault/pvledger/coverage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "List the price windows the next run will download",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		windows, err := coverage.NewResolver(myLibrary.Pool).Windows(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not resolve price coverage")
		}

		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
		boxStyle := lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63"))

		var sb strings.Builder
		fmt.Fprintln(&sb, headerStyle.Render(fmt.Sprintf("%-14s %-10s %-10s %-10s", "ISIN", "TICKER", "START", "END")))
		for _, window := range windows {
			fmt.Fprintf(&sb, "%-14s %-10s %-10s %-10s\n", window.ISIN, window.Ticker,
				window.Start.Format("2006-01-02"), window.EndExclusive.AddDate(0, 0, -1).Format("2006-01-02"))
		}

		if len(windows) == 0 {
			fmt.Fprintln(&sb, "prices are up to date")
		}

		fmt.Println(boxStyle.Render(strings.TrimSuffix(sb.String(), "\n")))
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
