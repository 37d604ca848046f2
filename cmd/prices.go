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
	"github.com/penny-vault/pvledger/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Map new securities to tickers and download missing prices",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		report := pipeline.NewReport()
		market, fetchErrors, err := newPipeline(ctx, myLibrary).UpdateMarket(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("market data update failed")
		}

		report.Market = market
		report.FetchErrors = fetchErrors
		printMarkdown(report.Markdown())

		if err := report.Err(); err != nil {
			log.Fatal().Err(err).Msg("could not load market data")
		}
	},
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}
