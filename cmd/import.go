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
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file...>",
	Short: "Import OFX or brokerage files without moving them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		report, err := newPipeline(ctx, myLibrary).ImportFiles(ctx, args)
		if report != nil {
			printMarkdown(report.Markdown())
		}

		if err != nil {
			log.Fatal().Err(err).Msg("import failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
