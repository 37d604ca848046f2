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

	"github.com/penny-vault/pvledger/db"
	"github.com/penny-vault/pvledger/pkginfo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	deps   bool
	short  bool
	schema bool
)

var versionCmd = &cobra.Command{
	Use:   "version [module-prefix]",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		if short {
			fmt.Println(pkginfo.ShortVersion())
		} else {
			fmt.Println(pkginfo.BuildVersionString())
		}

		if schema {
			version, dirty, err := db.Version(viper.GetString("db.url"))
			if err != nil {
				log.Fatal().Err(err).Msg("could not read schema version")
			}
			fmt.Printf("Schema: %d", version)
			if dirty {
				fmt.Print(" (dirty)")
			}
			fmt.Println()
		}

		if deps {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			fmt.Printf("\n\n")
			fmt.Println(strings.Join(pkginfo.DependencyList(prefix), "\n"))
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&deps, "deps", "d", false, "print dependencies")
	versionCmd.Flags().BoolVarP(&short, "short", "s", false, "only print version number")
	versionCmd.Flags().BoolVar(&schema, "schema", false, "print the schema version of the configured database")
}
