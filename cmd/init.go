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
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/pvledger/db"
	"github.com/penny-vault/pvledger/library"
	"github.com/penny-vault/pvledger/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type configFile struct {
	DB struct {
		URL string `toml:"url"`
	} `toml:"db"`
	Data struct {
		Dir string `toml:"dir"`
	} `toml:"data"`
	Brokerage struct {
		BankCode string `toml:"bank_code"`
		Currency string `toml:"currency"`
	} `toml:"brokerage"`
	OpenFigi struct {
		APIKey string `toml:"apikey,omitempty"`
	} `toml:"openfigi"`
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Gather database configuration and setup schema",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		myLibrary := &library.Library{}
		config := configFile{}
		config.Data.Dir = "data"
		config.Brokerage.BankCode = "0"
		config.Brokerage.Currency = "EUR"

		form := huh.NewForm(
			// Gather details about the ledger and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the ledger a name:").
					Value(&myLibrary.Name),

				huh.NewInput().
					Title("Who owns the ledger?").
					Value(&myLibrary.Owner),
			),

			// Get details about the database
			huh.NewGroup(
				huh.NewInput().
					Title("Provide the DSN for connecting to your PostgreSQL database (postgres://[user[:password]@][netloc][:port][/dbname][?param1=value1&...])").
					Value(&myLibrary.DBUrl).
					Validate(func(dsn string) error {
						_, err := pgx.ParseConfig(dsn)
						return err
					}),
			),

			// Sources
			huh.NewGroup(
				huh.NewInput().
					Title("Directory holding the files to import:").
					Value(&config.Data.Dir),

				huh.NewInput().
					Title("Bank code of the brokerage account:").
					Value(&config.Brokerage.BankCode),

				huh.NewInput().
					Title("Currency of the brokerage account:").
					Value(&config.Brokerage.Currency),

				huh.NewInput().
					Title("OpenFIGI API key (optional):").
					Value(&config.OpenFigi.APIKey),
			),
		)

		err := form.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("error gathering ledger settings")
		}

		log.Info().Msg("creating database tables")

		if err := db.Migrate(myLibrary.DBUrl); err != nil {
			log.Fatal().Err(err).Msg("error running database migration")
		}

		log.Info().Msg("database tables created")
		log.Info().Msg("Saving ledger name and owner to database")

		// save ledger name and owner to database
		if err := myLibrary.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		defer myLibrary.Close()

		if err := myLibrary.SaveDB(ctx); err != nil {
			log.Fatal().Err(err).Msg("error saving ledger settings to database")
		}

		if err := (pipeline.Layout{Root: config.Data.Dir}).Ensure(); err != nil {
			log.Fatal().Err(err).Str("DataDir", config.Data.Dir).Msg("could not create data directories")
		}

		// save settings to config file
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("could not determine user home directory")
		}

		config.DB.URL = myLibrary.DBUrl
		configFN := filepath.Join(home, ".pvledger.toml")
		log.Info().Str("ConfigFile", configFN).Msg("Saving configuration to config file")
		configData, err := toml.Marshal(config)
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		if err := os.WriteFile(configFN, configData, 0600); err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Msg("Your ledger has been initialized")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
