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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/penny-vault/pvledger/healthcheck"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var daemon bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Import waiting files and update market data",
	Long: `The run sub-command imports every OFX and brokerage file waiting in the
to_process directory (and retries the ones left in error by a previous run),
then maps new securities to tickers and downloads the prices missing from the
ledger. With --daemon the run repeats on the cron schedule set by the
"schedule" configuration key.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		pinger := healthcheck.NewPinger(viper.GetString("healthchecks.check_id"))

		runOnce := func() {
			if err := pinger.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("healthcheck start ping failed")
			}

			report, err := newPipeline(ctx, myLibrary).Run(ctx)
			if report != nil {
				printMarkdown(report.Markdown())
			}

			if err != nil {
				log.Error().Err(err).Msg("run finished with errors")
				body := err.Error()
				if report != nil {
					body = report.Markdown()
				}
				if err := pinger.Fail(ctx, body); err != nil {
					log.Warn().Err(err).Msg("healthcheck fail ping failed")
				}
				return
			}

			if err := pinger.Success(ctx, report.Markdown()); err != nil {
				log.Warn().Err(err).Msg("healthcheck ping failed")
			}
		}

		if !daemon {
			runOnce()
			return
		}

		runDaemon(ctx, viper.GetString("schedule"), runOnce)
	},
}

func runDaemon(ctx context.Context, schedule string, job func()) {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(schedule, job); err != nil {
		log.Fatal().Err(err).Str("Schedule", schedule).Msg("invalid schedule")
	}

	log.Info().Str("Schedule", schedule).Msg("starting daemon")
	scheduler.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("waiting for running import to finish")
	<-scheduler.Stop().Done()
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&daemon, "daemon", false, "keep running and import on the configured schedule")
}
