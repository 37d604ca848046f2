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
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/penny-vault/pvledger/backblaze"
	"github.com/penny-vault/pvledger/coverage"
	"github.com/penny-vault/pvledger/figi"
	"github.com/penny-vault/pvledger/library"
	"github.com/penny-vault/pvledger/pipeline"
	"github.com/penny-vault/pvledger/plan"
	"github.com/penny-vault/pvledger/provider"
	"github.com/penny-vault/pvledger/source"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// commandContext returns a context carrying the global logger
func commandContext() context.Context {
	return log.Logger.WithContext(context.Background())
}

func openLibrary(ctx context.Context) *library.Library {
	myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to library")
	}
	return myLibrary
}

func brokerageOptions() source.BrokerageOptions {
	return source.BrokerageOptions{
		BankCode: viper.GetString("brokerage.bank_code"),
		Currency: viper.GetString("brokerage.currency"),
		Encoding: viper.GetString("brokerage.encoding"),
	}
}

// newPipeline wires the library, the market data clients and the archive
// upload into a pipeline
func newPipeline(ctx context.Context, myLibrary *library.Library) *pipeline.Pipeline {
	figiClient := figi.NewClient(viper.GetString("openfigi.apikey"), viper.GetString("openfigi.exchange"))
	if err := figiClient.LoadCacheFromDB(ctx, myLibrary.Pool); err != nil {
		log.Warn().Err(err).Msg("could not preload ticker cache")
	}

	return &pipeline.Pipeline{
		Layout:   pipeline.Layout{Root: viper.GetString("data.dir")},
		Store:    myLibrary,
		Loader:   plan.New(myLibrary.Loader()),
		Figi:     figiClient,
		Prices:   provider.NewYahoo(viper.GetString("yahoo.base_url"), viper.GetInt("yahoo.rate_limit")),
		Coverage: coverage.NewResolver(myLibrary.Pool),
		Archiver: &backblaze.Archiver{
			KeyID:          viper.GetString("backblaze.application_id"),
			ApplicationKey: viper.GetString("backblaze.application_key"),
			BucketName:     viper.GetString("backblaze.bucket"),
		},
		Brokerage: brokerageOptions(),
	}
}

func printMarkdown(doc string) {
	r, _ := glamour.NewTermRenderer(
		// detect background color and pick either the default dark or light theme
		glamour.WithAutoStyle(),
		// wrap output at specific width (default is 80)
		glamour.WithWordWrap(100),
	)

	out, err := r.Render(doc)
	if err != nil {
		log.Fatal().Err(err).Msg("could not render document")
	}

	fmt.Print(out)
}
