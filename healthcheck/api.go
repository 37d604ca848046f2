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
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	HEALTHCHECKS_PING_URL string = "https://hc-ping.com"
)

var (
	ErrStatus = errors.New("status code is invalid")
)

// Pinger reports the outcome of scheduled runs to healthchecks.io
type Pinger struct {
	BaseURL string
	CheckID string

	client *resty.Client
}

func NewPinger(checkID string) *Pinger {
	return &Pinger{
		BaseURL: HEALTHCHECKS_PING_URL,
		CheckID: checkID,
		client:  resty.New().SetTimeout(10 * time.Second),
	}
}

// Enabled is false when no check id is configured
func (pinger *Pinger) Enabled() bool {
	return pinger != nil && pinger.CheckID != ""
}

// Start signals that a run began
func (pinger *Pinger) Start(ctx context.Context) error {
	return pinger.ping(ctx, "/start", "")
}

// Success signals that a run finished; body is attached as the ping log
func (pinger *Pinger) Success(ctx context.Context, body string) error {
	return pinger.ping(ctx, "", body)
}

// Fail signals that a run failed
func (pinger *Pinger) Fail(ctx context.Context, body string) error {
	return pinger.ping(ctx, "/fail", body)
}

func (pinger *Pinger) ping(ctx context.Context, suffix, body string) error {
	if !pinger.Enabled() {
		return nil
	}

	url := fmt.Sprintf("%s/%s%s", strings.TrimSuffix(pinger.BaseURL, "/"), pinger.CheckID, suffix)
	req := pinger.client.R().SetContext(ctx)
	if body != "" {
		req = req.SetHeader("Content-Type", "text/plain").SetBody(body)
	}

	resp, err := req.Post(url)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("CheckID", pinger.CheckID).Msg("healthcheck ping failed")
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}
