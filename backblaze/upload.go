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
package backblaze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/kothar/go-backblaze"
	"github.com/rs/zerolog"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
)

// Archiver copies archived import files to a Backblaze B2 bucket
type Archiver struct {
	KeyID          string
	ApplicationKey string
	BucketName     string
}

// Enabled is false unless credentials and a bucket are configured
func (archiver *Archiver) Enabled() bool {
	return archiver != nil && archiver.KeyID != "" && archiver.ApplicationKey != "" && archiver.BucketName != ""
}

// ObjectName is the bucket key for fn: the base name is slugged so exported
// statements named after accounts or banks make stable keys
func ObjectName(dirname, fn string) string {
	base := filepath.Base(fn)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s/%s%s", dirname, slug.Make(strings.TrimSuffix(base, ext)), strings.ToLower(ext))
}

// Upload stores fn under dirname in the bucket
func (archiver *Archiver) Upload(ctx context.Context, fn, dirname string) error {
	logger := zerolog.Ctx(ctx).With().Str("BucketName", archiver.BucketName).Logger()

	b2, err := backblaze.NewB2(backblaze.Credentials{
		KeyID:          archiver.KeyID,
		ApplicationKey: archiver.ApplicationKey,
	})
	if err != nil {
		logger.Error().Err(err).Msg("authorize backblaze failed")
		return err
	}

	bucket, err := b2.Bucket(archiver.BucketName)
	if err != nil {
		logger.Error().Err(err).Msg("lookup bucket failed")
		return err
	}
	if bucket == nil {
		logger.Error().Msg("bucket does not exist")
		return ErrBucketNotFound
	}

	reader, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer reader.Close()

	outName := ObjectName(dirname, fn)
	metadata := make(map[string]string)

	file, err := bucket.UploadFile(outName, metadata, reader)
	if err != nil {
		logger.Error().Err(err).Str("FileName", outName).Msg("save file to backblaze failed")
		return err
	}

	logger.Info().Str("FileName", file.Name).Int64("Size", file.ContentLength).Str("ID", file.ID).Msg("uploaded file to backblaze")
	return nil
}
