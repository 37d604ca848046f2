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
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ToProcessDir = "to_process"
	ErrorDir     = "error"
	ArchivesDir  = "archives"
)

// Kind is a source file format
type Kind string

const (
	KindOFX       Kind = "ofx"
	KindBrokerage Kind = "brokerage"
)

// Kinds lists the source kinds in processing order
var Kinds = []Kind{KindOFX, KindBrokerage}

var kindExtensions = map[Kind][]string{
	KindOFX:       {".ofx", ".qfx"},
	KindBrokerage: {".csv"},
}

// KindOf returns the source kind of fn from its extension
func KindOf(fn string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(fn))
	for _, kind := range Kinds {
		for _, kindExt := range kindExtensions[kind] {
			if ext == kindExt {
				return kind, true
			}
		}
	}
	return "", false
}

// Layout is the data directory with its to_process, error and archives
// sub-directories
type Layout struct {
	Root string
}

func (layout Layout) Path(sub string) string {
	return filepath.Join(layout.Root, sub)
}

// Ensure creates any missing sub-directory
func (layout Layout) Ensure() error {
	for _, sub := range []string{ToProcessDir, ErrorDir, ArchivesDir} {
		if err := os.MkdirAll(layout.Path(sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return nil
}

// Files returns the files of the given kind in sub, sorted by name
func (layout Layout) Files(sub string, kind Kind) ([]string, error) {
	entries, err := os.ReadDir(layout.Path(sub))
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if fileKind, ok := KindOf(entry.Name()); ok && fileKind == kind {
			files = append(files, filepath.Join(layout.Path(sub), entry.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// MoveTo moves fn into sub, replacing a file with the same name
func (layout Layout) MoveTo(fn, sub string) (string, error) {
	dest := filepath.Join(layout.Path(sub), filepath.Base(fn))
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return "", err
		}
	}

	if err := os.Rename(fn, dest); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", filepath.Base(fn), sub, err)
	}

	return dest, nil
}

// Requeue moves every file of kind from error/ back to to_process/
func (layout Layout) Requeue(ctx context.Context, kind Kind) (int, error) {
	files, err := layout.Files(ErrorDir, kind)
	if err != nil {
		return 0, err
	}

	for _, fn := range files {
		if _, err := layout.MoveTo(fn, ToProcessDir); err != nil {
			return 0, err
		}
		zerolog.Ctx(ctx).Info().Str("FileName", filepath.Base(fn)).Msg("moving file from error directory")
	}

	return len(files), nil
}
