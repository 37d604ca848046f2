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
package pkginfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const Name = "pvledger"

var (
	BuildDate  string
	CommitHash string
	Version    string
)

// ShortVersion is the version number alone
func ShortVersion() string {
	if Version != "" {
		return Version
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}

	return "dev"
}

// BuildVersionString returns a version info string suitable for printing on the command line
func BuildVersionString() string {
	return fmt.Sprintf(`%s %s %s/%s

Build Date: %s
Commit: %s
Built with: %s`, Name, ShortVersion(), runtime.GOOS, runtime.GOARCH, BuildDate, CommitHash, runtime.Version())
}

// UserAgent identifies pvledger to remote data sources
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+https://github.com/penny-vault/%s)", Name, ShortVersion(), Name)
}

// DependencyList returns the linked modules whose path starts with prefix,
// each of the form `module="version"`. An empty prefix lists every module.
func DependencyList(prefix string) []string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		log.Error().Msg("could not get package build info")
		return nil
	}

	deps := make([]string, 0, len(buildInfo.Deps))
	for _, dep := range buildInfo.Deps {
		if strings.HasPrefix(dep.Path, prefix) {
			deps = append(deps, fmt.Sprintf("%s=%q", dep.Path, dep.Version))
		}
	}

	sort.Strings(deps)
	return deps
}
