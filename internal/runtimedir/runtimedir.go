// Copyright 2026 The Sessionrunner Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtimedir picks and creates the per-instance scratch directory
// sessionrunnerd makes at startup, mirroring runsc's use of a run-root under
// XDG_RUNTIME_DIR but disambiguated per invocation so two daemons launched
// in the same second never collide. The daemon only creates and logs the
// directory; pidfiles are written wherever their descriptors say.
package runtimedir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const fallbackBase = "/tmp"

// Create makes a fresh runtime directory under XDG_RUNTIME_DIR (or
// fallbackBase if unset) and returns its path.
func Create() (string, error) {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = fallbackBase
	}

	name := fmt.Sprintf("sessionrunner-%d-%s", time.Now().Unix(), uuid.NewString())
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating runtime dir %s: %w", dir, err)
	}
	return dir, nil
}
