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

// Package rtconfig loads the supervisor-level TOML configuration file that
// sessionrunnerd reads at startup: the main node name, descriptor search
// path, and logging options. Node descriptors themselves stay JSON
// (spec.md §4.2); this is the ambient daemon configuration the spec leaves
// implicit.
package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape of sessionrunnerd's configuration file.
type Config struct {
	Main        string   `toml:"main"`
	SearchPaths []string `toml:"search_paths"`
	LogFormat   string   `toml:"log_format"`
	Debug       bool     `toml:"debug"`
}

// Default returns the configuration assumed when no file is present: the
// search path mandated by spec.md §6, in order ($HOME/.config/sessionrunner,
// /etc/sessionrunner, /usr/lib/sessionrunner — later entries override
// earlier ones on a name collision).
func Default() Config {
	return Config{
		Main:        "default.service",
		SearchPaths: defaultSearchPaths(),
		LogFormat:   "text",
	}
}

func defaultSearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.Getenv("HOME")
	}

	paths := make([]string, 0, 3)
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "sessionrunner"))
	}
	return append(paths, "/etc/sessionrunner", "/usr/lib/sessionrunner")
}

// Load parses the TOML file at path, starting from Default so unspecified
// fields retain their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}
