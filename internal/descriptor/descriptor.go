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

// Package descriptor builds the immutable node dependency graph from
// on-disk JSON definitions, resolving dependencies by filename across a
// search path and rejecting cycles.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neroreflex/sessionrunner/internal/node"
	"github.com/neroreflex/sessionrunner/internal/signal"
)

// schema is the on-disk JSON shape of a node descriptor file (spec.md §4.2).
type schema struct {
	Kind             string            `json:"kind"`
	Pidfile          string            `json:"pidfile,omitempty"`
	Cmd              string            `json:"cmd"`
	StopSignal       string            `json:"stop_signal,omitempty"`
	Args             []string          `json:"args"`
	MaxRestarts      uint64            `json:"max_restarts"`
	RestartDelaySecs uint64            `json:"restart_delay_secs"`
	Dependencies     []string          `json:"dependencies"`
	Environment      map[string]string `json:"environment,omitempty"`
}

// FileNotFoundError reports that no search directory contains the named
// descriptor.
type FileNotFoundError struct{ Name string }

func (e *FileNotFoundError) Error() string { return fmt.Sprintf("descriptor not found: %s", e.Name) }

// CyclicDependencyError reports a dependency cycle rooted at Name.
type CyclicDependencyError struct{ Name string }

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected at: %s", e.Name)
}

// InvalidKindError reports an unrecognized "kind" field.
type InvalidKindError struct{ Text string }

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("unrecognised kind value: %q", e.Text)
}

// JSONError wraps a descriptor parse failure.
type JSONError struct {
	Name string
	Err  error
}

func (e *JSONError) Error() string { return fmt.Sprintf("JSON error in %s: %v", e.Name, e.Err) }
func (e *JSONError) Unwrap() error { return e.Err }

// loader carries the state of a single load_tree invocation.
type loader struct {
	dirs             []string
	nodes            map[string]*node.Node
	currentlyLoading map[string]struct{}
}

// LoadTree parses descriptor files starting from rootName, resolving
// dependencies by filename across searchDirs (tested in order; the last
// existing match wins), and returns the resulting name→node map.
//
// A legitimate shared dependency already present in the map (a diamond in
// the dependency graph) is reused rather than rejected as a cycle; only a
// name still in the currently-loading set is a genuine cycle. See spec.md
// §9 and DESIGN.md Open Question #1.
func LoadTree(rootName string, searchDirs []string) (map[string]*node.Node, error) {
	l := &loader{
		dirs:             searchDirs,
		nodes:            make(map[string]*node.Node),
		currentlyLoading: make(map[string]struct{}),
	}
	if err := l.findAndLoad(rootName); err != nil {
		return nil, err
	}
	return l.nodes, nil
}

// ShellFallback builds the synthetic "default.service" node the daemon
// falls back to when no root descriptor exists on the search path
// (spec.md §7, §8 scenario 1): the invoking user's login shell, run as a
// Service with no restarts and no dependencies.
func ShellFallback(name, shell string) *node.Node {
	return node.New(node.Config{
		Name:       name,
		Kind:       node.Service,
		Cmd:        shell,
		StopSignal: signal.SIGTERM,
	})
}

func (l *loader) findAndLoad(name string) error {
	if _, loading := l.currentlyLoading[name]; loading {
		return &CyclicDependencyError{Name: name}
	}
	if _, done := l.nodes[name]; done {
		// Already resolved: a shared dependency, not a cycle.
		return nil
	}

	l.currentlyLoading[name] = struct{}{}
	defer delete(l.currentlyLoading, name)

	path, err := l.resolve(name)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var desc schema
	if err := json.Unmarshal(raw, &desc); err != nil {
		return &JSONError{Name: name, Err: err}
	}

	var kind node.Kind
	switch desc.Kind {
	case "service":
		kind = node.Service
	case "oneshot":
		kind = node.OneShot
	default:
		return &InvalidKindError{Text: desc.Kind}
	}

	stopSignal := signal.SIGTERM
	if desc.StopSignal != "" {
		stopSignal, err = signal.Parse(desc.StopSignal)
		if err != nil {
			return err
		}
	}

	deps := make([]*node.Node, 0, len(desc.Dependencies))
	for _, dep := range desc.Dependencies {
		if err := l.findAndLoad(dep); err != nil {
			return err
		}
		deps = append(deps, l.nodes[dep])
	}

	env := desc.Environment
	if env == nil {
		env = map[string]string{}
	}

	n := node.New(node.Config{
		Name:       name,
		Kind:       kind,
		Cmd:        desc.Cmd,
		Args:       desc.Args,
		Pidfile:    desc.Pidfile,
		StopSignal: stopSignal,
		Restart: node.RestartPolicy{
			MaxTimes: desc.MaxRestarts,
			Delay:    time.Duration(desc.RestartDelaySecs) * time.Second,
		},
		Dependencies: deps,
		Environment:  env,
	})

	l.nodes[name] = n
	return nil
}

// resolve walks l.dirs in order and returns the last existing match for
// name, or FileNotFoundError if none exists.
func (l *loader) resolve(name string) (string, error) {
	var chosen string
	for _, dir := range l.dirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			chosen = candidate
		}
	}
	if chosen == "" {
		return "", &FileNotFoundError{Name: name}
	}
	return chosen, nil
}
