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

// Package manager owns the node map produced by the descriptor loader and
// exposes the operations the control surface (busctl) drives: running the
// tree to completion and the Start/Stop/Restart/Inspect verbs against a
// single named node (spec C4).
package manager

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/neroreflex/sessionrunner/internal/node"
)

// NotFoundError reports an operation targeting an unknown node name.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("no such node: %s", e.Name) }

// Manager owns a resolved node graph and drives it to completion.
type Manager struct {
	nodes    map[string]*node.Node
	mainName string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New wraps a resolved node map (as produced by descriptor.LoadTree) for a
// given main node name.
func New(nodes map[string]*node.Node, mainName string) *Manager {
	return &Manager{nodes: nodes, mainName: mainName}
}

// Run starts every node concurrently and blocks until the main node
// returns. Non-main nodes are launched under an errgroup so that a fatal
// error in one of them tears down the shared context for the rest; the
// manager itself does not wait for them to finish unwinding — like the
// original's task tree, they are left to be reaped once ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	main, ok := m.nodes[m.mainName]
	if !ok {
		return &NotFoundError{Name: m.mainName}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for name, n := range m.nodes {
		if name == m.mainName {
			continue
		}
		n := n
		g.Go(func() error { return n.Run(gctx, false) })
	}

	err := main.Run(gctx, true)
	cancel()
	go func() { _ = g.Wait() }()
	return err
}

// Shutdown cancels the shared run context, asking every still-parked or
// still-waiting node loop to unwind.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) find(name string) (*node.Node, error) {
	n, ok := m.nodes[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return n, nil
}

// IsRunning reports whether the named node's child process is alive.
func (m *Manager) IsRunning(name string) (bool, error) {
	n, err := m.find(name)
	if err != nil {
		return false, err
	}
	return n.IsRunning(), nil
}

// Inspect returns the named node's current status snapshot.
func (m *Manager) Inspect(name string) (node.Status, error) {
	n, err := m.find(name)
	if err != nil {
		return node.Status{}, err
	}
	return n.Status(), nil
}

// Stop issues a manual stop to a Running node.
func (m *Manager) Stop(name string) error {
	n, err := m.find(name)
	if err != nil {
		return err
	}
	return n.IssueManualAction(node.PendingStop)
}

// Restart issues a manual restart to a Running node, or wakes a parked one.
//
// The original's dbus handler left this case as an unimplemented branch
// (spec.md §9); DESIGN.md Open Question #2 resolves it as: Running nodes go
// through the signal-driven manual-action path, anything else gets nudged
// directly since there is no live PID to signal.
func (m *Manager) Restart(name string) error {
	n, err := m.find(name)
	if err != nil {
		return err
	}
	if n.IsRunning() {
		return n.IssueManualAction(node.PendingRestart)
	}
	n.Nudge()
	return nil
}

// Start brings up a non-running node. It is idempotent: a Running node is
// left untouched.
func (m *Manager) Start(name string) error {
	n, err := m.find(name)
	if err != nil {
		return err
	}
	n.Nudge()
	return nil
}
