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

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neroreflex/sessionrunner/internal/node"
	"github.com/neroreflex/sessionrunner/internal/signal"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestManagerNotFound(t *testing.T) {
	mgr := New(map[string]*node.Node{}, "default.service")
	_, err := mgr.IsRunning("default.service")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	require.Error(t, mgr.Stop("missing"))
	require.Error(t, mgr.Restart("missing"))
	require.Error(t, mgr.Start("missing"))
}

func TestManagerRunReturnsWhenMainExits(t *testing.T) {
	side := node.New(node.Config{Name: "side", Kind: node.Service, Cmd: "/bin/sleep", Args: []string{"10"}, StopSignal: signal.SIGTERM})
	main := node.New(node.Config{Name: "main", Kind: node.Service, Cmd: "/bin/true", StopSignal: signal.SIGTERM})

	mgr := New(map[string]*node.Node{"main": main, "side": side}, "main")

	done := make(chan error, 1)
	go func() { done <- mgr.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("manager.Run did not return when main exited")
	}
}

func TestManagerStopAndRestart(t *testing.T) {
	n := node.New(node.Config{Name: "svc", Kind: node.Service, Cmd: "/bin/sleep", Args: []string{"30"}, StopSignal: signal.SIGTERM})
	mgr := New(map[string]*node.Node{"svc": n}, "svc")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mgr.Run(ctx) }()

	waitUntil(t, time.Second, func() bool {
		running, _ := mgr.IsRunning("svc")
		return running
	})

	first, err := mgr.Inspect("svc")
	require.NoError(t, err)
	require.NoError(t, mgr.Restart("svc"))
	waitUntil(t, 2*time.Second, func() bool {
		st, err := mgr.Inspect("svc")
		return err == nil && st.Kind == node.StatusRunning && st.PID != first.PID
	})

	require.NoError(t, mgr.Stop("svc"))
	waitUntil(t, 2*time.Second, func() bool {
		st, err := mgr.Inspect("svc")
		return err == nil && st.Kind == node.StatusStopped && st.Reason == node.ReasonManuallyStopped
	})
}
