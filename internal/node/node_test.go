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

package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func TestRunNaturalSuccessNonMainParks(t *testing.T) {
	n := New(Config{
		Name: "ok", Kind: Service, Cmd: "/bin/true",
		StopSignal: signal.SIGTERM,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { _ = n.Run(ctx, false); close(done) }()

	waitUntil(t, time.Second, func() bool {
		s := n.Status()
		return s.Kind == StatusStopped && s.Reason == ReasonCompleted && s.Success
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation while parked")
	}
}

func TestRunRestartExhaustion(t *testing.T) {
	n := New(Config{
		Name: "fails", Kind: Service, Cmd: "/bin/false",
		StopSignal: signal.SIGTERM,
		Restart:    RestartPolicy{MaxTimes: 3, Delay: 0},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { _ = n.Run(ctx, true); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("main node with exhausted restarts never returned")
	}

	s := n.Status()
	require.Equal(t, StatusStopped, s.Kind)
	require.False(t, s.Restart)
	require.Equal(t, ReasonCompleted, s.Reason)
}

func TestIssueManualActionRequiresRunning(t *testing.T) {
	n := New(Config{Name: "idle", Kind: Service, Cmd: "/bin/sleep", Args: []string{"5"}, StopSignal: signal.SIGTERM})
	err := n.IssueManualAction(PendingStop)
	require.ErrorIs(t, err, ErrAlreadyPendingAction)
}

func TestIssueManualStopSignalsRunningChild(t *testing.T) {
	n := New(Config{
		Name: "sleeper", Kind: Service, Cmd: "/bin/sleep", Args: []string{"30"},
		StopSignal: signal.SIGTERM,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { _ = n.Run(ctx, false); close(done) }()

	waitUntil(t, time.Second, n.IsRunning)

	require.NoError(t, n.IssueManualAction(PendingStop))

	waitUntil(t, 2*time.Second, func() bool {
		s := n.Status()
		return s.Kind == StatusStopped && s.Reason == ReasonManuallyStopped
	})

	cancel()
	<-done
}

func TestIssueManualRestartResetsCounterAndLoops(t *testing.T) {
	n := New(Config{
		Name: "respawner", Kind: Service, Cmd: "/bin/sleep", Args: []string{"30"},
		StopSignal: signal.SIGTERM,
		Restart:    RestartPolicy{MaxTimes: 0, Delay: 0},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { _ = n.Run(ctx, false); close(done) }()

	waitUntil(t, time.Second, n.IsRunning)
	firstPID := n.Status().PID

	require.NoError(t, n.IssueManualAction(PendingRestart))

	waitUntil(t, 2*time.Second, func() bool {
		s := n.Status()
		return s.Kind == StatusRunning && s.PID != firstPID
	})

	cancel()
	require.NoError(t, n.IssueManualAction(PendingStop))
	<-done
}

func TestDependencyBarrierServiceWaitsForRunning(t *testing.T) {
	dep := New(Config{Name: "dep", Kind: Service, Cmd: "/bin/sleep", Args: []string{"2"}, StopSignal: signal.SIGTERM})
	main := New(Config{
		Name: "main", Kind: Service, Cmd: "/bin/true",
		StopSignal: signal.SIGTERM, Dependencies: []*Node{dep},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = dep.Run(ctx, false) }()

	done := make(chan struct{})
	go func() { _ = main.Run(ctx, true); close(done) }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("main node never progressed past the dependency barrier")
	}
	require.Equal(t, StatusStopped, dep.Status().Kind, "main's terminate-run cascade returns only after the dependency has stopped")
}

func TestDependencyBarrierOneShotCompletion(t *testing.T) {
	dep := New(Config{Name: "setup", Kind: OneShot, Cmd: "/bin/true", StopSignal: signal.SIGTERM})
	main := New(Config{
		Name: "main", Kind: Service, Cmd: "/bin/true",
		StopSignal: signal.SIGTERM, Dependencies: []*Node{dep},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = dep.Run(ctx, false) }()

	done := make(chan struct{})
	go func() { _ = main.Run(ctx, true); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main node never progressed past the oneshot dependency barrier")
	}
}

func TestDependencyBarrierOneShotFailureWontRestart(t *testing.T) {
	dep := New(Config{Name: "setup", Kind: OneShot, Cmd: "/bin/false", StopSignal: signal.SIGTERM})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dep.Run(ctx, false) }()

	err := waitForDependencySatisfied(ctx, dep)
	require.ErrorIs(t, err, ErrServiceWontRestart)
}

func TestNudgeWakesParkedNode(t *testing.T) {
	n := New(Config{Name: "once", Kind: OneShot, Cmd: "/bin/true", StopSignal: signal.SIGTERM})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = n.Run(ctx, false) }()
	waitUntil(t, time.Second, func() bool { return n.Status().Kind == StatusStopped })
	firstStop := n.Status().Time

	n.Nudge()
	waitUntil(t, time.Second, func() bool {
		s := n.Status()
		return s.Kind == StatusStopped && s.Time.After(firstStop)
	})
	cancel()
}
