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

// Package node implements the per-node state machine, supervision loop,
// dependency barrier, and manual-action handling that make up the core of
// the session supervisor (spec C3).
package node

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/neroreflex/sessionrunner/internal/log"
	"github.com/neroreflex/sessionrunner/internal/signal"
)

const dependencyPollInterval = 250 * time.Millisecond

// RestartPolicy bounds how many times a node is respawned after a failing
// exit and how long the loop waits between attempts. A zero MaxTimes
// disables restart.
type RestartPolicy struct {
	MaxTimes uint64
	Delay    time.Duration
}

// Config is the immutable construction parameters for a Node. The
// descriptor loader is the only place that should build one of these.
type Config struct {
	Name         string
	Kind         Kind
	Cmd          string
	Args         []string
	Environment  map[string]string
	Pidfile      string
	StopSignal   signal.Signal
	Restart      RestartPolicy
	Dependencies []*Node
}

// Node is one supervised process entry: immutable topology and
// configuration plus a guarded, mutable Status.
type Node struct {
	Name         string
	Kind         Kind
	Cmd          string
	Args         []string
	Environment  map[string]string
	Pidfile      string
	StopSignal   signal.Signal
	Restart      RestartPolicy
	Dependencies []*Node

	mu     sync.Mutex
	status Status
	notify *notifier

	// wakeCh nudges a parked loop awake without going through the
	// manual-action/signal path — used by Manager.Start on a non-running
	// node (DESIGN.md Open Question #2).
	wakeCh chan struct{}
}

// New constructs a Node in its initial Ready status.
func New(cfg Config) *Node {
	return &Node{
		Name:         cfg.Name,
		Kind:         cfg.Kind,
		Cmd:          cfg.Cmd,
		Args:         cfg.Args,
		Environment:  cfg.Environment,
		Pidfile:      cfg.Pidfile,
		StopSignal:   cfg.StopSignal,
		Restart:      cfg.Restart,
		Dependencies: cfg.Dependencies,
		status:       readyStatus(),
		notify:       newNotifier(),
		wakeCh:       make(chan struct{}, 1),
	}
}

// Status returns a snapshot of the node's current state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// IsRunning reports whether the node's child process is currently alive.
func (n *Node) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status.Kind == StatusRunning
}

// IssueManualAction conveys a Stop or Restart request: it records the
// action in the Running status and sends stop_signal to the child. The
// loop does not poll a separate queue — the child's exit (caused by the
// signal) is what wakes step 6 of the loop; pending tells it why.
func (n *Node) IssueManualAction(action PendingAction) error {
	n.mu.Lock()
	if n.status.Kind != StatusRunning || n.status.Pending != PendingNone {
		n.mu.Unlock()
		return ErrAlreadyPendingAction
	}
	pid := n.status.PID
	n.status.Pending = action
	n.mu.Unlock()
	n.notify.Broadcast()

	if err := n.StopSignal.Send(pid); err != nil {
		// Roll back so a retry is not refused forever (DESIGN.md
		// Open Question #5 — spec.md §9 flags this as unresolved in
		// the source).
		n.mu.Lock()
		if n.status.Kind == StatusRunning && n.status.Pending == action {
			n.status.Pending = PendingNone
		}
		n.mu.Unlock()
		n.notify.Broadcast()
		return &CannotSendSignalError{Err: err}
	}
	return nil
}

// Nudge wakes a parked (non-main, Stopped) node without signalling a PID —
// there isn't one. It is a no-op if the node is already Running (idempotent
// start, DESIGN.md Open Question #2).
func (n *Node) Nudge() {
	n.mu.Lock()
	running := n.status.Kind == StatusRunning
	n.mu.Unlock()
	if running {
		return
	}
	select {
	case n.wakeCh <- struct{}{}:
	default:
	}
}

// Run executes the node's supervision loop. For the main node it returns
// once the terminate-run cascade completes; for others it runs until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context, main bool) error {
	envSnapshot := snapshotEnviron()

	var iteration uint64
	for {
		iteration++
		willRestartIfFailed := iteration <= n.Restart.MaxTimes

		n.waitForDependencies(ctx)

		cmd := n.buildCommand(envSnapshot)
		if err := cmd.Start(); err != nil {
			log.Warningf("spawning %s: %v", n.Name, err)
			n.setStopped(Status{Kind: StatusStopped, Time: time.Now(), Restart: willRestartIfFailed, Reason: ReasonErrored, HadError: true})
			if done := n.postFailureAction(ctx, main, willRestartIfFailed); done {
				return nil
			}
			continue
		}

		if cmd.Process == nil {
			log.Warningf("no pid acquired for %s", n.Name)
			n.setStopped(Status{Kind: StatusStopped, Time: time.Now(), Restart: willRestartIfFailed, Reason: ReasonErrored, HadError: true})
			if done := n.postFailureAction(ctx, main, willRestartIfFailed); done {
				return nil
			}
			continue
		}

		pid := cmd.Process.Pid
		n.publishPidfile(pid)
		n.setRunning(pid)

		waitErr := cmd.Wait()

		n.mu.Lock()
		pending := n.status.Pending
		n.mu.Unlock()

		n.removePidfile()

		stopped, forceRestart, forceStop := stoppedStatusFor(pending, waitErr, willRestartIfFailed)
		n.setStopped(stopped)

		switch {
		case forceRestart:
			iteration = 0
			continue
		case forceStop:
			if main {
				n.terminateRun()
				return nil
			}
			if !n.park(ctx) {
				return nil
			}
			continue
		case stopped.Reason == ReasonCompleted && stopped.Success:
			if main {
				n.terminateRun()
				return nil
			}
			if !n.park(ctx) {
				return nil
			}
			continue
		case stopped.Restart:
			select {
			case <-time.After(n.Restart.Delay):
			case <-ctx.Done():
				return nil
			}
			continue
		default:
			if main {
				n.terminateRun()
				return nil
			}
			if !n.park(ctx) {
				return nil
			}
			continue
		}
	}
}

// postFailureAction handles the post-exit decision after a spawn/PID
// failure, which follows the same restart policy as a natural failure
// (spec.md §4.3.2 step 2/6). It returns true when Run should return.
func (n *Node) postFailureAction(ctx context.Context, main bool, willRestart bool) bool {
	if willRestart {
		select {
		case <-time.After(n.Restart.Delay):
			return false
		case <-ctx.Done():
			return true
		}
	}
	if main {
		n.terminateRun()
		return true
	}
	return !n.park(ctx)
}

// park blocks until either Nudge wakes the node (returns true, loop should
// continue) or ctx is cancelled (returns false, loop should return).
func (n *Node) park(ctx context.Context) bool {
	select {
	case <-n.wakeCh:
		return true
	case <-ctx.Done():
		return false
	}
}

func stoppedStatusFor(pending PendingAction, waitErr error, willRestartIfFailed bool) (Status, bool, bool) {
	now := time.Now()
	switch pending {
	case PendingRestart:
		return Status{Kind: StatusStopped, Time: now, Restart: true, Reason: ReasonManuallyRestarted}, true, false
	case PendingStop:
		return Status{Kind: StatusStopped, Time: now, Restart: false, Reason: ReasonManuallyStopped}, false, true
	default:
		if waitErr == nil {
			return Status{Kind: StatusStopped, Time: now, Restart: false, Reason: ReasonCompleted, Success: true}, false, false
		}
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return Status{
				Kind: StatusStopped, Time: now, Restart: willRestartIfFailed,
				Reason: ReasonCompleted, Success: false, ExitCode: exitErr.ExitCode(),
			}, false, false
		}
		return Status{Kind: StatusStopped, Time: now, Restart: willRestartIfFailed, Reason: ReasonErrored, HadError: true}, false, false
	}
}

func (n *Node) setRunning(pid int) {
	n.mu.Lock()
	n.status = Status{Kind: StatusRunning, PID: pid, Pending: PendingNone}
	n.mu.Unlock()
	n.notify.Broadcast()
}

func (n *Node) setStopped(s Status) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
	n.notify.Broadcast()
}

func (n *Node) buildCommand(snapshot []string) *exec.Cmd {
	cmd := exec.Command(n.Cmd, n.Args...)
	cmd.Env = mergeEnv(snapshot, n.Environment)
	// Run each node in its own process group so stop_signal addresses the
	// node alone, the same precaution runsccmd.Runsc.command takes via
	// unix.SysProcAttr before exec'ing runsc.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	return cmd
}

func (n *Node) publishPidfile(pid int) {
	if n.Pidfile == "" {
		return
	}
	fl := flock.New(n.Pidfile + ".lock")
	if err := fl.Lock(); err != nil {
		log.Warningf("locking pidfile for %s: %v", n.Name, err)
		return
	}
	defer fl.Unlock()
	if err := os.WriteFile(n.Pidfile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		log.Warningf("writing pidfile %s for %s: %v", n.Pidfile, n.Name, err)
	}
}

func (n *Node) removePidfile() {
	if n.Pidfile == "" {
		return
	}
	fl := flock.New(n.Pidfile + ".lock")
	if err := fl.Lock(); err != nil {
		log.Warningf("locking pidfile for %s: %v", n.Name, err)
		return
	}
	defer fl.Unlock()
	_ = os.Remove(n.Pidfile)
}

// waitForDependencies joins the dependency barrier for every direct
// dependency. A dependency that reports ErrServiceWontRestart is recorded
// and otherwise ignored: a node whose dependency is dead cannot make
// forward progress but must not deadlock the manager (spec.md §4.3.2 step 1).
func (n *Node) waitForDependencies(ctx context.Context) {
	var wg sync.WaitGroup
	for _, dep := range n.Dependencies {
		wg.Add(1)
		go func(d *Node) {
			defer wg.Done()
			if err := waitForDependencySatisfied(ctx, d); err != nil {
				log.Warningf("dependency %s of %s not satisfied: %v", d.Name, n.Name, err)
			}
		}(dep)
	}
	wg.Wait()
}

// waitForDependencySatisfied implements the dependency barrier of spec.md
// §4.3.5: level-triggered status re-check combined with an edge-triggered
// wake, polled on the 250ms cadence the spec calls out as part of the
// contract (not tunable).
func waitForDependencySatisfied(ctx context.Context, dep *Node) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(dependencyPollInterval), ctx)
	for {
		s := dep.Status()
		switch dep.Kind {
		case Service:
			switch s.Kind {
			case StatusRunning:
				return nil
			case StatusStopped:
				if !s.Restart {
					return ErrServiceWontRestart
				}
			}
		case OneShot:
			if s.Kind == StatusStopped {
				if s.Reason == ReasonCompleted && s.Success {
					return nil
				}
				if !s.Restart {
					return ErrServiceWontRestart
				}
			}
		}

		waitCh := dep.notify.Wait()
		d := b.NextBackOff()
		if d == backoff.Stop {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		select {
		case <-waitCh:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// terminateRun is the terminate-run cascade (spec.md §4.3.4): concurrently
// wait for each direct dependency to reach a parked or terminal state
// before returning control to the manager. It deliberately blocks without a
// deadline — a dependency's own dependencies are not recursively
// terminated, relying on every node's loop observing shutdown independently.
func (n *Node) terminateRun() {
	var wg sync.WaitGroup
	for _, dep := range n.Dependencies {
		wg.Add(1)
		go func(d *Node) {
			defer wg.Done()
			waitForDependencyStopped(d)
		}(dep)
	}
	wg.Wait()
}

func waitForDependencyStopped(dep *Node) {
	b := backoff.NewConstantBackOff(dependencyPollInterval)
	for {
		s := dep.Status()
		if s.Kind == StatusStopped && !s.Restart {
			return
		}
		waitCh := dep.notify.Wait()
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-waitCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func snapshotEnviron() []string {
	return append([]string{}, os.Environ()...)
}

// mergeEnv overlays overrides onto snapshot, deduping by key so the child
// never sees the same variable twice (spec.md §4.3.1).
func mergeEnv(snapshot []string, overrides map[string]string) []string {
	values := make(map[string]string, len(snapshot)+len(overrides))
	order := make([]string, 0, len(snapshot)+len(overrides))

	add := func(k, v string) {
		if _, exists := values[k]; !exists {
			order = append(order, k)
		}
		values[k] = v
	}

	for _, kv := range snapshot {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		add(k, v)
	}
	for k, v := range overrides {
		add(k, v)
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+values[k])
	}
	return out
}
