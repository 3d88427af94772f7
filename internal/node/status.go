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

import "time"

// Kind distinguishes a node that is expected to stay running from one that
// is satisfied by a single successful exit.
type Kind int

const (
	// Service nodes are expected to stay running; dependents are satisfied
	// while they are Running.
	Service Kind = iota
	// OneShot nodes are satisfied upon a single successful exit.
	OneShot
)

func (k Kind) String() string {
	if k == OneShot {
		return "oneshot"
	}
	return "service"
}

// PendingAction records a manual action already signalled to a Running
// node but not yet observed as an exit.
type PendingAction int

const (
	PendingNone PendingAction = iota
	PendingRestart
	PendingStop
)

// StopReason classifies why a node last transitioned to Stopped.
type StopReason int

const (
	ReasonCompleted StopReason = iota
	ReasonErrored
	ReasonManuallyStopped
	ReasonManuallyRestarted
)

func (r StopReason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonErrored:
		return "errored"
	case ReasonManuallyStopped:
		return "manually-stopped"
	case ReasonManuallyRestarted:
		return "manually-restarted"
	default:
		return "unknown"
	}
}

// StatusKind is the tag of the Status sum type (spec.md §3).
type StatusKind int

const (
	StatusReady StatusKind = iota
	StatusRunning
	StatusStopped
)

// Status is the node's guarded mutable state: Ready (never spawned),
// Running (child alive, with any pending manual action), or Stopped
// (child terminated, with the restart decision for the next iteration).
type Status struct {
	Kind StatusKind

	// valid when Kind == StatusRunning
	PID     int
	Pending PendingAction

	// valid when Kind == StatusStopped
	Time     time.Time
	Restart  bool
	Reason   StopReason
	ExitCode int
	HadError bool
}

func readyStatus() Status { return Status{Kind: StatusReady} }
