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

import "errors"

// ErrAlreadyPendingAction is returned by IssueManualAction when the node is
// not Running, or a pending action has already been recorded.
var ErrAlreadyPendingAction = errors.New("a manual action is already pending for this node")

// ErrServiceWontRestart is returned by the dependency barrier when a
// dependency has reached a terminal Stopped state with restart=false.
var ErrServiceWontRestart = errors.New("dependency terminated with failure and won't restart")

// CannotSendSignalError wraps the OS error encountered while delivering a
// manual action's stop signal.
type CannotSendSignalError struct{ Err error }

func (e *CannotSendSignalError) Error() string {
	return "cannot send signal: " + e.Err.Error()
}

func (e *CannotSendSignalError) Unwrap() error { return e.Err }
