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

import "sync"

// notifier is a non-queuing broadcast wake: Broadcast wakes every goroutine
// parked on a channel returned by a prior Wait call, but carries no count —
// a waiter that arrives after Broadcast has already fired does not see it.
// Callers combine it with a timed re-check (see waitForDependencySatisfied)
// to stay race-free, per spec.md §4.3.5/§9.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

// Wait returns a channel that is closed the next time Broadcast is called.
func (n *notifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Broadcast wakes every current waiter.
func (n *notifier) Broadcast() {
	n.mu.Lock()
	old := n.ch
	n.ch = make(chan struct{})
	n.mu.Unlock()
	close(old)
}
