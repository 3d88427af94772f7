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

// Package signal implements the closed catalogue of POSIX signals used to
// address and terminate supervised child processes.
package signal

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Signal is one of the enumerated POSIX signals a node descriptor may name
// as its stop_signal.
type Signal unix.Signal

// The closed set of signals a descriptor may reference.
const (
	SIGHUP    = Signal(unix.SIGHUP)
	SIGINT    = Signal(unix.SIGINT)
	SIGQUIT   = Signal(unix.SIGQUIT)
	SIGILL    = Signal(unix.SIGILL)
	SIGTRAP   = Signal(unix.SIGTRAP)
	SIGABRT   = Signal(unix.SIGABRT)
	SIGBUS    = Signal(unix.SIGBUS)
	SIGFPE    = Signal(unix.SIGFPE)
	SIGKILL   = Signal(unix.SIGKILL)
	SIGUSR1   = Signal(unix.SIGUSR1)
	SIGSEGV   = Signal(unix.SIGSEGV)
	SIGUSR2   = Signal(unix.SIGUSR2)
	SIGPIPE   = Signal(unix.SIGPIPE)
	SIGALRM   = Signal(unix.SIGALRM)
	SIGTERM   = Signal(unix.SIGTERM)
	SIGCHLD   = Signal(unix.SIGCHLD)
	SIGCONT   = Signal(unix.SIGCONT)
	SIGSTOP   = Signal(unix.SIGSTOP)
	SIGTSTP   = Signal(unix.SIGTSTP)
	SIGTTIN   = Signal(unix.SIGTTIN)
	SIGTTOU   = Signal(unix.SIGTTOU)
	SIGURG    = Signal(unix.SIGURG)
	SIGVTALRM = Signal(unix.SIGVTALRM)
	SIGXCPU   = Signal(unix.SIGXCPU)
	SIGXFSZ   = Signal(unix.SIGXFSZ)
)

var byName = map[string]Signal{
	"SIGHUP":    SIGHUP,
	"SIGINT":    SIGINT,
	"SIGQUIT":   SIGQUIT,
	"SIGILL":    SIGILL,
	"SIGTRAP":   SIGTRAP,
	"SIGABRT":   SIGABRT,
	"SIGABORT":  SIGABRT, // alias
	"SIGBUS":    SIGBUS,
	"SIGFPE":    SIGFPE,
	"SIGKILL":   SIGKILL,
	"SIGUSR1":   SIGUSR1,
	"SIGSEGV":   SIGSEGV,
	"SIGUSR2":   SIGUSR2,
	"SIGPIPE":   SIGPIPE,
	"SIGALRM":   SIGALRM,
	"SIGTERM":   SIGTERM,
	"SIGCHLD":   SIGCHLD,
	"SIGCLD":    SIGCHLD, // alias
	"SIGCONT":   SIGCONT,
	"SIGSTOP":   SIGSTOP,
	"SIGTSTP":   SIGTSTP,
	"SIGTTIN":   SIGTTIN,
	"SIGTTOU":   SIGTTOU,
	"SIGURG":    SIGURG,
	"SIGVTALRM": SIGVTALRM,
	"SIGXCPU":   SIGXCPU,
	"SIGXFSZ":   SIGXFSZ,
}

var name = map[Signal]string{
	SIGHUP: "SIGHUP", SIGINT: "SIGINT", SIGQUIT: "SIGQUIT", SIGILL: "SIGILL",
	SIGTRAP: "SIGTRAP", SIGABRT: "SIGABRT", SIGBUS: "SIGBUS", SIGFPE: "SIGFPE",
	SIGKILL: "SIGKILL", SIGUSR1: "SIGUSR1", SIGSEGV: "SIGSEGV", SIGUSR2: "SIGUSR2",
	SIGPIPE: "SIGPIPE", SIGALRM: "SIGALRM", SIGTERM: "SIGTERM", SIGCHLD: "SIGCHLD",
	SIGCONT: "SIGCONT", SIGSTOP: "SIGSTOP", SIGTSTP: "SIGTSTP", SIGTTIN: "SIGTTIN",
	SIGTTOU: "SIGTTOU", SIGURG: "SIGURG", SIGVTALRM: "SIGVTALRM", SIGXCPU: "SIGXCPU",
	SIGXFSZ: "SIGXFSZ",
}

// ErrInvalidName is returned by Parse when the text does not name a known signal.
type ErrInvalidName struct{ Text string }

func (e *ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid signal name: %q", e.Text)
}

// Parse resolves descriptor text of the form "SIGTERM" to a Signal.
// Matching is case-insensitive; SIGABORT aliases SIGABRT and SIGCLD aliases
// SIGCHLD.
func Parse(text string) (Signal, error) {
	sig, ok := byName[strings.ToUpper(strings.TrimSpace(text))]
	if !ok {
		return 0, &ErrInvalidName{Text: text}
	}
	return sig, nil
}

// String renders the canonical name of the signal.
func (s Signal) String() string {
	if n, ok := name[s]; ok {
		return n
	}
	return fmt.Sprintf("signal(%d)", int(s))
}

// Send dispatches the signal to the given PID, surfacing the OS error number
// on failure.
func (s Signal) Send(pid int) error {
	if err := unix.Kill(pid, unix.Signal(s)); err != nil {
		return fmt.Errorf("sending %s to pid %d: %w", s, pid, err)
	}
	return nil
}
