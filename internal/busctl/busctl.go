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

// Package busctl exposes the manager's control surface on the D-Bus
// session bus (spec C5): Start, Stop, Restart, Inspect, Change, and
// Terminate, each returning a numeric status code rather than a D-Bus
// error so that thin clients (sessionctl) can match on it directly.
package busctl

import (
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/neroreflex/sessionrunner/internal/log"
	"github.com/neroreflex/sessionrunner/internal/manager"
	"github.com/neroreflex/sessionrunner/internal/node"
)

const (
	// BusName is the well-known name sessionrunnerd acquires on the
	// session bus.
	BusName = "org.sessionrunner.Supervisor1"
	// ObjectPath is the single object exporting the control surface.
	ObjectPath = dbus.ObjectPath("/org/sessionrunner/Supervisor1")
	// Interface is the D-Bus interface name methods are exported under.
	Interface = "org.sessionrunner.Supervisor1"
)

// Status codes returned by every exported method (spec.md §6).
const (
	StatusOK = iota
	StatusBusError
	StatusNotFound
	StatusManualActionError
	StatusEncodingError
)

// Server owns the session bus connection and the exported object.
type Server struct {
	conn *dbus.Conn
	mgr  *manager.Manager
}

// Connect acquires the session bus and exports the control surface. Callers
// must call Close when shutting down.
func Connect(mgr *manager.Manager) (*Server, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}

	s := &Server{conn: conn, mgr: mgr}
	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting object: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already owned", BusName)
	}

	return s, nil
}

// Close releases the bus connection.
func (s *Server) Close() error { return s.conn.Close() }

// Start exports manager.Start.
func (s *Server) Start(name string) (int32, *dbus.Error) {
	if err := s.mgr.Start(name); err != nil {
		return s.code(name, err), nil
	}
	return StatusOK, nil
}

// Stop exports manager.Stop.
func (s *Server) Stop(name string) (int32, *dbus.Error) {
	if err := s.mgr.Stop(name); err != nil {
		return s.code(name, err), nil
	}
	return StatusOK, nil
}

// Restart exports manager.Restart.
func (s *Server) Restart(name string) (int32, *dbus.Error) {
	if err := s.mgr.Restart(name); err != nil {
		return s.code(name, err), nil
	}
	return StatusOK, nil
}

// Change is left unimplemented: atomic descriptor reconfiguration would
// require reloading and re-validating the dependency graph while nodes are
// live, which contradicts the frozen-graph invariant this supervisor relies
// on (DESIGN.md Open Question #4). The method is still exported, always
// refusing with StatusBusError, so clients get a well-defined refusal
// rather than an unknown-method bus error.
func (s *Server) Change(name string) (int32, *dbus.Error) {
	return StatusBusError, nil
}

// Terminate cancels the manager's shared run context and returns StatusOK
// without waiting (DESIGN.md Open Question #3). Cancellation ends node loops
// that are parked, sleeping out a restart delay, or waiting on a dependency.
// No child process is signalled: a loop whose child is alive stays blocked
// until that child exits, so the main node's run returns only after its
// current child has exited.
func (s *Server) Terminate() (int32, *dbus.Error) {
	s.mgr.Shutdown()
	return StatusOK, nil
}

// Inspect returns a status code and a JSON-encoded {"running": bool}
// document, the original_source/sessionrunner/src/dbus.rs TargetStatus
// payload. The code is a signed 32-bit integer (D-Bus type "i"), as for
// every other method here, not an unsigned one.
func (s *Server) Inspect(name string) (int32, string, *dbus.Error) {
	st, err := s.mgr.Inspect(name)
	if err != nil {
		return s.code(name, err), "", nil
	}
	doc, err := json.Marshal(targetStatus{Running: st.Kind == node.StatusRunning})
	if err != nil {
		return StatusEncodingError, "", nil
	}
	return StatusOK, string(doc), nil
}

// targetStatus is the small document a successful Inspect call serializes,
// mirroring dbus.rs's TargetStatus{running}.
type targetStatus struct {
	Running bool `json:"running"`
}

func (s *Server) code(name string, err error) int32 {
	switch err.(type) {
	case *manager.NotFoundError:
		return StatusNotFound
	default:
		log.Warningf("manual action on %s: %v", name, err)
		return StatusManualActionError
	}
}

const introspectXML = `
<node>
  <interface name="org.sessionrunner.Supervisor1">
    <method name="Start"><arg direction="in" type="s"/><arg direction="out" type="i"/></method>
    <method name="Stop"><arg direction="in" type="s"/><arg direction="out" type="i"/></method>
    <method name="Restart"><arg direction="in" type="s"/><arg direction="out" type="i"/></method>
    <method name="Change"><arg direction="in" type="s"/><arg direction="out" type="i"/></method>
    <method name="Terminate"><arg direction="out" type="i"/></method>
    <method name="Inspect">
      <arg direction="in" type="s"/>
      <arg direction="out" type="i"/>
      <arg direction="out" type="s"/>
    </method>
  </interface>
</node>`
