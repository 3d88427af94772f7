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

// Command sessionctl is the thin CLI client for sessionrunnerd's control
// surface, modelled on runsc's subcommand-per-verb CLI (runsc/cmd).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/google/subcommands"

	"github.com/neroreflex/sessionrunner/internal/busctl"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&inspectCmd{}, "")
	subcommands.Register(&startCmd{}, "")
	subcommands.Register(&stopCmd{}, "")
	subcommands.Register(&restartCmd{}, "")
	subcommands.Register(&changeCmd{}, "")
	subcommands.Register(&terminateCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// dial connects to the session bus, defaulting DBUS_SESSION_BUS_ADDRESS from
// XDG_RUNTIME_DIR when the caller's environment doesn't already set it
// (spec.md §6).
func dial() (*dbus.Conn, error) {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			os.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+runtimeDir+"/bus")
		}
	}
	return dbus.ConnectSessionBus()
}

func call(method string, args ...interface{}) (int32, []interface{}, error) {
	conn, err := dial()
	if err != nil {
		return busctl.StatusBusError, nil, fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(busctl.BusName, busctl.ObjectPath)
	call := obj.Call(busctl.Interface+"."+method, 0, args...)
	if call.Err != nil {
		return busctl.StatusBusError, nil, call.Err
	}
	return 0, call.Body, nil
}

type targetFlag struct {
	target string
}

func (t *targetFlag) register(f *flag.FlagSet) {
	f.StringVar(&t.target, "target", "default.service", "node name to operate on")
	f.StringVar(&t.target, "t", "default.service", "shorthand for -target")
}

type startCmd struct{ targetFlag }

func (*startCmd) Name() string             { return "start" }
func (*startCmd) Synopsis() string         { return "start a node" }
func (*startCmd) Usage() string            { return "start -t <node>:\n  wake a parked node; a running node is left as is.\n" }
func (c *startCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *startCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return runVerbCmd("Start", c.target)
}

type stopCmd struct{ targetFlag }

func (*stopCmd) Name() string             { return "stop" }
func (*stopCmd) Synopsis() string         { return "stop a running node" }
func (*stopCmd) Usage() string            { return "stop -t <node>:\n  stop a running node.\n" }
func (c *stopCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *stopCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return runVerbCmd("Stop", c.target)
}

type restartCmd struct{ targetFlag }

func (*restartCmd) Name() string             { return "restart" }
func (*restartCmd) Synopsis() string         { return "restart a node" }
func (*restartCmd) Usage() string            { return "restart -t <node>:\n  restart a running or parked node.\n" }
func (c *restartCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *restartCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return runVerbCmd("Restart", c.target)
}

type changeCmd struct{ targetFlag }

func (*changeCmd) Name() string             { return "change" }
func (*changeCmd) Synopsis() string         { return "reconfigure a node in place (unimplemented)" }
func (*changeCmd) Usage() string            { return "change -t <node>:\n  always refused; atomic reconfiguration is not supported.\n" }
func (c *changeCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *changeCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return runVerbCmd("Change", c.target)
}

type terminateCmd struct{}

func (*terminateCmd) Name() string                           { return "terminate" }
func (*terminateCmd) Synopsis() string                        { return "terminate the whole supervised tree" }
func (*terminateCmd) Usage() string                           { return "terminate:\n  shut the supervisor down.\n" }
func (*terminateCmd) SetFlags(*flag.FlagSet)                  {}
func (*terminateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	code, body, err := call("Terminate")
	return report(code, body, err)
}

type inspectCmd struct{ targetFlag }

func (*inspectCmd) Name() string             { return "inspect" }
func (*inspectCmd) Synopsis() string         { return "print a node's status" }
func (*inspectCmd) Usage() string            { return "inspect -t <node>:\n  print a node's current status.\n" }
func (c *inspectCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	conn, err := dial()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	obj := conn.Object(busctl.BusName, busctl.ObjectPath)
	var code int32
	var doc string
	if err := obj.Call(busctl.Interface+".Inspect", 0, c.target).
		Store(&code, &doc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if code != busctl.StatusOK {
		fmt.Fprintf(os.Stderr, "inspect %s: status %d\n", c.target, code)
		return subcommands.ExitFailure
	}

	var status struct {
		Running bool `json:"running"`
	}
	if err := json.Unmarshal([]byte(doc), &status); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: running=%t\n", c.target, status.Running)
	return subcommands.ExitSuccess
}

func runVerbCmd(method, target string) subcommands.ExitStatus {
	code, body, err := call(method, target)
	return report(code, body, err)
}

func report(code int32, body []interface{}, err error) subcommands.ExitStatus {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(body) > 0 {
		if status, ok := body[0].(int32); ok && status != busctl.StatusOK {
			fmt.Fprintf(os.Stderr, "request refused: status %d\n", status)
			return subcommands.ExitFailure
		}
	}
	_ = code
	return subcommands.ExitSuccess
}
