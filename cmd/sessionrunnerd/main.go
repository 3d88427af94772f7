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

// Command sessionrunnerd is the supervisor daemon: it loads the node
// descriptor tree, runs it to completion starting from the configured main
// node, and exposes the control surface on the D-Bus session bus. Like
// sessionctl, it dispatches through google/subcommands (runsc/cmd/do.go's
// single-verb-per-binary shape) rather than the bare standard library
// flag.FlagSet.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/subcommands"

	"github.com/neroreflex/sessionrunner/internal/busctl"
	"github.com/neroreflex/sessionrunner/internal/descriptor"
	"github.com/neroreflex/sessionrunner/internal/log"
	"github.com/neroreflex/sessionrunner/internal/manager"
	"github.com/neroreflex/sessionrunner/internal/node"
	"github.com/neroreflex/sessionrunner/internal/rtconfig"
	"github.com/neroreflex/sessionrunner/internal/runtimedir"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&serveCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// serveCmd is the daemon's only verb: load the descriptor tree and
// supervise it until the main node exits.
type serveCmd struct {
	configPath string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "load the node descriptor tree and supervise it" }
func (*serveCmd) Usage() string {
	return "serve [-config path]:\n  run the supervisor daemon until the main node exits.\n"
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "/etc/sessionrunner/sessionrunner.toml", "path to the daemon config file")
}

func (c *serveCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	if err := serve(c.configPath); err != nil {
		log.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func serve(configPath string) error {
	cfg := rtconfig.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := rtconfig.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log.SetFormat(cfg.LogFormat)
	log.SetDebug(cfg.Debug)

	runDir, err := runtimedir.Create()
	if err != nil {
		return err
	}
	log.Infof("runtime directory: %s", runDir)

	nodes, err := descriptor.LoadTree(cfg.Main, cfg.SearchPaths)
	if err != nil {
		var notFound *descriptor.FileNotFoundError
		if !errors.As(err, &notFound) || notFound.Name != cfg.Main {
			return fmt.Errorf("loading descriptors: %w", err)
		}
		shell := loginShell()
		log.Warningf("no %s descriptor on the search path, falling back to login shell %s", cfg.Main, shell)
		nodes = map[string]*node.Node{cfg.Main: descriptor.ShellFallback(cfg.Main, shell)}
	}
	log.Infof("loaded %d node(s), main=%s", len(nodes), cfg.Main)

	mgr := manager.New(nodes, cfg.Main)

	bus, err := busctl.Connect(mgr)
	if err != nil {
		return fmt.Errorf("starting control surface: %w", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("sd_notify READY: %v", err)
	} else if !ok {
		log.Debugf("not running under a notify-aware supervisor")
	}

	err = mgr.Run(ctx)

	if ok, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		log.Warningf("sd_notify STOPPING: %v", nerr)
	} else if !ok {
		log.Debugf("not running under a notify-aware supervisor")
	}

	return err
}

// loginShell resolves the invoking user's login shell the way the original
// daemon's get_shell() did via getpwuid_r: look up the current uid's /etc/passwd
// entry (os/user has no Shell field) and fall back to $SHELL, then /bin/sh, if
// the lookup fails — e.g. under a container with no passwd database.
func loginShell() string {
	u, err := user.Current()
	if err != nil {
		return shellEnvFallback()
	}

	f, err := os.Open("/etc/passwd")
	if err != nil {
		return shellEnvFallback()
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		// uid:gid:name:dir:shell at fields[2]/[6] of name:passwd:uid:gid:gecos:dir:shell
		if len(fields) == 7 && fields[2] == u.Uid && fields[6] != "" {
			return fields[6]
		}
	}
	return shellEnvFallback()
}

func shellEnvFallback() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}
