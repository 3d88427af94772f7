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

// Command sessionexec replaces itself with the given program, carrying the
// environment overrides passed as KEY=VALUE arguments before the "--"
// separator. It supplements a feature present in original_source/ but
// dropped from the distilled node model: a launcher wrapper descriptors can
// point cmd at instead of the target binary directly, when a node needs its
// environment assembled by a short-lived helper rather than by sessionrunnerd
// itself.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	sep := -1
	for i, a := range args {
		if a == "--" {
			sep = i
			break
		}
	}
	if sep < 0 || sep+1 >= len(args) {
		return fmt.Errorf("usage: sessionexec [KEY=VALUE ...] -- program [args...]")
	}

	env := append([]string{}, os.Environ()...)
	env = append(env, args[:sep]...)

	target := args[sep+1:]
	path, err := lookPath(target[0])
	if err != nil {
		return err
	}
	return unix.Exec(path, target, env)
}

func lookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: not found in PATH", name)
	}
	return path, nil
}
