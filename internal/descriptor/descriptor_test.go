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

package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neroreflex/sessionrunner/internal/node"
	"github.com/neroreflex/sessionrunner/internal/signal"
)

func writeDescriptor(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadTreeHappyPath(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "dep.service", `{"kind":"service","cmd":"/bin/dep","args":[],"max_restarts":0,"restart_delay_secs":0,"dependencies":[]}`)
	writeDescriptor(t, dir, "default.service", `{"kind":"service","cmd":"/bin/main","args":["-x"],"stop_signal":"SIGINT","max_restarts":2,"restart_delay_secs":1,"dependencies":["dep.service"]}`)

	nodes, err := LoadTree("default.service", []string{dir})
	require.NoError(t, err)
	require.Contains(t, nodes, "default.service")
	require.Contains(t, nodes, "dep.service")

	main := nodes["default.service"]
	require.Equal(t, "/bin/main", main.Cmd)
	require.Equal(t, node.Service, main.Kind)
	require.Len(t, main.Dependencies, 1)
	require.Equal(t, nodes["dep.service"], main.Dependencies[0])
}

func TestLoadTreeMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTree("nope.service", []string{dir})
	require.Error(t, err)
	var nf *FileNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestLoadTreeCycle(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.service", `{"kind":"service","cmd":"/bin/a","dependencies":["b.service"]}`)
	writeDescriptor(t, dir, "b.service", `{"kind":"service","cmd":"/bin/b","dependencies":["a.service"]}`)

	_, err := LoadTree("a.service", []string{dir})
	require.Error(t, err)
	var cyc *CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
}

func TestLoadTreeDiamondIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "shared.service", `{"kind":"service","cmd":"/bin/shared"}`)
	writeDescriptor(t, dir, "left.service", `{"kind":"service","cmd":"/bin/left","dependencies":["shared.service"]}`)
	writeDescriptor(t, dir, "right.service", `{"kind":"service","cmd":"/bin/right","dependencies":["shared.service"]}`)
	writeDescriptor(t, dir, "top.service", `{"kind":"service","cmd":"/bin/top","dependencies":["left.service","right.service"]}`)

	nodes, err := LoadTree("top.service", []string{dir})
	require.NoError(t, err)
	require.Same(t, nodes["shared.service"], nodes["left.service"].Dependencies[0])
	require.Same(t, nodes["shared.service"], nodes["right.service"].Dependencies[0])
}

func TestLoadTreeSearchPathLastMatchWins(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeDescriptor(t, dirA, "default.service", `{"kind":"service","cmd":"/bin/from-a"}`)
	writeDescriptor(t, dirB, "default.service", `{"kind":"service","cmd":"/bin/from-b"}`)

	nodes, err := LoadTree("default.service", []string{dirA, dirB})
	require.NoError(t, err)
	require.Equal(t, "/bin/from-b", nodes["default.service"].Cmd)

	nodes, err = LoadTree("default.service", []string{dirB, dirA})
	require.NoError(t, err)
	require.Equal(t, "/bin/from-a", nodes["default.service"].Cmd)
}

func TestLoadTreeInvalidKind(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "default.service", `{"kind":"bogus","cmd":"/bin/x"}`)

	_, err := LoadTree("default.service", []string{dir})
	require.Error(t, err)
	var ik *InvalidKindError
	require.ErrorAs(t, err, &ik)
}

func TestShellFallback(t *testing.T) {
	n := ShellFallback("default.service", "/bin/bash")
	require.Equal(t, "default.service", n.Name)
	require.Equal(t, node.Service, n.Kind)
	require.Equal(t, "/bin/bash", n.Cmd)
	require.Equal(t, signal.SIGTERM, n.StopSignal)
	require.Empty(t, n.Dependencies)
	require.Equal(t, uint64(0), n.Restart.MaxTimes)
}

func TestLoadTreeInvalidSignal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "default.service", `{"kind":"service","cmd":"/bin/x","stop_signal":"SIGNOTREAL"}`)

	_, err := LoadTree("default.service", []string{dir})
	require.Error(t, err)
}

func TestLoadTreeDefaultStopSignal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "default.service", `{"kind":"oneshot","cmd":"/bin/x"}`)

	nodes, err := LoadTree("default.service", []string{dir})
	require.NoError(t, err)
	require.Equal(t, node.OneShot, nodes["default.service"].Kind)
	require.Equal(t, signal.SIGTERM, nodes["default.service"].StopSignal)
}
