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

// Package log provides the supervisor's leveled logging entry points,
// backed by logrus the way the rest of this corpus wires structured
// logging: a single shared logger, plain printf-style call sites.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
}

// SetFormat switches between the "text" and "json" formatters, mirroring
// runsc's --log-format flag.
func SetFormat(format string) {
	switch format {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	default:
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetDebug toggles debug-level logging.
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects where log lines are written.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Debugf(format string, args ...any)   { std.Debugf(format, args...) }
func Infof(format string, args ...any)    { std.Infof(format, args...) }
func Warningf(format string, args ...any) { std.Warnf(format, args...) }
func Errorf(format string, args ...any)   { std.Errorf(format, args...) }

// IsDebug reports whether debug-level logging is currently enabled, mirroring
// gvisor's log.IsLogging(log.Debug) guard used before expensive debug formatting.
func IsDebug() bool {
	return std.IsLevelEnabled(logrus.DebugLevel)
}
