// Copyright 2024 The Keep Authors.
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

// Package log is a small structured-logging façade over logrus, shaped
// after the Infof/Warningf/SetLevel call pattern the teacher's own
// runsc/cli uses against its in-tree pkg/log.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetTarget redirects log output.
func SetTarget(w io.Writer) { std.SetOutput(w) }

// SetDebug toggles debug-level logging.
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

// SetJSON switches the wire format to JSON, for log aggregation pipelines.
func SetJSON(on bool) {
	if on {
		std.SetFormatter(&logrus.JSONFormatter{})
	} else {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Warningf logs at warning level.
func Warningf(format string, args ...interface{}) { std.Warningf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// WithField returns an entry carrying one structured field, for call sites
// that want key/value context instead of formatting it into the message.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}
