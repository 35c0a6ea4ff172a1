/*
Copyright 2017 Mosaic Networks Ltd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter routes logger output through testing.T.Log so a test
// only prints its logging when it fails (go test -v still shows it live).
type testLoggerAdapter struct {
	t      *testing.T
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		a.t.Log(a.prefix + ": " + string(d))
		return len(d), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a *logrus.Entry whose output is captured by t.Log
// instead of going to stderr.
func NewTestLogger(t *testing.T) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(&testLoggerAdapter{t: t})
	return logrus.NewEntry(l)
}

type benchmarkLoggerAdapter struct {
	b      *testing.B
	prefix string
}

func (b *benchmarkLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if b.prefix != "" {
		b.b.Log(b.prefix + ": " + string(d))
		return len(d), nil
	}
	b.b.Log(string(d))
	return len(d), nil
}

// NewBenchmarkLogger is NewTestLogger's *testing.B counterpart.
func NewBenchmarkLogger(b *testing.B) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(&benchmarkLoggerAdapter{b: b})
	return logrus.NewEntry(l)
}
