package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultConfigPaths(t *testing.T) {
	c := NewDefaultConfig()
	c.DataDir = "/tmp/swirlnode-test"

	if got, want := c.BadgerDir(), filepath.Join(c.DataDir, DefaultBadgerDir); got != want {
		t.Fatalf("BadgerDir() = %q, want %q", got, want)
	}
	if got, want := c.SegmentDir(), filepath.Join(c.DataDir, DefaultSegmentDir); got != want {
		t.Fatalf("SegmentDir() = %q, want %q", got, want)
	}
	if got, want := c.StateFilePath(), filepath.Join(c.DataDir, "state.json"); got != want {
		t.Fatalf("StateFilePath() = %q, want %q", got, want)
	}
	if got, want := c.AddressBookPath(), filepath.Join(c.DataDir, "addressbook.json"); got != want {
		t.Fatalf("AddressBookPath() = %q, want %q", got, want)
	}
}

func TestLoggerParsesConfiguredLevel(t *testing.T) {
	c := NewDefaultConfig()
	c.LogLevel = "debug"

	entry := c.Logger()
	if entry.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", entry.Logger.Level)
	}
	if got := entry.Data["prefix"]; got != "swirlnode" {
		t.Fatalf("expected prefix field \"swirlnode\", got %v", got)
	}
}

func TestLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	c := NewDefaultConfig()
	c.LogLevel = "not-a-real-level"

	entry := c.Logger()
	if entry.Logger.Level != logrus.InfoLevel {
		t.Fatalf("expected fallback to info level, got %v", entry.Logger.Level)
	}
}

func TestLoggerIsMemoizedAcrossCalls(t *testing.T) {
	c := NewDefaultConfig()
	first := c.Logger()
	second := c.Logger()
	if first.Logger != second.Logger {
		t.Fatal("Logger() should reuse the same underlying *logrus.Logger on repeated calls")
	}
}

func TestLoggerWithLogDirInstallsFileHooks(t *testing.T) {
	c := NewDefaultConfig()
	c.LogDir = t.TempDir()

	entry := c.Logger()
	if len(entry.Logger.Hooks[logrus.InfoLevel]) == 0 {
		t.Fatal("expected a file hook registered for info level when LogDir is set")
	}
}
