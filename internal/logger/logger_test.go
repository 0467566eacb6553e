package logger

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatterSortsFields(t *testing.T) {
	f := &PrettyFormatter{NoColor: true}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 1, 13, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "send failed",
		Data:    logrus.Fields{"peer": "10.0.0.1", "attempt": 1},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	want := "13:04:05 WARN  send failed attempt=1 peer=10.0.0.1\n"
	if string(out) != want {
		t.Errorf("expected %q, got %q", want, string(out))
	}
}

func TestPrettyFormatterColorizesLevel(t *testing.T) {
	f := NewPrettyFormatter()
	entry := &logrus.Entry{Level: logrus.ErrorLevel, Message: "boom", Data: logrus.Fields{}}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(string(out), colorRed+"ERROR") {
		t.Errorf("expected red ERROR level, got %q", string(out))
	}
}

func TestNewLoggerWithLevel(t *testing.T) {
	log, err := NewLoggerWithLevel("debug")
	if err != nil {
		t.Fatalf("NewLoggerWithLevel failed: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}

	if _, err := NewLoggerWithLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
