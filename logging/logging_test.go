package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/config"
	"github.com/simon020286/go-calibration/models"
)

func newTestLogger(t *testing.T) (*logrus.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "debug"}, false, &buf)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return logger, &buf
}

func TestLineFormatter_Format(t *testing.T) {
	f := &LineFormatter{}
	entry := &logrus.Entry{
		Message: "channel: 0 diff dB: 3.2",
		Level:   logrus.InfoLevel,
		Data:    logrus.Fields{"b": 2, "a": 1},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(out) != "channel: 0 diff dB: 3.2 a=1 b=2\n" {
		t.Errorf("Unexpected line %q", out)
	}
}

func TestLineFormatter_TimestampAndLevel(t *testing.T) {
	f := &LineFormatter{ShowTimestamp: true, TimestampFormat: "15:04:05"}
	entry := &logrus.Entry{
		Message: "relay stuck",
		Level:   logrus.WarnLevel,
		Time:    time.Date(2024, 1, 1, 10, 11, 12, 0, time.UTC),
		Data:    logrus.Fields{},
	}

	out, _ := f.Format(entry)
	if string(out) != "[10:11:12] Warning: relay stuck\n" {
		t.Errorf("Unexpected line %q", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "chatty"}, false, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.log")
	var buf bytes.Buffer

	logger, closer, err := New(config.LogConfig{File: path, MaxSizeMB: 1}, false, &buf)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	logger.Info("Connected!")
	if err := closer.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(data) != "Connected!\n" {
		t.Errorf("Expected file line, got %q", data)
	}
	if buf.String() != "Connected!\n" {
		t.Errorf("Expected console line, got %q", buf.String())
	}
}

func TestConsole_StepEvents(t *testing.T) {
	logger, buf := newTestLogger(t)
	c := NewConsole(logger, false, true)
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	c.OnEvent(models.Event{Type: models.EventSessionStarted, Timestamp: now})
	c.OnEvent(models.Event{Type: models.EventStepStarted, Timestamp: now, Data: map[string]interface{}{"ordinal": 10, "attempt": 1}})
	c.OnEvent(models.Event{Type: models.EventStepFinished, Timestamp: now, Data: map[string]interface{}{"ordinal": 10, "passed": false, "reason": errors.New("diff too large")}})
	c.OnEvent(models.Event{Type: models.EventStepRetrying, Timestamp: now, Data: map[string]interface{}{"ordinal": 10}})
	c.OnEvent(models.Event{Type: models.EventStepStarted, Timestamp: now, Data: map[string]interface{}{"ordinal": 10, "attempt": 2}})
	c.OnEvent(models.Event{Type: models.EventStepExhausted, Timestamp: now, Data: map[string]interface{}{"ordinal": 10, "attempts": 3}})
	c.OnEvent(models.Event{Type: models.EventSessionCompleted, Timestamp: now})

	out := buf.String()
	stamp := now.Format(TimeLayout)
	for _, want := range []string{
		"Script started on: " + stamp,
		"STEP 10\n",
		"Step 10 started: " + stamp,
		"Step 10 finished: " + stamp + " passed=false reason=diff too large",
		"Restarting step 10",
		"Error: Failed 3 times at step 10",
		"Done\n",
		"Script ended on: " + stamp,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	// one header per attempt
	if strings.Count(out, "STEP 10") != 2 {
		t.Errorf("Expected two headers for step 10, got:\n%s", out)
	}
}

func TestConsole_HidesStartEnd(t *testing.T) {
	logger, buf := newTestLogger(t)
	c := NewConsole(logger, false, false)

	c.OnEvent(models.Event{Type: models.EventSessionStarted, Timestamp: time.Now()})
	c.OnEvent(models.Event{Type: models.EventSessionCompleted, Timestamp: time.Now()})

	if buf.String() != "Done\n" {
		t.Errorf("Expected only 'Done', got %q", buf.String())
	}
}

func TestConsole_Prompt(t *testing.T) {
	logger, buf := newTestLogger(t)
	c := NewConsole(logger, false, false)

	c.Prompt("Adjust CH0 positive trimmer, then press pin1")

	if buf.String() != "Adjust CH0 positive trimmer, then press pin1\n" {
		t.Errorf("Unexpected prompt %q", buf.String())
	}
}
