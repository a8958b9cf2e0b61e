package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// TestVerboseModeShowsDebugMessages tests that --verbose shows debug messages
func TestVerboseModeShowsDebugMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	log.Debug("debug message before verbose")
	if strings.Contains(buf.String(), "debug message before verbose") {
		t.Error("Debug message should not appear at Info level")
	}

	log.SetVerbose(true)

	log.Debug("debug message after verbose")
	if !strings.Contains(buf.String(), "debug message after verbose") {
		t.Error("Debug message should appear when verbose is enabled")
	}
}

// TestQuietModeSuppressesInfoMessages tests that --quiet suppresses info messages
func TestQuietModeSuppressesInfoMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	log.Info("info message before quiet")
	if !strings.Contains(buf.String(), "info message before quiet") {
		t.Error("Info message should appear at Info level")
	}

	buf.Reset()
	log.SetQuiet(true)

	log.Info("info message after quiet")
	if strings.Contains(buf.String(), "info message after quiet") {
		t.Error("Info message should not appear when quiet is enabled")
	}

	log.Error("error message in quiet mode")
	if !strings.Contains(buf.String(), "error message in quiet mode") {
		t.Error("Error message should appear even in quiet mode")
	}
}

// TestLogLevelHierarchy tests that log levels work correctly
func TestLogLevelHierarchy(t *testing.T) {
	tests := []struct {
		name        string
		level       Level
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
		expectError bool
	}{
		{"Debug level shows all", LevelDebug, true, true, true, true},
		{"Info level hides debug", LevelInfo, false, true, true, true},
		{"Warn level hides debug and info", LevelWarn, false, false, true, true},
		{"Error level shows only errors", LevelError, false, false, false, true},
		{"Quiet level shows nothing", LevelQuiet, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			log := New(buf, tt.level)

			log.Debug("debug")
			log.Info("info")
			log.Warn("warn")
			log.Error("error")

			output := buf.String()

			if tt.expectDebug != strings.Contains(output, "debug") {
				t.Errorf("Debug: expected %v, got %v", tt.expectDebug, strings.Contains(output, "debug"))
			}
			if tt.expectInfo != strings.Contains(output, "info") {
				t.Errorf("Info: expected %v, got %v", tt.expectInfo, strings.Contains(output, "info"))
			}
			if tt.expectWarn != strings.Contains(output, "warn") {
				t.Errorf("Warn: expected %v, got %v", tt.expectWarn, strings.Contains(output, "warn"))
			}
			if tt.expectError != strings.Contains(output, "error") {
				t.Errorf("Error: expected %v, got %v", tt.expectError, strings.Contains(output, "error"))
			}
		})
	}
}

func TestTerminalOutputIsBareMessage(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	log.WithField("package", "app-editors/neovim").Info("checked %d sources", 3)

	if got := buf.String(); got != "checked 3 sources\n" {
		t.Errorf("terminal output = %q, want bare message", got)
	}
}

func TestFileLoggingCarriesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", LogFileName)
	log := New(new(bytes.Buffer), LevelInfo)

	if err := log.EnableFileLoggingAt(path); err != nil {
		t.Fatalf("EnableFileLoggingAt: %v", err)
	}
	log.WithField("package", "app-editors/neovim").Warn("low confidence")
	log.Debug("hidden")
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"level=warning", `msg="low confidence"`, "package=app-editors/neovim"} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "hidden") {
		t.Error("debug line written to file at Info level")
	}

	// Writes after Close must not reach the file
	log.Error("after close")
	data, _ = os.ReadFile(path)
	if strings.Contains(string(data), "after close") {
		t.Error("log written after Close")
	}
}

// TestSetVerboseEnablesDebugLevel tests SetVerbose sets level to Debug
func TestSetVerboseEnablesDebugLevel(t *testing.T) {
	log := New(new(bytes.Buffer), LevelInfo)
	log.SetVerbose(true)
	if log.Level() != LevelDebug {
		t.Errorf("SetVerbose(true) should set level to Debug, got %v", log.Level())
	}
	log.SetVerbose(false)
	if log.Level() != LevelDebug {
		t.Errorf("SetVerbose(false) should leave level alone, got %v", log.Level())
	}
}

// TestSetQuietEnablesErrorLevel tests SetQuiet sets level to Error
func TestSetQuietEnablesErrorLevel(t *testing.T) {
	log := New(new(bytes.Buffer), LevelInfo)
	log.SetQuiet(true)
	if log.Level() != LevelError {
		t.Errorf("SetQuiet(true) should set level to Error, got %v", log.Level())
	}
}

// TestPackageLevelFunctions tests the package-level convenience functions
func TestPackageLevelFunctions(t *testing.T) {
	once = sync.Once{}
	defaultLogger = nil

	buf := new(bytes.Buffer)
	once.Do(func() {
		defaultLogger = New(buf, LevelDebug)
	})

	Debug("debug test")
	Info("info test")
	Warn("warn test")
	Error("error test")
	WithField("k", "v").Info("field test")

	output := buf.String()
	for _, want := range []string{"debug test", "info test", "warn test", "error test", "field test"} {
		if !strings.Contains(output, want) {
			t.Errorf("package-level output missing %q", want)
		}
	}
}
