package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pinscraper/pkg/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "empty level defaults to info", cfg: &config.LoggingConfig{}},
		{name: "invalid log level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{
			name: "file output",
			cfg: &config.LoggingConfig{
				Level: "info",
				File:  filepath.Join(t.TempDir(), "logs", "pinscraper.log"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"INFO":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
	}
	for input, want := range tests {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Errorf("parseLogLevel(%q) unexpected error: %v", input, err)
		}
		if got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := parseLogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestStructuredFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.WithField("component", "crawler").
		WithFields(map[string]interface{}{"pass": 3, "stalled": true}).
		InfoWithFields("scan finished", map[string]interface{}{
			"elapsed": 2 * time.Second,
			"ids":     []string{"1", "2"},
		})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]

	assert.Equal(t, "scan finished", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "pinscraper", line["app"])
	assert.Equal(t, "crawler", line["component"])
	assert.Equal(t, float64(3), line["pass"])
	assert.Equal(t, true, line["stalled"])
	assert.Equal(t, []interface{}{"1", "2"}, line["ids"])
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	if l.WithError(nil) != l {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestWithErrorAddsField(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	NewWithWriter(&buf).WithError(errors.New("boom")).Warn("retrying")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestChildLoggersDoNotLeakFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	parent := NewWithWriter(&buf).WithField("run_id", "abc")
	_ = parent.WithField("item_id", "42")
	parent.Info("parent")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "abc", lines[0]["run_id"])
	_, leaked := lines[0]["item_id"]
	assert.False(t, leaked)
}

func TestOrFallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, Or(nil))

	nop := NewNopLogger()
	assert.Equal(t, nop, Or(nop))
}

func TestTestLoggerCapturesFieldsAndErrors(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("item_id", "7").WithError(errors.New("disk full")).Warn("write failed")
	tl.Info("done")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "7", msgs[0].Fields["item_id"])
	assert.EqualError(t, msgs[0].Error, "disk full")
	assert.True(t, tl.HasMessage("done"))
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.False(t, tl.HasError())

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogDownload(tl, "1", "https://i.example.com/a.jpg", false, errors.New("404"))
	LogCrawlProgress(tl, "board", 5, 10, 2)
	LogMetrics(tl, "download", map[string]interface{}{"failed": 1})

	msgs := tl.GetMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Download failed", msgs[0].Message)
	assert.Equal(t, "50.0%", msgs[1].Fields["percentage"])
	assert.Equal(t, 1, msgs[2].Fields["failed"])
	assert.Equal(t, "download", msgs[2].Fields["operation"])
}
