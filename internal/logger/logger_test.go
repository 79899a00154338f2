package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to read all JSON objects from buffer
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	s := bufio.NewScanner(buf)
	var out []map[string]any
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoErrorf(t, json.Unmarshal([]byte(line), &m), "invalid JSON line: %s", line)
		out = append(out, m)
	}
	require.NoError(t, s.Err())
	return out
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("info"))

	Debug("debug message should be filtered")
	Info("info message", "k", 1)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "info message", records[0]["msg"])

	buf.Reset()
	require.NoError(t, SetLevel("debug"))
	Debug("visible debug", "a", 2)
	records = decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "DEBUG", records[0]["level"])
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("debug"))

	l := WithClient(WithChannel(WithSession(Logger(), "/rec/Jam-1"), 7), "Alice", "10.0.0.1:22124")
	l.Info("hello", "extra", 42)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]
	for _, k := range []string{"session_dir", "channel_id", "client_name", "client_addr"} {
		assert.Contains(t, rec, k)
	}
	assert.Equal(t, "/rec/Jam-1", rec["session_dir"])
	assert.EqualValues(t, 7, rec["channel_id"])
	assert.Equal(t, "Alice", rec["client_name"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
	}
	for in, expect := range cases {
		require.NoError(t, SetLevel(in))
		assert.Contains(t, strings.ToUpper(Level()), expect)
	}
	assert.Error(t, SetLevel("bogus"))
}

func TestSetFormat(t *testing.T) {
	assert.NoError(t, SetFormat("text"))
	assert.NoError(t, SetFormat("json"))
	assert.Error(t, SetFormat("xml"))
}
