package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFallback(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "debug", Format: "json", Fallback: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.WithField("uid", "DEADBEEF").Debug("card detected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "card detected", entry["msg"])
	assert.Equal(t, "DEADBEEF", entry["uid"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Options{Level: "warn", Fallback: &buf})
	require.NoError(t, err)

	log.Info("quiet")
	assert.Empty(t, buf.String())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "level=warning")
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestNewOpensFileAndCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cardprobe.log")
	log, closer, err := New(Options{File: path})
	require.NoError(t, err)

	log.WithField("block", 4).Info("block read")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "block read")
	assert.Contains(t, string(data), "block=4")
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
