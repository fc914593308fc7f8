package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 1, 10, 20, 30, 456000000, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "no reply",
		Data:    logrus.Fields{"port": "COM3", "attempt": 2},
	}

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:20:30.456+00:00 | WARNING | attempt=2 port=COM3 | no reply\n", string(out))
}

func TestCustomFormatter_NoFields(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "started",
	}

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:20:30.000+00:00 | INFO  | started\n", string(out))
}

func TestConfigure_AppendsToFile(t *testing.T) {
	dir := t.TempDir()

	file := Configure(Options{Level: "debug", Dir: dir, File: "events.log"})
	require.NotNil(t, file)
	WithPort("COM1").Debug("TX #G")
	Info("cycle done")
	require.NoError(t, file.Close())

	data, err := os.ReadFile(filepath.Join(dir, "events.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "port=COM1 | TX #G")
	assert.Contains(t, lines[1], "cycle done")
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestConfigure_BadLevelFallsBackToInfo(t *testing.T) {
	file := Configure(Options{Level: "loud", Dir: t.TempDir()})
	require.NotNil(t, file)
	defer file.Close()
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}
