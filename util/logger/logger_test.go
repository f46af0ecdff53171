package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogger("unit", zapcore.DebugLevel, buf)
	l.Infof("found %d partitions", 3)
	require.NoError(t, l.Sync())

	line := buf.String()
	assert.Regexp(t, `^\[unit\]\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[INFO\]\s+\[logger/logger_test\.go:\d+\] found 3 partitions\r?\n$`, line)

	buf.Reset()
	anonymous := NewLogger("", zapcore.DebugLevel, buf)
	anonymous.Warnf("no name")
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} [\d:.]+\] \[WARN\]\s+\[`, buf.String())
}

func TestNewLoggerLevelFilter(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogger("unit", zapcore.WarnLevel, buf)
	l.Infof("hidden")
	l.Warnf("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupDefaultLogger(t *testing.T) {
	saved := defaultLogger
	defer func() { defaultLogger = saved }()

	buf := new(bytes.Buffer)
	SetupDefaultLogger(NewLogger("dflt", zapcore.DebugLevel, buf))
	Debugf("probe %s", "ext")
	assert.Contains(t, buf.String(), "probe ext")
	assert.Contains(t, buf.String(), "logger_test.go")
	assert.True(t, Enabled(zapcore.DebugLevel))
}
