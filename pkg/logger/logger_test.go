package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn", "release"))
	assert.Equal(t, zapcore.DebugLevel, parseLevel("", "debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("", "release"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("loud", "release"))
}
