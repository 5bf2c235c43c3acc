package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "lowercase", level: "info", want: zapcore.InfoLevel},
		{name: "uppercase from env", level: "WARN", want: zapcore.WarnLevel},
		{name: "debug", level: "debug", want: zapcore.DebugLevel},
		{name: "empty defaults to info", level: "", want: zapcore.InfoLevel},
		{name: "unknown level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, L())
			assert.True(t, L().Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, L().Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Initialize("info"))
	assert.False(t, L().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLevel("chatty"))
	require.NoError(t, SetLevel("info"))
}

func TestHelpersBeforeInitialize(t *testing.T) {
	saved := L()
	current.Store(zap.NewNop())
	defer current.Store(saved)

	assert.NotNil(t, WithContext(zap.String("request_id", "abc")))
	assert.NotNil(t, Named("client"))
	Info("ignored")
	Warn("ignored")
	Sync()
}
