package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json"}, &buf)

	l.WithField("component", "cache").Debug("sweep finished")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sweep finished", line["msg"])
	assert.Equal(t, "cache", line["component"])
	assert.Equal(t, "debug", line["level"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l := New(Config{Level: "verbose", Format: "text"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		expect Config
	}{
		{
			name:   "默认值",
			env:    map[string]string{},
			expect: Config{Level: "info", Format: "text"},
		},
		{
			name:   "DEBUG=1",
			env:    map[string]string{"DEBUG": "1"},
			expect: Config{Level: "debug", Format: "text"},
		},
		{
			name:   "显式级别与格式",
			env:    map[string]string{"LOG_LEVEL": "warn", "LOG_FORMAT": "json", "DEBUG": "1"},
			expect: Config{Level: "warn", Format: "json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			t.Setenv("LOG_FORMAT", "")
			t.Setenv("DEBUG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expect, ConfigFromEnv())
		})
	}
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent("admin")
	assert.Equal(t, "admin", entry.Data["component"])
}
