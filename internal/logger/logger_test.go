package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("cart-service", "debug", &buf)

	log.Error("cart_save_failed", "Failed to save cart", "req-1", errors.New("disk full"), map[string]interface{}{
		"key": "cart",
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "Failed to save cart", record["msg"])
	assert.Equal(t, "cart-service", record["service"])
	assert.Equal(t, "cart_save_failed", record["action"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "cart", record["details"].(map[string]interface{})["key"])
	assert.Equal(t, "disk full", record["error"].(map[string]interface{})["msg"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("cart-service", "warn", &buf)

	log.Debug("noise", "dropped", "", nil)
	log.Info("noise", "dropped", "", nil)
	assert.Zero(t, buf.Len())

	log.Warn("cart_load_skipped", "kept", "", nil)
	assert.NotZero(t, buf.Len())
}

func TestGenerateRequestID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
