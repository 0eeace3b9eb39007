package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", "json", &buf)

	log.WithField("collection", "cop-dem-glo-30").Debug("searching")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "searching", entry["msg"])
	assert.Equal(t, "cop-dem-glo-30", entry["collection"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewWithWriter_UnknownLevel(t *testing.T) {
	log := NewWithWriter("loud", "text", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
