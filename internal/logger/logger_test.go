package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("INFO"))
	assert.True(t, ValidLevel("debug"))
	assert.False(t, ValidLevel("LOUD"))
}

func TestInitLoggerSetsLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)
	InitLogger("warn", "triage-test")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestInitLoggerPanicsOnUnknownLevel(t *testing.T) {
	assert.Panics(t, func() { InitLogger("LOUD", "") })
}
