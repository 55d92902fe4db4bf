package logx

import (
	"bytes"
	"testing"

	"github.com/memgraph-agent/server/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestInit_ProductionSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init() })

	Debug().Msg("hidden")
	Info().Str("user_id", "u1").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"user_id":"u1"`)
	assert.Contains(t, out, `"message":"visible"`)
}

func TestInit_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Development, Output: &buf, Level: "warn"})
	t.Cleanup(func() { Init() })

	Info().Msg("quiet")
	Warn().Msg("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
