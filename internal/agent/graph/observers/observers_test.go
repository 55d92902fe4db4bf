package observers

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestNewAllCallbacks(t *testing.T) {
	assert.NotNil(t, NewAllCallbacks())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("ก", maxLogChars+10)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, maxLogChars, len([]rune(strings.TrimSuffix(got, "..."))))
}

func TestLastUserContent(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage(" first "),
		nil,
		schema.AssistantMessage("reply", nil),
		schema.UserMessage(" second "),
		schema.AssistantMessage("again", nil),
	}
	assert.Equal(t, "second", lastUserContent(msgs))
	assert.Equal(t, "", lastUserContent([]*schema.Message{schema.SystemMessage("x")}))
}
