package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiBuildMapsRoles(t *testing.T) {
	p := &geminiBackend{model: geminiDefault}
	req := UserRequest("be brief", "hi")
	req.Messages = append(req.Messages, Message{Role: RoleAssistant, Content: "hello"})
	req.MaxTokens = 64

	contents, cfg := p.build(req)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(64), cfg.MaxOutputTokens)
}

func TestGeminiModelSelection(t *testing.T) {
	p := &geminiBackend{model: "gemini-2.5-pro"}
	assert.Equal(t, "gemini-2.5-pro", p.allowedModelOrDefault(""))
	assert.Equal(t, "gemini-1.5-flash", p.allowedModelOrDefault("gemini-1.5-flash"))
	assert.Equal(t, geminiDefault, p.allowedModelOrDefault("gpt-4o"))
}
