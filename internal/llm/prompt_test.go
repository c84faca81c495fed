// ABOUTME: Tests for system prompt construction
// ABOUTME: Verifies tool instructions appear only when tools are available

package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt_NoTools(t *testing.T) {
	prompt := SystemPrompt(nil)

	assert.Contains(t, prompt, "helpful assistant")
	assert.NotContains(t, prompt, "<function=")
}

func TestSystemPrompt_WithTools(t *testing.T) {
	prompt := SystemPrompt([]string{"search", "fetch_page"})

	assert.Contains(t, prompt, "`search`, `fetch_page`")
	assert.Contains(t, prompt, `<function=tool_name{"param":"value"}>`)
	assert.Contains(t, prompt, "ONLY use the specific tool names listed above")

	// Tool list appears both in the availability sentence and the warning
	assert.Equal(t, 2, strings.Count(prompt, "`search`, `fetch_page`"))
}
