// ABOUTME: Parsing of inline tool calls out of assistant responses
// ABOUTME: Recognizes the <function=name{json}> syntax requested by the system prompt

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// toolCallPattern matches <function=tool_name{"param":"value"}> markers.
// The argument capture excludes the outer braces.
var toolCallPattern = regexp.MustCompile(`<function=(\w+)\{(.*?)\}>`)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any

	// Err is set when the argument payload was not valid JSON. The caller
	// reports it back to the model rather than failing the conversation.
	Err error
}

// ContainsToolCall reports whether text includes at least one inline tool call.
func ContainsToolCall(text string) bool {
	return strings.Contains(text, "<function=")
}

// ParseToolCalls extracts all inline tool calls from assistant text, in order.
// Returns nil when the text contains none.
func ParseToolCalls(text string) []ToolCall {
	matches := toolCallPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	calls := make([]ToolCall, 0, len(matches))
	for _, m := range matches {
		call := ToolCall{Name: m[1]}

		argsStr := strings.TrimSpace(m[2])
		if !strings.HasPrefix(argsStr, "{") {
			argsStr = "{" + argsStr + "}"
		}

		if err := json.Unmarshal([]byte(argsStr), &call.Args); err != nil {
			call.Err = fmt.Errorf("parsing arguments for tool %q: %w", call.Name, err)
		}

		calls = append(calls, call)
	}

	return calls
}
