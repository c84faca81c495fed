// ABOUTME: System prompt construction with tool usage instructions
// ABOUTME: Tools are prompted via <function=name{json}> syntax, not native tool_calls

package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt builds the system message for a conversation.
//
// When tool names are provided the prompt instructs the model to request
// tool calls inline, as <function=tool_name{"param":"value"}>. Hosted models
// without native tool-call support follow this reliably, and the gateway
// parses the calls back out of the assistant text (see ParseToolCalls).
func SystemPrompt(toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant for the Vespucci.ai platform. ")

	if len(toolNames) == 0 {
		return b.String()
	}

	quoted := make([]string, 0, len(toolNames))
	for _, name := range toolNames {
		quoted = append(quoted, "`"+name+"`")
	}
	available := strings.Join(quoted, ", ")

	fmt.Fprintf(&b, "You have access to the following MCP tools: %s. ", available)
	b.WriteString("These tools can help you gather information and perform various tasks. ")
	b.WriteString(`To use tools, format your response like this: <function=tool_name{"param":"value"}>. `)
	b.WriteString(`For example, to search for information, use: <function=search{"query":"your search query","searchType":"web"}>. `)
	b.WriteString("Always include explanatory text along with any function calls. ")
	fmt.Fprintf(&b, "IMPORTANT: ONLY use the specific tool names listed above: %s. ", available)
	b.WriteString("Do not invent or try to use tools that aren't in this list.")

	return b.String()
}
