// Package config handles configuration loading for vespucci-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VESPUCCI_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vespucci/gateway.yaml
//  3. ~/.config/vespucci/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	llm:
//	  api_key: "${GROQ_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	llm:
//	  request_timeout: "2m"
//	mcp:
//	  connect_timeout: "30s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
// Database:
//
//	database:
//	  path: "/var/lib/vespucci/gateway.db"
//
// Language model:
//
//	llm:
//	  api_key: "${GROQ_API_KEY}"
//	  model: "llama-3.3-70b-versatile"
//	  base_url: "https://api.groq.com/openai/v1"
//	  max_tokens: 1000
//	  temperature: 0.7
//	  max_tool_rounds: 5
//
// MCP tool server (spawned as a subprocess):
//
//	mcp:
//	  command: "npx"
//	  args: ["-y", "web3-research-mcp@latest"]
//	  env: ["NODE_OPTIONS=--max-old-space-size=512"]
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
