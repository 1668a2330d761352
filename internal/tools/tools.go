// Package tools holds the lookup tools the model may call while preparing a
// report: in-process builtins and tools imported from external MCP servers.
//
// A [Host] owns the registry. Tool failures never surface as Go errors to the
// caller of [Host.Execute]; they become a descriptive text result so the model
// can carry on without the lookup.
package tools

import (
	"context"
	"time"

	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Handler executes a builtin tool. args is the raw JSON object produced by the
// model.
type Handler func(ctx context.Context, args string) (string, error)

// Tool is an in-process tool registered with [Host.RegisterBuiltin].
type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler

	// Timeout bounds a single call. Zero means the host default.
	Timeout time.Duration
}

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and talks over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP uses the MCP streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one external MCP server.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport Transport         `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}
