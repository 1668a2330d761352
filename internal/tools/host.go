package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// DefaultTimeout bounds a tool call when neither the tool nor the host
// configure one.
const DefaultTimeout = 15 * time.Second

type entry struct {
	def        llm.ToolDefinition
	serverName string
	handler    Handler
	timeout    time.Duration
}

// Host is a concurrency-safe tool registry backed by builtins and MCP server
// sessions. Create instances with [NewHost].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]entry
	order   []string
	servers map[string]*mcpsdk.ClientSession

	client  *mcpsdk.Client
	metrics *observe.Metrics
	timeout time.Duration
}

// HostOption configures a [Host].
type HostOption func(*Host)

// WithMetrics records every call into m.
func WithMetrics(m *observe.Metrics) HostOption {
	return func(h *Host) { h.metrics = m }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.timeout = d }
}

// NewHost returns an empty Host.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		tools:   make(map[string]entry),
		servers: make(map[string]*mcpsdk.ClientSession),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "reporter-tools", Version: "1.0.0"},
			nil,
		),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterBuiltin adds an in-process tool. Registering a name twice is an
// error.
func (h *Host) RegisterBuiltin(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tools: builtin tool must have a name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: builtin tool %q has no handler", t.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.tools[t.Definition.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", t.Definition.Name)
	}
	h.add(entry{def: t.Definition, handler: t.Handler, timeout: t.Timeout})
	return nil
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tools. Names already taken by an earlier registration are skipped.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}
	return h.connect(ctx, cfg.Name, transport)
}

// connect opens a session over transport and imports the server's tools.
func (h *Host) connect(ctx context.Context, name string, transport mcpsdk.Transport) error {
	h.mu.RLock()
	_, dup := h.servers[name]
	h.mu.RUnlock()
	if dup {
		return fmt.Errorf("tools: server %q already registered", name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools of server %q: %w", name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.servers[name] = session
	for _, t := range discovered {
		if _, taken := h.tools[t.Name]; taken {
			observe.Logger(ctx).Warn("tools: duplicate tool name ignored", "tool", t.Name, "server", name)
			continue
		}
		h.add(entry{
			def: llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: name,
		})
	}
	return nil
}

// add must be called with h.mu held for writing.
func (h *Host) add(e entry) {
	h.tools[e.def.Name] = e
	h.order = append(h.order, e.def.Name)
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// Definitions returns every registered tool in registration order.
func (h *Host) Definitions() []llm.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(h.order))
	for _, name := range h.order {
		defs = append(defs, h.tools[name].def)
	}
	return defs
}

// Len reports how many tools are registered.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Execute runs call and returns its text result. It never fails: unknown
// tools, bad arguments, timeouts and server errors all come back as a
// descriptive string.
func (h *Host) Execute(ctx context.Context, call llm.ToolCall) string {
	h.mu.RLock()
	e, ok := h.tools[call.Name]
	h.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Ferramenta %q não está disponível.", call.Name)
	}

	timeout := e.timeout
	if timeout <= 0 {
		timeout = h.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		out string
		err error
	)
	if e.handler != nil {
		out, err = e.handler(ctx, call.Arguments)
	} else {
		out, err = h.callServer(ctx, e, call.Arguments)
	}

	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Warn("tools: call failed", "tool", call.Name, "err", err)
		out = fmt.Sprintf("A ferramenta %q falhou: %v", call.Name, err)
	} else {
		observe.Logger(ctx).Debug("tools: call finished", "tool", call.Name, "duration", time.Since(start))
	}
	h.metrics.RecordToolCall(ctx, call.Name, status, time.Since(start))
	return out
}

// callServer routes a call to the MCP session that owns the tool.
func (h *Host) callServer(ctx context.Context, e entry, args string) (string, error) {
	h.mu.RLock()
	session, ok := h.servers[e.serverName]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("server %q is closed", e.serverName)
	}

	argsMap := map[string]any{}
	if s := strings.TrimSpace(args); s != "" && s != "{}" {
		if err := json.Unmarshal([]byte(s), &argsMap); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      e.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("%s", sb.String())
	}
	return sb.String(), nil
}

// Close shuts down every server session. Builtins stay registered.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.servers {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: close server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	return firstErr
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (string, []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
