package app_test

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/app"
	"github.com/eduardocaminha/reporter-sub000/internal/config"
	"github.com/eduardocaminha/reporter-sub000/internal/history/memory"
	"github.com/eduardocaminha/reporter-sub000/internal/report"
	"github.com/eduardocaminha/reporter-sub000/internal/tools"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
	llmmock "github.com/eduardocaminha/reporter-sub000/pkg/provider/llm/mock"
)

const dictation = "tc abdome sem contraste, esteatose hepática leve"

// writeTemplates lays out a small template tree under dir.
func writeTemplates(t *testing.T, dir string, masks map[string]string) {
	t.Helper()
	files := map[string]string{
		"achados/figado/esteatose.md": "---\nregiao: figado\n---\nEsteatose hepática.\n",
		"achados/pulmao/nodulo.md":    "---\nregiao: pulmao\n---\nNódulo pulmonar.\n",
	}
	for name, body := range masks {
		files["mascaras/"+name] = body
	}
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func defaultMasks() map[string]string {
	return map[string]string{
		"tc-abdome-sem-contraste.md": "---\ntipo: tc-abdome\ncontraste: sem\n---\nTOMOGRAFIA SEM CONTRASTE\n",
		"tc-cranio.md":               "---\ntipo: tc-cranio\n---\nTC DE CRÂNIO\n",
	}
}

// testConfig returns a validated config reading templates from dir.
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "mock", Model: "claude-test"}},
		Templates: config.TemplatesConfig{Dir: dir},
		Pricing:   config.PricingConfig{InputPerMTok: "3", OutputPerMTok: "15"},
	}
	cfg.ApplyDefaults()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func testProvider() *llmmock.Provider {
	usage := llm.NewUsage(1200, 300)
	return &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"mascara":"tc-abdome-sem-contraste.md","achados":["figado/esteatose.md"]}`,
			Usage:   llm.NewUsage(100, 20),
		},
		StreamChunks: []llm.Chunk{
			{Text: "TOMOGRAFIA DE ABDOME\n\nEsteatose hepática leve."},
			{Text: "\n---METADATA---\n{\"sugestoes\":[],\"erro\":null}"},
			{FinishReason: llm.StopReasonEnd, Usage: &usage, Model: "claude-test"},
		},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func generate(t *testing.T, h http.Handler, text string) (*httptest.ResponseRecorder, []report.Event) {
	t.Helper()
	body, _ := json.Marshal(report.Request{Text: text})
	req := httptest.NewRequest(http.MethodPost, "/api/gerar-laudo", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var events []report.Event
	if w.Code != http.StatusOK {
		return w, nil
	}
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		var ev report.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return w, events
}

func TestNew_RetryIsLoggedOnce(t *testing.T) {
	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	cfg := testConfig(t, dir)
	cfg.Retry = config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	p := testProvider()
	p.CompleteScript = []llmmock.CompleteResult{{Err: &llm.APIError{Provider: "mock", StatusCode: llm.StatusOverloaded}}}
	a := newApp(t, cfg, &app.Providers{LLM: p}, app.WithHistory(memory.New()))

	_, events := generate(t, a.Handler(), dictation)
	if len(events) == 0 || events[len(events)-1].Type != report.EventDone {
		t.Fatalf("events = %+v, want a done event after the retry", events)
	}
	if n := strings.Count(buf.String(), "status=529"); n != 1 {
		t.Errorf("retry logged %d times, want once:\n%s", n, buf.String())
	}
}

func TestNew_GeneratesWithSelectedTemplates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	p := testProvider()
	store := memory.New()

	a := newApp(t, testConfig(t, dir), &app.Providers{LLM: p}, app.WithHistory(store))
	_, events := generate(t, a.Handler(), dictation)
	if len(events) == 0 {
		t.Fatal("no events")
	}

	last := events[len(events)-1]
	if last.Type != report.EventDone {
		t.Fatalf("last event = %+v, want done", last)
	}
	meta := events[len(events)-2]
	if meta.Type != report.EventGenerationMeta || meta.Meta.Mask != "tc-abdome-sem-contraste.md" {
		t.Errorf("meta = %+v", meta.Meta)
	}
	if meta.Meta.EstimatedCostUSD != "0.008700" {
		t.Errorf("cost = %q, want selection plus generation", meta.Meta.EstimatedCostUSD)
	}

	if got := p.CompleteCount(); got != 1 {
		t.Errorf("selector calls = %d, want 1", got)
	}
	system := p.StreamCalls[0].Req.SystemPrompt
	if !strings.Contains(system, "TOMOGRAFIA SEM CONTRASTE") || strings.Contains(system, "TC DE CRÂNIO") {
		t.Error("prompt should carry only the selected mask")
	}

	recs, _ := store.ListRecent(context.Background(), 10)
	if len(recs) != 1 {
		t.Errorf("history has %d records, want 1", len(recs))
	}
}

func TestNew_WithoutProvider(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	a := newApp(t, testConfig(t, dir), nil)
	h := a.Handler()

	if w, _ := generate(t, h, dictation); w.Code != http.StatusServiceUnavailable {
		t.Errorf("generate status = %d, want 503", w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"provider":"fail`) {
		t.Errorf("readyz = %d %s", w.Code, w.Body.String())
	}
}

func TestNew_BrokenTemplatesStillStarts(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t, filepath.Join(t.TempDir(), "missing")), &app.Providers{LLM: testProvider()})

	_, events := generate(t, a.Handler(), dictation)
	if len(events) != 1 || events[0].Type != report.EventError {
		t.Fatalf("events = %+v, want a single error", events)
	}
}

func TestNew_MCPServerFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	cfg := testConfig(t, dir)
	cfg.MCP.Servers = []tools.ServerConfig{{
		Name:      "missing",
		Transport: tools.TransportStdio,
		Command:   filepath.Join(dir, "no-such-binary"),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := app.New(ctx, cfg, &app.Providers{LLM: testProvider()}); err == nil {
		t.Fatal("expected error for an MCP server that cannot start")
	}
}

func TestReconfigure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	otherDir := t.TempDir()
	writeTemplates(t, otherDir, map[string]string{
		"tc-abdome-sem-contraste.md": "---\ntipo: tc-abdome\ncontraste: sem\n---\nNOVA MÁSCARA\n",
	})

	var level slog.LevelVar
	p := testProvider()
	oldCfg := testConfig(t, dir)
	a := newApp(t, oldCfg, &app.Providers{LLM: p}, app.WithLogLevel(&level))

	newCfg := testConfig(t, otherDir)
	newCfg.Server.LogLevel = config.LogDebug
	off := false
	newCfg.Templates.Optimize = &off
	a.Reconfigure(oldCfg, newCfg)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}

	_, events := generate(t, a.Handler(), dictation)
	if len(events) == 0 || events[len(events)-1].Type != report.EventDone {
		t.Fatalf("events = %+v", events)
	}
	if got := p.CompleteCount(); got != 0 {
		t.Errorf("selector calls = %d, want 0 with optimize off", got)
	}
	if system := p.StreamCalls[0].Req.SystemPrompt; !strings.Contains(system, "NOVA MÁSCARA") {
		t.Error("prompt should use the templates from the new dir")
	}

	// A broken dir keeps the current templates.
	broken := testConfig(t, filepath.Join(t.TempDir(), "missing"))
	broken.Templates.Optimize = &off
	a.Reconfigure(newCfg, broken)
	cat, err := a.Reload(context.Background())
	if err != nil || len(cat.Masks) != 1 {
		t.Errorf("after broken dir: masks = %v, err = %v", cat, err)
	}
}

func TestServe(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplates(t, dir, defaultMasks())
	a := newApp(t, testConfig(t, dir), &app.Providers{LLM: testProvider()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
