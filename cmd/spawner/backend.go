package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/config"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/registry"
	"github.com/ssd-technologies/spawner/internal/runtime"
	"github.com/ssd-technologies/spawner/internal/strategy"
)

// backend is what the agent commands act on.
type backend interface {
	Spawn(ctx context.Context, t agent.Type, owner string, params map[string]any) (string, error)
	List(ctx context.Context) ([]agent.Descriptor, error)
	Lifecycle(ctx context.Context, op, id string) error
	Stats(ctx context.Context) (any, error)
	Query(ctx context.Context, question string) (knowledge.QueryResult, error)
}

var errNoDaemon = errors.New("no running daemon; start one with `spawner run`")

// localBackend edits the registry file directly. Nothing runs in this
// process, so agents spawned here start with the next `spawner run`.
type localBackend struct {
	reg     *registry.Registry
	catalog *agent.Catalog
	rt      *runtime.Runtime
}

func newLocalBackend(cfg config.Config, logger *slog.Logger) *localBackend {
	reg := registry.Open(cfg.RegistryPath(), registry.WithLogger(logger))
	cat := strategy.Catalog()
	return &localBackend{
		reg:     reg,
		catalog: cat,
		rt:      runtime.New(runtime.Options{Registry: reg, Catalog: cat, Logger: logger}),
	}
}

func (b *localBackend) Spawn(_ context.Context, t agent.Type, owner string, params map[string]any) (string, error) {
	if err := b.catalog.Validate(t, params); err != nil {
		return "", err
	}
	d, err := b.reg.Spawn(t, owner, params)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

func (b *localBackend) List(context.Context) ([]agent.Descriptor, error) {
	return b.reg.ListAll(), nil
}

// Lifecycle applies op offline. Stop and pause of an active agent fail as
// not running; resume only flips a paused agent back to active.
func (b *localBackend) Lifecycle(_ context.Context, op, id string) error {
	switch op {
	case "stop":
		return b.rt.StopAgent(id)
	case "pause":
		return b.rt.PauseAgent(id)
	case "delete":
		return b.rt.DeleteAgent(id)
	case "resume":
		d, ok := b.reg.Get(id)
		if !ok {
			return fmt.Errorf("resume %s: %w", id, agent.ErrNotFound)
		}
		if d.Status != agent.StatusPaused {
			return fmt.Errorf("resume %s: %w", id, agent.ErrNotPaused)
		}
		b.reg.UpdateStatus(id, agent.StatusActive)
		return nil
	}
	return fmt.Errorf("unknown operation %q", op)
}

func (b *localBackend) Stats(context.Context) (any, error) {
	return b.rt.Stats(), nil
}

func (b *localBackend) Query(context.Context, string) (knowledge.QueryResult, error) {
	return knowledge.QueryResult{}, errNoDaemon
}

// remoteBackend forwards to a running daemon's HTTP API.
type remoteBackend struct {
	base   string
	client *http.Client
}

// dialDaemon reads the daemon address file and checks the daemon answers.
// A stale file is ignored.
func dialDaemon(ctx context.Context, addrFile string) (*remoteBackend, bool) {
	raw, err := os.ReadFile(addrFile)
	if err != nil {
		return nil, false
	}
	base := strings.TrimRight(strings.TrimSpace(string(raw)), "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, false
	}
	rb := &remoteBackend{base: base, client: &http.Client{Timeout: 30 * time.Second}}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rb.do(ctx, http.MethodGet, "/api/health", nil, nil); err != nil {
		return nil, false
	}
	return rb, true
}

// apiError is a non-2xx answer from the daemon.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("daemon: %s (HTTP %d)", e.Message, e.Status)
}

func (rb *remoteBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rb.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := rb.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func (rb *remoteBackend) Spawn(ctx context.Context, t agent.Type, owner string, params map[string]any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	in := map[string]any{"type": t, "owner": owner, "parameters": params}
	if err := rb.do(ctx, http.MethodPost, "/api/agents", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (rb *remoteBackend) List(ctx context.Context) ([]agent.Descriptor, error) {
	var out struct {
		Data []agent.Descriptor `json:"data"`
	}
	if err := rb.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (rb *remoteBackend) Lifecycle(ctx context.Context, op, id string) error {
	path := "/api/agents/" + url.PathEscape(id)
	if op == "delete" {
		return rb.do(ctx, http.MethodDelete, path, nil, nil)
	}
	return rb.do(ctx, http.MethodPost, path+"/"+op, nil, nil)
}

func (rb *remoteBackend) Stats(ctx context.Context) (any, error) {
	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := rb.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (rb *remoteBackend) Query(ctx context.Context, question string) (knowledge.QueryResult, error) {
	var out knowledge.QueryResult
	err := rb.do(ctx, http.MethodPost, "/api/rag/query", map[string]string{"question": question}, &out)
	return out, err
}
