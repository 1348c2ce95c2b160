// Package registry tracks installed tool servers and owns one Supervisor
// per server.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/patrickmn/go-cache"

	"toolhost/internal/config"
	"toolhost/internal/mcpserver"
	"toolhost/internal/protocol"
	"toolhost/internal/reporting"
	"toolhost/pkg/logging"
)

// ErrServerBusy is returned when a definition is replaced or removed while its process is live and cannot be stopped.
var ErrServerBusy = errors.New("server is busy")

// DefaultStopTimeout bounds Close when callers have no deadline of their own.
const DefaultStopTimeout = 10 * time.Second

// ServerStatus is the externally visible state of one server.
type ServerStatus struct {
	ID        string   `json:"id" yaml:"id"`
	Command   string   `json:"command" yaml:"command"`
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`
	AutoStart bool     `json:"autoStart" yaml:"autoStart"`
	Status    string   `json:"status" yaml:"status"`
	PID       int      `json:"pid,omitempty" yaml:"pid,omitempty"`
	Pending   int      `json:"pending,omitempty" yaml:"pending,omitempty"`
	LastError string   `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// Registry is the single owner of all Supervisors. Construct one per
// process and pass it to whoever needs it.
type Registry struct {
	store *config.ServerStore
	opts  mcpserver.Options
	sink  *reporting.Sink
	logs  *reporting.LogBuffer
	tools *cache.Cache

	mu          sync.Mutex
	supervisors map[string]*mcpserver.Supervisor
	observers   map[string]reporting.Observer

	unsubscribe []func()
}

// New creates a registry. sink may be nil, in which case a private one is used.
func New(cfg config.Config, store *config.ServerStore, sink *reporting.Sink) *Registry {
	if sink == nil {
		sink = reporting.NewSink()
	}
	ttl := cfg.Tools.CacheTTL
	if ttl <= 0 {
		ttl = config.DefaultToolsCacheTTL
	}
	r := &Registry{
		store:       store,
		opts:        mcpserver.OptionsFromConfig(cfg),
		sink:        sink,
		logs:        reporting.NewLogBuffer(cfg.Logs.BufferSize),
		tools:       cache.New(ttl, 2*ttl),
		supervisors: make(map[string]*mcpserver.Supervisor),
		observers:   make(map[string]reporting.Observer),
	}
	r.unsubscribe = append(r.unsubscribe,
		sink.Subscribe(reporting.FilterByType(reporting.EventTypeLog), r.logs),
		sink.Subscribe(nil, reporting.ObserverFunc(r.invalidateTools)),
	)
	return r
}

// WithSupervisorOptions replaces the options used for supervisors created from now on.
func (r *Registry) WithSupervisorOptions(opts mcpserver.Options) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
	return r
}

// Sink returns the shared event sink.
func (r *Registry) Sink() *reporting.Sink { return r.sink }

func (r *Registry) invalidateTools(ev reporting.Event) {
	switch {
	case ev.Type == reporting.EventTypeStatus:
		r.tools.Delete(ev.ServerID)
	case ev.Type == reporting.EventTypeMessage && ev.Message != nil &&
		ev.Message.Method == protocol.NotificationToolsListChanged:
		logging.Debug("Registry", "Tool list of %s changed, dropping cache", ev.ServerID)
		r.tools.Delete(ev.ServerID)
	}
}

// supervisor returns the supervisor for id, creating it from the store on first use.
func (r *Registry) supervisor(id string) (*mcpserver.Supervisor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sup, ok := r.supervisors[id]; ok {
		return sup, nil
	}
	cfg, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	sup := mcpserver.New(cfg, r.opts, r.sink)
	if obs, ok := r.observers[id]; ok {
		sup.SetObserver(obs)
	}
	r.supervisors[id] = sup
	return sup, nil
}

// Install validates and persists a server definition. An existing server
// with the same id is stopped and replaced.
func (r *Registry) Install(ctx context.Context, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.supervisors[cfg.ID]
	r.mu.Unlock()
	if old != nil {
		if err := old.Stop(ctx); err != nil {
			return fmt.Errorf("%w: stopping %s before replacing it: %v", ErrServerBusy, cfg.ID, err)
		}
	}

	if err := r.store.Put(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.supervisors, cfg.ID)
	r.mu.Unlock()
	r.tools.Delete(cfg.ID)

	logging.Info("Registry", "Installed %s: %s %v", cfg.ID, cfg.Command, cfg.Args)
	return nil
}

// Uninstall stops the server and removes its definition.
func (r *Registry) Uninstall(ctx context.Context, id string) error {
	r.mu.Lock()
	sup := r.supervisors[id]
	r.mu.Unlock()
	if sup != nil {
		if err := sup.Stop(ctx); err != nil {
			return fmt.Errorf("%w: stopping %s: %v", ErrServerBusy, id, err)
		}
	}

	if err := r.store.Delete(id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.supervisors, id)
	delete(r.observers, id)
	r.mu.Unlock()
	r.tools.Delete(id)
	r.logs.Clear(id)

	logging.Info("Registry", "Uninstalled %s", id)
	return nil
}

// Start starts the server and returns the handshake result.
func (r *Registry) Start(ctx context.Context, id string) (*mcp.InitializeResult, error) {
	sup, err := r.supervisor(id)
	if err != nil {
		return nil, err
	}
	return sup.Start(ctx)
}

// Stop stops the server. Stopping a server that is not running is not an error.
func (r *Registry) Stop(ctx context.Context, id string) error {
	sup, err := r.supervisor(id)
	if err != nil {
		return err
	}
	return sup.Stop(ctx)
}

// Restart stops and starts the server.
func (r *Registry) Restart(ctx context.Context, id string) (*mcp.InitializeResult, error) {
	sup, err := r.supervisor(id)
	if err != nil {
		return nil, err
	}
	if err := sup.Stop(ctx); err != nil {
		return nil, err
	}
	return sup.Start(ctx)
}

// Request sends an arbitrary method to a running server.
func (r *Registry) Request(ctx context.Context, id, method string, params any) (json.RawMessage, error) {
	sup, err := r.supervisor(id)
	if err != nil {
		return nil, err
	}
	return sup.SendRequest(ctx, method, params)
}

// ListTools returns the server's tools, following pagination. Results are
// cached until the server's status changes or it announces a new tool list.
func (r *Registry) ListTools(ctx context.Context, id string) ([]mcp.Tool, error) {
	if cached, found := r.tools.Get(id); found {
		logging.Debug("Registry", "Returning cached tools for %s", id)
		return cached.([]mcp.Tool), nil
	}

	sup, err := r.supervisor(id)
	if err != nil {
		return nil, err
	}

	var (
		tools  []mcp.Tool
		cursor mcp.Cursor
	)
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := sup.SendRequest(ctx, protocol.MethodToolsList, params)
		if err != nil {
			return nil, fmt.Errorf("list tools of %s: %w", id, err)
		}
		var page mcp.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode tools of %s: %w", id, err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	r.tools.Set(id, tools, cache.DefaultExpiration)
	logging.Info("Registry", "Fetched and cached %d tools for %s", len(tools), id)
	return tools, nil
}

// CallTool invokes a tool on a running server.
func (r *Registry) CallTool(ctx context.Context, id, name string, args map[string]any) (*mcp.CallToolResult, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	raw, err := r.Request(ctx, id, protocol.MethodToolsCall, params)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", name, id, err)
	}
	result, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, fmt.Errorf("decode result of %s on %s: %w", name, id, err)
	}
	return result, nil
}

// Status returns the state of one installed server.
func (r *Registry) Status(id string) (ServerStatus, error) {
	sup, err := r.supervisor(id)
	if err != nil {
		return ServerStatus{}, err
	}
	return statusOf(sup), nil
}

func statusOf(sup *mcpserver.Supervisor) ServerStatus {
	cfg := sup.Config()
	st := ServerStatus{
		ID:        cfg.ID,
		Command:   cfg.Command,
		Args:      cfg.Args,
		AutoStart: cfg.AutoStart,
		Status:    string(sup.Status()),
		PID:       sup.PID(),
		Pending:   sup.Pending(),
	}
	if err := sup.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// List returns every installed server ordered by id.
func (r *Registry) List() ([]ServerStatus, error) {
	servers, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]ServerStatus, 0, len(servers))
	for _, cfg := range servers {
		sup, err := r.supervisor(cfg.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, statusOf(sup))
	}
	return out, nil
}

// Logs returns up to n retained diagnostic lines of a server.
func (r *Registry) Logs(id string, n int) []reporting.LogLine {
	return r.logs.Lines(id, n)
}

// SetObserver routes the primary event stream of a server to obs.
func (r *Registry) SetObserver(id string, obs reporting.Observer) error {
	sup, err := r.supervisor(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if obs == nil {
		delete(r.observers, id)
	} else {
		r.observers[id] = obs
	}
	r.mu.Unlock()
	sup.SetObserver(obs)
	return nil
}

// StartAutoStart starts every server flagged autoStart concurrently and
// returns the failures keyed by id.
func (r *Registry) StartAutoStart(ctx context.Context) (map[string]error, error) {
	servers, err := r.store.Load()
	if err != nil {
		return nil, err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	for _, cfg := range servers {
		if !cfg.AutoStart {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := r.Start(ctx, id); err != nil {
				logging.Error("Registry", err, "Auto-start of %s failed", id)
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
		}(cfg.ID)
	}
	wg.Wait()
	return failures, nil
}

// Close stops every live server and detaches from the sink.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	sups := make([]*mcpserver.Supervisor, 0, len(r.supervisors))
	for _, sup := range r.supervisors {
		sups = append(sups, sup)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(sups))
	for i, sup := range sups {
		wg.Add(1)
		go func(i int, sup *mcpserver.Supervisor) {
			defer wg.Done()
			errs[i] = sup.Stop(ctx)
		}(i, sup)
	}
	wg.Wait()

	for _, unsub := range r.unsubscribe {
		unsub()
	}
	return errors.Join(errs...)
}
