package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusFailed   ServerStatus = "failed"
)

// toolSeparator joins server and tool names so tools from different servers
// cannot collide in the registry.
const toolSeparator = "__"

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
	Tools  int
}

type managedServer struct {
	client *Client
	status ServerStatus
	err    error
}

// Manager owns the MCP server connections for a process.
type Manager struct {
	config  *Config
	version string
	log     *zap.Logger

	mu      sync.RWMutex
	servers map[string]*managedServer
}

func NewManager(cfg *Config, version string, log *zap.Logger) *Manager {
	if cfg == nil {
		cfg = &Config{Servers: map[string]ServerConfig{}}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{config: cfg, version: version, log: log, servers: make(map[string]*managedServer)}
}

func (m *Manager) Config() *Config { return m.config }

// StartAll starts every enabled server concurrently and waits for them.
// Servers that fail are recorded as failed; the joined errors are returned
// but the others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []string
	for _, name := range m.config.ServerNames() {
		if m.config.Servers[name].Disabled {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.Start(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, err.Error())
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Start starts one configured server and blocks until it is ready or failed.
func (m *Manager) Start(ctx context.Context, name string) error {
	serverCfg, ok := m.config.Servers[name]
	if !ok {
		return fmt.Errorf("unknown MCP server: %s", name)
	}
	client := NewClient(name, serverCfg, m.version)
	transport, err := client.transport()
	if err != nil {
		m.setState(name, &managedServer{client: client, status: StatusFailed, err: err})
		return err
	}
	return m.startClient(ctx, client, transport)
}

func (m *Manager) startClient(ctx context.Context, client *Client, transport mcp.Transport) error {
	name := client.Name()
	m.mu.Lock()
	if s, ok := m.servers[name]; ok && (s.status == StatusReady || s.status == StatusStarting) {
		m.mu.Unlock()
		return nil
	}
	m.servers[name] = &managedServer{client: client, status: StatusStarting}
	m.mu.Unlock()

	m.log.Debug("starting MCP server", zap.String("server", name))
	err := client.connect(ctx, transport)
	state := &managedServer{client: client, status: StatusReady}
	if err != nil {
		state.status, state.err = StatusFailed, err
		m.log.Warn("MCP server failed", zap.String("server", name), zap.Error(err))
	} else {
		m.log.Debug("MCP server ready", zap.String("server", name), zap.Int("tools", len(client.Tools())))
	}
	m.setState(name, state)
	return err
}

func (m *Manager) setState(name string, s *managedServer) {
	m.mu.Lock()
	m.servers[name] = s
	m.mu.Unlock()
}

// Stop stops one server.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	s, ok := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.client.Stop()
}

// StopAll stops every server.
func (m *Manager) StopAll() {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*managedServer)
	m.mu.Unlock()
	for name, s := range servers {
		if err := s.client.Stop(); err != nil {
			m.log.Debug("stop MCP server", zap.String("server", name), zap.Error(err))
		}
	}
}

// States returns the state of every started server, sorted by name.
func (m *Manager) States() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]ServerState, 0, len(m.servers))
	for name, s := range m.servers {
		states = append(states, ServerState{Name: name, Status: s.status, Error: s.err, Tools: len(s.client.Tools())})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// AllTools returns the tools of every ready server with names prefixed by
// the server name.
func (m *Manager) AllTools() []ToolSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []ToolSpec
	for _, name := range names {
		s := m.servers[name]
		if s.status != StatusReady {
			continue
		}
		for _, tool := range s.client.Tools() {
			all = append(all, ToolSpec{
				Name:        name + toolSeparator + tool.Name,
				Description: fmt.Sprintf("[%s] %s", name, tool.Description),
				Schema:      tool.Schema,
			})
		}
	}
	return all
}

// CallTool routes a prefixed tool name to its server.
func (m *Manager) CallTool(ctx context.Context, fullName string, args json.RawMessage) (string, error) {
	server, tool, ok := strings.Cut(fullName, toolSeparator)
	if !ok || server == "" {
		return "", fmt.Errorf("invalid MCP tool name: %s (expected server%stool)", fullName, toolSeparator)
	}
	m.mu.RLock()
	s, found := m.servers[server]
	ready := found && s.status == StatusReady
	m.mu.RUnlock()
	if !ready || !s.client.IsRunning() {
		return "", fmt.Errorf("MCP server %s is not running", server)
	}
	return s.client.CallTool(ctx, tool, args)
}
