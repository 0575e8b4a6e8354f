// Package session manages connections to external tool providers over the
// Model Context Protocol.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/config"
	"github.com/lucasnoah/sonarfix/internal/fault"
)

var (
	// ErrClosed is returned once the manager has been torn down.
	ErrClosed = errors.New("session manager closed")
	// ErrUnknownProvider is returned for names absent from the provider config.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrCapabilityNotFound is returned when a provider does not expose a capability.
	ErrCapabilityNotFound = errors.New("capability not found")
)

// Options configures a Manager.
type Options struct {
	Providers      map[string]config.ProviderConfig
	ConnectTimeout time.Duration
	InvokeTimeout  time.Duration
	Transport      TransportFunc // nil uses DefaultTransport
	Logger         *zap.Logger
	ClientName     string
	ClientVersion  string
}

// handle is an open session plus its cached capability list.
type handle struct {
	provider string
	session  *mcp.ClientSession
	tools    map[string]*mcp.Tool
}

// Manager owns one session per provider. Every session operation runs on a
// single worker goroutine; callers block until their job completes.
type Manager struct {
	providers      map[string]config.ProviderConfig
	connectTimeout time.Duration
	invokeTimeout  time.Duration
	transport      TransportFunc
	client         *mcp.Client
	logger         *zap.Logger

	jobs chan func()
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	// owned by the worker goroutine
	sessions map[string]*handle
	shut     bool
}

// NewManager starts the worker goroutine. Callers must Close the manager.
func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = 120 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ClientName == "" {
		opts.ClientName = "sonarfix"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}

	providers := make(map[string]config.ProviderConfig, len(opts.Providers))
	for name, p := range opts.Providers {
		if !p.Disabled {
			providers[name] = p
		}
	}

	m := &Manager{
		providers:      providers,
		connectTimeout: opts.ConnectTimeout,
		invokeTimeout:  opts.InvokeTimeout,
		transport:      opts.Transport,
		client:         mcp.NewClient(&mcp.Implementation{Name: opts.ClientName, Version: opts.ClientVersion}, nil),
		logger:         opts.Logger.Named("session"),
		jobs:           make(chan func()),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		sessions:       make(map[string]*handle),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case job := <-m.jobs:
			job()
		case <-m.stop:
			return
		}
	}
}

// do runs fn on the worker and waits for its result.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, m, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

type jobResult[T any] struct {
	val T
	err error
}

// call runs fn on the worker and hands its result back over the reply
// channel, so a caller that gives up early never shares memory with fn.
func call[T any](ctx context.Context, m *Manager, fn func() (T, error)) (T, error) {
	var zero T
	ch := make(chan jobResult[T], 1)
	job := func() {
		v, err := fn()
		ch <- jobResult[T]{val: v, err: err}
	}

	select {
	case m.jobs <- job:
	case <-m.stop:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-ch:
		return r.val, r.err
	case <-m.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Providers returns the names of enabled providers, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Acquire opens the session for provider if it is not open yet. Repeated
// calls reuse the same session.
func (m *Manager) Acquire(ctx context.Context, provider string) error {
	return m.do(ctx, func() error {
		_, err := m.acquire(ctx, provider)
		return err
	})
}

func (m *Manager) acquire(ctx context.Context, provider string) (*handle, error) {
	if m.shut {
		return nil, ErrClosed
	}
	if h, ok := m.sessions[provider]; ok {
		return h, nil
	}
	cfg, ok := m.providers[provider]
	if !ok {
		return nil, fault.Transport("acquire", fmt.Errorf("%w: %q", ErrUnknownProvider, provider))
	}

	cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	t, err := m.transport(cctx, provider, cfg)
	if err != nil {
		return nil, fault.Transport("connect "+provider, err)
	}
	cs, err := m.client.Connect(cctx, t, nil)
	if err != nil {
		return nil, fault.Transport("connect "+provider, err)
	}

	h := &handle{provider: provider, session: cs}
	if err := m.refresh(cctx, h); err != nil {
		_ = cs.Close()
		return nil, err
	}
	m.sessions[provider] = h
	m.logger.Info("provider connected",
		zap.String("provider", provider),
		zap.String("type", cfg.Type),
		zap.Int("capabilities", len(h.tools)))
	return h, nil
}

// refresh re-lists the provider's capabilities, following pagination.
func (m *Manager) refresh(ctx context.Context, h *handle) error {
	tools := make(map[string]*mcp.Tool)
	params := &mcp.ListToolsParams{}
	for {
		res, err := h.session.ListTools(ctx, params)
		if err != nil {
			return fault.Transport("list capabilities of "+h.provider, err)
		}
		for _, t := range res.Tools {
			tools[t.Name] = t
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	h.tools = tools
	return nil
}

// Capabilities returns the sorted capability names of provider.
func (m *Manager) Capabilities(ctx context.Context, provider string) ([]string, error) {
	return call(ctx, m, func() ([]string, error) {
		h, err := m.acquire(ctx, provider)
		if err != nil {
			return nil, err
		}
		return toolNames(h), nil
	})
}

// Invoke calls capability on provider and returns the normalised result.
// A capability missing from the cache triggers one re-list before failing.
func (m *Manager) Invoke(ctx context.Context, provider, capability string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	return call(ctx, m, func() (map[string]any, error) {
		h, err := m.acquire(ctx, provider)
		if err != nil {
			return nil, err
		}
		if _, ok := h.tools[capability]; !ok {
			if err := m.refresh(ctx, h); err != nil {
				return nil, err
			}
			if _, ok := h.tools[capability]; !ok {
				return nil, fault.Transport("invoke "+provider,
					fmt.Errorf("%w: %q (available: %s)", ErrCapabilityNotFound, capability, strings.Join(toolNames(h), ", ")))
			}
		}

		cctx, cancel := context.WithTimeout(ctx, m.timeoutFor(provider))
		defer cancel()

		op := fmt.Sprintf("invoke %s.%s", provider, capability)
		start := time.Now()
		res, err := h.session.CallTool(cctx, &mcp.CallToolParams{Name: capability, Arguments: params})
		if err != nil {
			return nil, fault.Transport(op, err)
		}
		out, err := Normalize(res)
		if err != nil {
			// The provider answered and rejected the call.
			var te *ToolError
			if errors.As(err, &te) {
				return nil, fault.Integration(op, err)
			}
			return nil, fault.Transport(op, err)
		}
		m.logger.Debug("capability invoked",
			zap.String("provider", provider),
			zap.String("capability", capability),
			zap.Duration("elapsed", time.Since(start)))
		return out, nil
	})
}

// ResolveCapability picks a capability name on provider: the first preferred
// name that exists, else the first name containing every keyword. The list
// is re-fetched once when nothing matches.
func (m *Manager) ResolveCapability(ctx context.Context, provider string, preferred, keywords []string) (string, error) {
	return call(ctx, m, func() (string, error) {
		h, err := m.acquire(ctx, provider)
		if err != nil {
			return "", err
		}
		if name := match(h, preferred, keywords); name != "" {
			return name, nil
		}
		if err := m.refresh(ctx, h); err != nil {
			return "", err
		}
		if name := match(h, preferred, keywords); name != "" {
			return name, nil
		}
		available := strings.Join(toolNames(h), ", ")
		if available == "" {
			available = "none"
		}
		return "", fault.Transport("resolve capability on "+provider,
			fmt.Errorf("%w: tried %v (available: %s)", ErrCapabilityNotFound, preferred, available))
	})
}

func match(h *handle, preferred, keywords []string) string {
	for _, candidate := range preferred {
		if _, ok := h.tools[candidate]; ok {
			return candidate
		}
	}
	if len(keywords) == 0 {
		return ""
	}
	for _, name := range toolNames(h) {
		lower := strings.ToLower(name)
		all := true
		for _, kw := range keywords {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				all = false
				break
			}
		}
		if all {
			return name
		}
	}
	return ""
}

func toolNames(h *handle) []string {
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) timeoutFor(provider string) time.Duration {
	if p, ok := m.providers[provider]; ok && p.Timeout > 0 {
		return p.Timeout
	}
	return m.invokeTimeout
}

// Close tears down every open session and stops the worker. It is safe to
// call more than once and from any goroutine.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		reply := make(chan error, 1)
		select {
		case m.jobs <- func() { reply <- m.closeAll() }:
			m.closeErr = <-reply
		case <-m.done:
		}
		close(m.stop)
		<-m.done
	})
	return m.closeErr
}

func (m *Manager) closeAll() error {
	m.shut = true
	var errs []error
	for _, name := range sortedKeys(m.sessions) {
		if err := m.sessions[name].session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		m.logger.Debug("provider closed", zap.String("provider", name))
	}
	m.sessions = map[string]*handle{}
	return errors.Join(errs...)
}

func sortedKeys(sessions map[string]*handle) []string {
	names := make([]string, 0, len(sessions))
	for name := range sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
