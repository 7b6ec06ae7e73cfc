// Package material resolves effect configurations into compiled shading
// programs. The Manager memoizes compilation behind a content-addressed
// cache so an unchanged effect never compiles twice, and falls back to a
// default effect when a node graph fails to compile rather than failing the
// particle system that asked for it.
package material

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/soypat/gvfx"
	"github.com/soypat/gvfx/glprog"
)

// Mode selects how a shading program is obtained.
type Mode uint8

const (
	// ModePreset looks the program up in the built-in preset table.
	ModePreset Mode = iota
	// ModeGraph compiles the configured material graph.
	ModeGraph
	// ModeSource passes hand-written fragment source through unchanged.
	ModeSource
	// ModeGenerator invokes a caller-supplied generator function.
	ModeGenerator
)

// BlendMode is the compositing operation requested for the effect. The
// render backend interprets it; the orchestrator only carries it through.
type BlendMode uint8

const (
	BlendAlpha BlendMode = iota
	BlendAdditive
	BlendMultiply
)

// Config describes one effect request: the creation mode plus its
// mode-specific parameters and common render-state overrides. Overrides
// live on the returned handle and never affect the cached program.
type Config struct {
	Mode Mode
	// Preset names a built-in effect for ModePreset.
	Preset string
	// Graph is compiled for ModeGraph.
	Graph *gvfx.MaterialGraph
	// Source is the hand-written fragment source for ModeSource.
	Source string
	// Generator builds the program for ModeGenerator. Generated programs
	// are cached only when Name is set, since a func has no stable content
	// to key on.
	Generator func() (*glprog.CompiledShader, error)
	// Name keys ModeGenerator results in the cache.
	Name string

	// Render-state overrides applied to the returned handle.
	Transparent bool
	Blend       BlendMode
	DepthWrite  bool
	// Texture names a texture binding attached to the handle.
	Texture string
	// Strict propagates graph compilation failures instead of substituting
	// the default effect.
	Strict bool
}

// Handle is one effect instance: it shares the immutable compiled program
// with every other handle resolved from the same content, and owns a
// private copy of the mutable per-instance uniform values.
type Handle struct {
	shader   *glprog.CompiledShader
	uniforms map[string][4]float32

	Transparent bool
	Blend       BlendMode
	DepthWrite  bool
	Texture     string
}

// Shader returns the shared compiled program.
func (h *Handle) Shader() *glprog.CompiledShader { return h.shader }

// Uniform returns the handle's current value for a manifest uniform.
func (h *Handle) Uniform(name string) ([4]float32, bool) {
	v, ok := h.uniforms[name]
	return v, ok
}

// SetUniform overrides a per-instance uniform value. Unknown names error so
// typos surface at the call site instead of silently binding nothing.
func (h *Handle) SetUniform(name string, v [4]float32) error {
	if _, ok := h.uniforms[name]; !ok {
		return fmt.Errorf("shader has no uniform %q", name)
	}
	h.uniforms[name] = v
	return nil
}

type cacheEntry struct {
	shader *glprog.CompiledShader
	// buildErr records the compile failure when shader is the substituted
	// fallback effect, so strict resolves of the same content surface the
	// original error instead of the cached fallback.
	buildErr error
}

// Manager is the effect orchestrator. Construct with NewManager; the zero
// value is not usable. All methods are safe for concurrent use; at most one
// compilation runs per cache key at a time.
type Manager struct {
	log *slog.Logger

	mu    sync.Mutex
	cache map[uint64]*cacheEntry

	// compileMu serializes Programmer use across distinct keys; the
	// Programmer reuses scratch state and is not goroutine safe.
	compileMu sync.Mutex
	prog      *glprog.Programmer

	flight   singleflight.Group
	presets  map[string]*gvfx.MaterialGraph
	fallback *glprog.CompiledShader
	compiles atomic.Int64
	disposed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithPreset registers or replaces a named preset effect graph.
func WithPreset(name string, g *gvfx.MaterialGraph) Option {
	return func(m *Manager) { m.presets[name] = g }
}

// NewManager creates an orchestrator with the built-in preset table and a
// silent logger. Managers are independent: two managers never share cache
// state, so parallel editor sessions or tests cannot interfere.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:   slog.New(nopHandler{}),
		cache: make(map[uint64]*cacheEntry),
		prog:  glprog.NewDefaultProgrammer(),
		presets: map[string]*gvfx.MaterialGraph{
			"default": presetDefault(),
			"flame":   presetFlame(),
			"smoke":   presetSmoke(),
			"spark":   presetSpark(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CompileCount returns the number of program builds performed, cached
// lookups excluded. Exposed for tests asserting cache idempotence.
func (m *Manager) CompileCount() int64 { return m.compiles.Load() }

// Resolve obtains a shading program for the config, from cache when the
// same content was resolved before. Graph compilation failures substitute
// the default effect and log the cause unless cfg.Strict is set.
func (m *Manager) Resolve(cfg Config) (*Handle, error) {
	m.mu.Lock()
	disposed := m.disposed
	m.mu.Unlock()
	if disposed {
		return nil, errors.New("material manager disposed")
	}
	key, cacheable := m.cacheKey(cfg)
	if !cacheable {
		e, err := m.build(cfg)
		if err != nil {
			return nil, err
		}
		return m.handleFor(e, cfg)
	}
	m.mu.Lock()
	e := m.cache[key]
	m.mu.Unlock()
	if e != nil {
		return m.handleFor(e, cfg)
	}
	// Coalesce concurrent requests for the same uncached key so a
	// graph compiles at most once however many callers race on it.
	v, err, _ := m.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		m.mu.Lock()
		e := m.cache[key]
		m.mu.Unlock()
		if e != nil {
			return e, nil
		}
		e, err := m.build(cfg)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cache[key] = e
		m.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return m.handleFor(v.(*cacheEntry), cfg)
}

// handleFor enforces the strict contract on entries that may have been
// cached by an earlier non-strict resolve: a fallback-substituted entry
// carries its original compile error, which strict configs surface instead
// of the fallback program.
func (m *Manager) handleFor(e *cacheEntry, cfg Config) (*Handle, error) {
	if cfg.Strict && e.buildErr != nil {
		return nil, e.buildErr
	}
	return m.newHandle(e.shader, cfg), nil
}

// cacheKey derives the content-addressed cache key: the creation mode mixed
// with a stable hash of the mode's parameters. Graphs key on their
// canonical content hash, not object identity, so a reconstructed but
// identical graph still hits.
func (m *Manager) cacheKey(cfg Config) (key uint64, cacheable bool) {
	seed := gvfx.HashBytes([]byte{byte(cfg.Mode)}, 0)
	switch cfg.Mode {
	case ModePreset:
		return gvfx.HashBytes([]byte(cfg.Preset), seed), true
	case ModeGraph:
		if cfg.Graph == nil {
			return 0, false
		}
		return gvfx.HashBytes(cfg.Graph.AppendCanonical(nil), seed), true
	case ModeSource:
		return gvfx.HashBytes([]byte(cfg.Source), seed), true
	case ModeGenerator:
		if cfg.Name == "" {
			return 0, false
		}
		return gvfx.HashBytes([]byte(cfg.Name), seed), true
	}
	return 0, false
}

// build produces the cache entry for a resolve miss. Recoverable graph and
// preset failures substitute the default effect and record the cause on the
// entry; source and generator failures are returned outright. Strict
// handling happens in handleFor so the entry stays valid for both strict
// and non-strict resolves of the same content.
func (m *Manager) build(cfg Config) (*cacheEntry, error) {
	switch cfg.Mode {
	case ModePreset:
		g, ok := m.presets[cfg.Preset]
		if !ok {
			return m.substitute(fmt.Errorf("unknown preset %q", cfg.Preset),
				"unknown preset, using default effect", slog.String("preset", cfg.Preset))
		}
		shader, err := m.compileGraph(g)
		if err != nil {
			return m.substitute(err, "preset compilation failed, using default effect",
				slog.String("preset", cfg.Preset), slog.String("error", err.Error()))
		}
		return &cacheEntry{shader: shader}, nil
	case ModeGraph:
		shader, err := m.compileGraph(cfg.Graph)
		if err != nil {
			return m.substitute(err, "graph compilation failed, using default effect",
				slog.String("error", err.Error()))
		}
		return &cacheEntry{shader: shader}, nil
	case ModeSource:
		m.compiles.Add(1)
		return &cacheEntry{shader: passthrough(cfg.Source)}, nil
	case ModeGenerator:
		if cfg.Generator == nil {
			return nil, errors.New("generator mode without generator function")
		}
		m.compiles.Add(1)
		shader, err := cfg.Generator()
		if err != nil {
			return nil, err
		}
		return &cacheEntry{shader: shader}, nil
	}
	return nil, fmt.Errorf("unknown material mode %d", cfg.Mode)
}

// substitute logs a recoverable build failure and returns a fallback entry
// carrying the cause.
func (m *Manager) substitute(cause error, msg string, attrs ...slog.Attr) (*cacheEntry, error) {
	m.log.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	shader, err := m.defaultEffect()
	if err != nil {
		return nil, err
	}
	return &cacheEntry{shader: shader, buildErr: cause}, nil
}

func (m *Manager) compileGraph(g *gvfx.MaterialGraph) (*glprog.CompiledShader, error) {
	if g == nil {
		return nil, errors.New("graph mode without graph")
	}
	m.compileMu.Lock()
	defer m.compileMu.Unlock()
	m.compiles.Add(1)
	return m.prog.Compile(g)
}

// defaultEffect lazily builds the fallback program used when a requested
// effect cannot be produced. The built-in default graph is trivial; should
// it ever fail to compile the fallback degrades to a raw white fragment.
func (m *Manager) defaultEffect() (*glprog.CompiledShader, error) {
	m.mu.Lock()
	if m.fallback != nil {
		defer m.mu.Unlock()
		return m.fallback, nil
	}
	m.mu.Unlock()
	shader, err := m.compileGraph(presetDefault())
	if err != nil {
		m.log.LogAttrs(context.Background(), slog.LevelError, "default effect failed to compile",
			slog.String("error", err.Error()))
		shader = passthrough(rawWhiteSrc)
	}
	m.mu.Lock()
	m.fallback = shader
	m.mu.Unlock()
	return shader, nil
}

// passthrough wraps hand-written fragment source in an artifact with an
// empty manifest; the author is responsible for its uniforms.
func passthrough(src string) *glprog.CompiledShader {
	return &glprog.CompiledShader{Raw: []byte(src)}
}

func (m *Manager) newHandle(shader *glprog.CompiledShader, cfg Config) *Handle {
	uniforms := make(map[string][4]float32, len(shader.Manifest))
	for _, u := range shader.Manifest {
		uniforms[u.Name] = u.Default
	}
	return &Handle{
		shader:      shader,
		uniforms:    uniforms,
		Transparent: cfg.Transparent,
		Blend:       cfg.Blend,
		DepthWrite:  cfg.DepthWrite,
		Texture:     cfg.Texture,
	}
}

// ClearCache drops all cached programs. Outstanding handles keep their
// shared artifacts alive; subsequent resolves recompile.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.cache)
	m.fallback = nil
}

// Dispose clears the cache and marks the manager unusable. Called at scene
// teardown.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.cache)
	m.fallback = nil
	m.disposed = true
}

// nopHandler discards all log records. Enabled returns false so disabled
// logging skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
