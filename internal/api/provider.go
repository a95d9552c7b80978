package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/logger"
)

// Engine is the engine capability request handlers consume.
type Engine interface {
	Fix(ctx context.Context, line string, opts generate.Options) (*generate.Result, error)
	ModelID() string
}

// EngineProvider hands handlers a loaded engine for a model id.
type EngineProvider interface {
	WithEngine(ctx context.Context, modelID string, fn func(Engine) error) error
}

// ResolveFunc loads an engine for a model id.
type ResolveFunc func(ctx context.Context, modelID string) (*generate.Engine, error)

// defaultEngineTTL is how long an idle engine stays loaded. Every hit
// restarts the clock, so a busy model never unloads.
const defaultEngineTTL = 30 * time.Minute

// ProviderConfig wires a CachedEngineProvider.
type ProviderConfig struct {
	// DefaultModel serves requests that do not name a model.
	DefaultModel string
	Resolve      ResolveFunc
	// TTL is the idle eviction window; zero means defaultEngineTTL.
	TTL    time.Duration
	Logger logger.Logger
}

// CachedEngineProvider loads engines on first use and keeps them warm in
// an idle-TTL cache. Eviction closes the engine, releasing the model.
// Concurrent misses on one id share a single load.
type CachedEngineProvider struct {
	cfg   ProviderConfig
	cache *ttlcache.Cache[string, *generate.Engine]
	log   logger.Logger

	mu    sync.Mutex
	loads map[string]*loadCall
}

type loadCall struct {
	done chan struct{}
	eng  *generate.Engine
	err  error
}

func NewCachedEngineProvider(cfg ProviderConfig) (*CachedEngineProvider, error) {
	if cfg.Resolve == nil {
		return nil, fmt.Errorf("api: no resolve function")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultEngineTTL
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	cache := ttlcache.New[string, *generate.Engine](
		ttlcache.WithTTL[string, *generate.Engine](cfg.TTL),
	)
	cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *generate.Engine]) {
		log.Info("engine unloaded", "model", item.Key())
		item.Value().Close()
	})
	p := &CachedEngineProvider{
		cfg:   cfg,
		cache: cache,
		log:   log,
		loads: make(map[string]*loadCall),
	}
	go cache.Start()
	return p, nil
}

// Close stops the eviction loop and unloads every cached engine.
func (p *CachedEngineProvider) Close() {
	p.cache.DeleteAll()
	p.cache.Stop()
}

func (p *CachedEngineProvider) WithEngine(ctx context.Context, modelID string, fn func(Engine) error) error {
	id := strings.TrimSpace(modelID)
	if id == "" {
		id = p.cfg.DefaultModel
	}
	if id == "" {
		return fmt.Errorf("no model requested and no default configured")
	}
	eng, err := p.engine(ctx, id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(eng)
}

func (p *CachedEngineProvider) engine(ctx context.Context, id string) (*generate.Engine, error) {
	if item := p.cache.Get(id); item != nil {
		return item.Value(), nil
	}

	p.mu.Lock()
	if item := p.cache.Get(id); item != nil {
		p.mu.Unlock()
		return item.Value(), nil
	}
	if call, ok := p.loads[id]; ok {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.eng, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	p.loads[id] = call
	p.mu.Unlock()

	p.log.Info("loading engine", "model", id)
	eng, err := p.cfg.Resolve(ctx, id)

	p.mu.Lock()
	call.eng, call.err = eng, err
	close(call.done)
	delete(p.loads, id)
	if err == nil {
		p.cache.Set(id, eng, ttlcache.DefaultTTL)
	}
	p.mu.Unlock()
	return eng, err
}
