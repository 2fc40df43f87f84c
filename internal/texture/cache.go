package texture

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rendertoy/gpucore"
)

// Cache errors.
var (
	// ErrCacheClosed is returned when operating on a closed cache.
	ErrCacheClosed = errors.New("texture: cache closed")

	// ErrLoadFailed is returned by Load for a path whose earlier load failed.
	ErrLoadFailed = errors.New("texture: load failed")

	// ErrNotCheckedOut is returned by Release for a texture that is not a
	// checked-out transient of this cache.
	ErrNotCheckedOut = errors.New("texture: texture not checked out")

	// ErrInvalidKey is returned by CreateTransient for zero-sized keys.
	ErrInvalidKey = errors.New("texture: invalid key")
)

// Default budget limits.
const (
	// DefaultBudgetMB is the default limit on idle transient memory (256 MB).
	DefaultBudgetMB = 256

	// MinBudgetMB is the smallest accepted budget (16 MB).
	MinBudgetMB = 16
)

// transientUsage lets passes write created images and read them downstream.
const transientUsage = gpucore.TextureUsageStorageBinding |
	gpucore.TextureUsageTextureBinding |
	gpucore.TextureUsageCopySrc |
	gpucore.TextureUsageCopyDst

const loadedUsage = gpucore.TextureUsageTextureBinding |
	gpucore.TextureUsageCopySrc |
	gpucore.TextureUsageCopyDst

// CacheConfig holds configuration for creating a Cache.
type CacheConfig struct {
	// BudgetMB caps the memory held by idle transient textures.
	// Defaults to DefaultBudgetMB if below MinBudgetMB.
	BudgetMB int

	// Decode decodes image files. Defaults to the package Decode.
	Decode func(path string) (*Image, error)
}

// Stats contains texture usage statistics.
type Stats struct {
	// Loaded is the number of successfully loaded textures.
	Loaded int

	// LoadFailures is the number of paths remembered as failed.
	LoadFailures int

	// CheckedOut is the number of transient textures currently in use.
	CheckedOut int

	// Idle is the number of released transient textures awaiting reuse.
	Idle int

	// IdleBytes is the memory held by idle transients.
	IdleBytes uint64

	// BudgetBytes is the idle memory budget.
	BudgetBytes uint64

	// Allocations counts transient textures created on the device.
	Allocations uint64

	// Reuses counts transient requests served from idle textures.
	Reuses uint64

	// Evictions counts idle textures destroyed to stay within budget.
	Evictions uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Textures[%d loaded, %d in use, %d idle (%d/%d MB), %d allocs, %d reuses, %d evictions]",
		s.Loaded,
		s.CheckedOut,
		s.Idle,
		s.IdleBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.Allocations,
		s.Reuses,
		s.Evictions)
}

type samplerKey struct {
	u, v gpucore.AddressMode
}

// Cache owns loaded and transient textures on one device.
//
// Cache is safe for concurrent use, although the compositor drives it from
// a single goroutine.
type Cache struct {
	mu     sync.Mutex
	device gpucore.Device
	decode func(string) (*Image, error)

	// loaded maps a path to its texture, or to nil when loading failed.
	loaded map[string]*Texture

	// idle holds released transients per key. Each element's Value is a
	// *Texture and the same element sits in lru.
	idle map[Key][]*list.Element

	// lru orders idle transients, front = most recently released.
	lru *list.List

	checkedOut map[*Texture]struct{}
	samplers   map[samplerKey]gpucore.SamplerID

	budgetBytes uint64
	idleBytes   uint64

	allocations uint64
	reuses      uint64
	evictions   uint64

	closed bool
}

// NewCache creates a cache that allocates on device.
func NewCache(device gpucore.Device, config CacheConfig) *Cache {
	budgetMB := config.BudgetMB
	if budgetMB < MinBudgetMB {
		budgetMB = DefaultBudgetMB
	}
	decode := config.Decode
	if decode == nil {
		decode = Decode
	}

	//nolint:gosec // G115: budgetMB is bounded by MinBudgetMB minimum
	return &Cache{
		device:      device,
		decode:      decode,
		loaded:      make(map[string]*Texture),
		idle:        make(map[Key][]*list.Element),
		lru:         list.New(),
		checkedOut:  make(map[*Texture]struct{}),
		samplers:    make(map[samplerKey]gpucore.SamplerID),
		budgetBytes: uint64(budgetMB) * 1024 * 1024,
	}
}

// Load returns the texture decoded from path. The file is decoded and
// uploaded on the first call only; later calls return the same texture.
// A path that failed once keeps failing with ErrLoadFailed.
func (c *Cache) Load(path string) (*Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	if tex, ok := c.loaded[path]; ok {
		if tex == nil {
			return nil, fmt.Errorf("%w: %s", ErrLoadFailed, path)
		}
		return tex, nil
	}

	tex, err := c.loadLocked(path)
	if err != nil {
		c.loaded[path] = nil
		slogger().Warn("texture: load failed", "path", path, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, path, err)
	}
	c.loaded[path] = tex
	slogger().Info("texture: loaded", "path", path, "key", tex.Key.String())
	return tex, nil
}

// Preload decodes the paths not loaded yet in parallel and uploads them.
// Failures are remembered as in Load and do not stop the other paths; the
// returned error joins them.
func (c *Cache) Preload(ctx context.Context, paths []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	todo := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := c.loaded[p]; !ok && !slices.Contains(todo, p) {
			todo = append(todo, p)
		}
	}
	c.mu.Unlock()
	if len(todo) == 0 {
		return nil
	}

	images := make([]*Image, len(todo))
	errs := make([]error, len(todo))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range todo {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			images[i], errs[i] = c.decode(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	var failed []error
	for i, p := range todo {
		if _, ok := c.loaded[p]; ok {
			continue
		}
		var tex *Texture
		err := errs[i]
		if err == nil {
			tex, err = c.upload(p, images[i])
		}
		if err != nil {
			c.loaded[p] = nil
			slogger().Warn("texture: load failed", "path", p, "err", err)
			failed = append(failed, fmt.Errorf("%w: %s: %w", ErrLoadFailed, p, err))
			continue
		}
		c.loaded[p] = tex
	}
	slogger().Info("texture: preloaded", "paths", len(todo), "failed", len(failed))
	return errors.Join(failed...)
}

func (c *Cache) loadLocked(path string) (*Texture, error) {
	img, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	return c.upload(path, img)
}

// upload creates the device texture for a decoded image.
func (c *Cache) upload(path string, img *Image) (*Texture, error) {
	key := Key{Width: img.Width, Height: img.Height, Format: img.Format}
	id, err := c.device.CreateTexture(&gpucore.TextureDesc{
		Label:  path,
		Width:  key.Width,
		Height: key.Height,
		Format: key.Format,
		Usage:  loadedUsage,
	})
	if err != nil {
		return nil, err
	}
	if err := c.device.WriteTexture(id, img.Pixels, img.Stride); err != nil {
		c.device.DestroyTexture(id)
		return nil, err
	}
	return &Texture{ID: id, Key: key, Path: path}, nil
}

// CreateTransient checks out a transient texture with the given key,
// reusing an idle one when available. The texture stays checked out until
// Release; no other caller receives it in the meantime.
func (c *Cache) CreateTransient(key Key) (*Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	if key.Width == 0 || key.Height == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	if elems := c.idle[key]; len(elems) > 0 {
		elem := elems[len(elems)-1]
		c.setIdleLocked(key, elems[:len(elems)-1])
		tex, _ := c.lru.Remove(elem).(*Texture)
		c.idleBytes -= key.Bytes()
		c.checkedOut[tex] = struct{}{}
		c.reuses++
		return tex, nil
	}

	id, err := c.device.CreateTexture(&gpucore.TextureDesc{
		Label:  "transient " + key.String(),
		Width:  key.Width,
		Height: key.Height,
		Format: key.Format,
		Usage:  transientUsage,
	})
	if err != nil {
		return nil, err
	}
	tex := &Texture{ID: id, Key: key}
	c.checkedOut[tex] = struct{}{}
	c.allocations++
	slogger().Debug("texture: allocated transient", "key", key.String(), "id", id)
	return tex, nil
}

// Release returns a checked-out transient to the cache, making it
// available to the next CreateTransient with the same key. Idle textures
// beyond the budget are destroyed.
func (c *Cache) Release(tex *Texture) error {
	if tex == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	if _, ok := c.checkedOut[tex]; !ok {
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, tex.Key)
	}
	delete(c.checkedOut, tex)

	elem := c.lru.PushFront(tex)
	c.idle[tex.Key] = append(c.idle[tex.Key], elem)
	c.idleBytes += tex.Key.Bytes()

	c.evictLocked()
	return nil
}

// evictLocked destroys least recently released idle textures until the idle
// bytes fit the budget. Caller must hold mu.
func (c *Cache) evictLocked() {
	for c.idleBytes > c.budgetBytes && c.lru.Len() > 0 {
		elem := c.lru.Back()
		tex, _ := c.lru.Remove(elem).(*Texture)

		elems := c.idle[tex.Key]
		for i, e := range elems {
			if e == elem {
				elems = append(elems[:i], elems[i+1:]...)
				break
			}
		}
		c.setIdleLocked(tex.Key, elems)

		c.idleBytes -= tex.Key.Bytes()
		c.device.DestroyTexture(tex.ID)
		c.evictions++
		slogger().Debug("texture: evicted transient", "key", tex.Key.String(), "id", tex.ID)
	}
}

func (c *Cache) setIdleLocked(key Key, elems []*list.Element) {
	if len(elems) == 0 {
		delete(c.idle, key)
		return
	}
	c.idle[key] = elems
}

// Sampler returns the shared linear sampler for the given wrap modes.
func (c *Cache) Sampler(wrapS, wrapT bool) (gpucore.SamplerID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return gpucore.InvalidID, ErrCacheClosed
	}
	k := samplerKey{u: gpucore.WrapMode(wrapS), v: gpucore.WrapMode(wrapT)}
	if id, ok := c.samplers[k]; ok {
		return id, nil
	}
	id, err := c.device.CreateSampler(&gpucore.SamplerDesc{
		Label:        fmt.Sprintf("sampler %s/%s", k.u, k.v),
		AddressModeU: k.u,
		AddressModeV: k.v,
	})
	if err != nil {
		return gpucore.InvalidID, err
	}
	c.samplers[k] = id
	return id, nil
}

// SetBudget changes the idle memory budget, evicting if needed.
func (c *Cache) SetBudget(megabytes int) {
	if megabytes < MinBudgetMB {
		megabytes = MinBudgetMB
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	//nolint:gosec // G115: megabytes bounded by MinBudgetMB minimum
	c.budgetBytes = uint64(megabytes) * 1024 * 1024
	if !c.closed {
		c.evictLocked()
	}
}

// Stats returns current usage statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		CheckedOut:  len(c.checkedOut),
		Idle:        c.lru.Len(),
		IdleBytes:   c.idleBytes,
		BudgetBytes: c.budgetBytes,
		Allocations: c.allocations,
		Reuses:      c.reuses,
		Evictions:   c.evictions,
	}
	for _, tex := range c.loaded {
		if tex == nil {
			s.LoadFailures++
		} else {
			s.Loaded++
		}
	}
	return s
}

// Close destroys every texture and sampler the cache owns. Checked-out
// transients are destroyed too; their holders must not use them afterwards.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	for _, tex := range c.loaded {
		if tex != nil {
			c.device.DestroyTexture(tex.ID)
		}
	}
	for e := c.lru.Front(); e != nil; e = e.Next() {
		if tex, ok := e.Value.(*Texture); ok {
			c.device.DestroyTexture(tex.ID)
		}
	}
	for tex := range c.checkedOut {
		c.device.DestroyTexture(tex.ID)
	}
	for _, id := range c.samplers {
		c.device.DestroySampler(id)
	}

	c.loaded = nil
	c.idle = nil
	c.lru.Init()
	c.checkedOut = nil
	c.samplers = nil
	c.idleBytes = 0
	c.closed = true
}
