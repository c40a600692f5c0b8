package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// InvalidBin marks blocks larger than the biggest bin. They are never cached.
const InvalidBin = -1

// Config describes the geometric bin ladder and cache budget.
type Config struct {
	BinGrowth      int   // Geometric growth factor between bins.
	MinBin         int   // Smallest bin exponent.
	MaxBin         int   // Largest bin exponent.
	MaxCachedBytes int64 // Cache budget per bin and device.
	SkipCleanup    bool  // Close keeps cached blocks.
	Debug          bool  // Log every allocate/free.
}

// DefaultConfig returns the allocator defaults used for boosting workloads.
func DefaultConfig() Config {
	return Config{
		BinGrowth:      2,
		MinBin:         9,
		MaxBin:         31,
		MaxCachedBytes: 1 << 30,
	}
}

// Validate checks the bin ladder.
func (c Config) Validate() error {
	if c.BinGrowth < 2 {
		return fmt.Errorf("%w: bin growth %d < 2", ErrInvalidBins, c.BinGrowth)
	}
	if c.MinBin < 0 || c.MaxBin < c.MinBin {
		return fmt.Errorf("%w: bins [%d, %d]", ErrInvalidBins, c.MinBin, c.MaxBin)
	}
	if math.Pow(float64(c.BinGrowth), float64(c.MaxBin)) > math.MaxInt64/2 {
		return fmt.Errorf("%w: %d^%d overflows", ErrInvalidBins, c.BinGrowth, c.MaxBin)
	}
	if c.MaxCachedBytes < 0 {
		return fmt.Errorf("%w: negative cache budget", ErrInvalidBins)
	}
	return nil
}

// DefaultStream is the only stream of a device. All work for a device runs on
// the goroutine its platform hands to ForEach, so blocks never move between
// streams.
const DefaultStream = 0

// Block is one allocation handed out by a CachingAllocator.
type Block struct {
	Device int // Owning device.
	Stream int // Owning execution stream, DefaultStream for syncmem buffers.
	Bin    int // Bin index or InvalidBin.
	Bytes  int // Rounded size actually reserved.
	data   []byte
}

// Data returns the block memory.
func (b *Block) Data() []byte {
	return b.data
}

// binKey addresses the free list of one bin on one device.
type binKey struct {
	device int
	bin    int
}

// Stats is a snapshot of allocator activity.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	LiveBlocks   int
	LiveBytes    int64
	CachedBlocks int
	CachedBytes  int64
}

// CachingAllocator is a bin-indexed free-list allocator over one memory space.
// Freed blocks are kept per (device, bin) and reused by later requests of the
// same bin. A bin never caches more than MaxCachedBytes; the excess goes back
// to the raw allocator. It is safe for concurrent use.
type CachingAllocator struct {
	space Space
	raw   RawAllocator
	cfg   Config

	minBinBytes int64
	maxBinBytes int64

	mu          sync.Mutex
	cached      map[binKey][]*Block
	cachedBytes map[binKey]int64
	live        map[*Block]struct{}
	stats       Stats
}

// NewCachingAllocator creates an allocator over the given raw allocator.
func NewCachingAllocator(space Space, raw RawAllocator, cfg Config) (*CachingAllocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CachingAllocator{
		space:       space,
		raw:         raw,
		cfg:         cfg,
		minBinBytes: ipow(cfg.BinGrowth, cfg.MinBin),
		maxBinBytes: ipow(cfg.BinGrowth, cfg.MaxBin),
		cached:      make(map[binKey][]*Block),
		cachedBytes: make(map[binKey]int64),
		live:        make(map[*Block]struct{}),
	}, nil
}

// Space returns the memory space this allocator serves.
func (a *CachingAllocator) Space() Space {
	return a.space
}

// Config returns the allocator configuration.
func (a *CachingAllocator) Config() Config {
	return a.cfg
}

// BinFor returns the bin and rounded size for a request of bytes.
func (a *CachingAllocator) BinFor(bytes int) (bin int, rounded int) {
	if int64(bytes) > a.maxBinBytes {
		return InvalidBin, bytes
	}
	if int64(bytes) <= a.minBinBytes {
		return a.cfg.MinBin, int(a.minBinBytes)
	}
	bin = a.cfg.MinBin
	size := a.minBinBytes
	for size < int64(bytes) {
		size *= int64(a.cfg.BinGrowth)
		bin++
	}
	return bin, int(size)
}

// Allocate returns a block of at least bytes length on device.
// A cached block of the same bin is reused when available.
func (a *CachingAllocator) Allocate(device, stream, bytes int) (*Block, error) {
	bin, rounded := a.BinFor(bytes)

	a.mu.Lock()
	defer a.mu.Unlock()

	if bin != InvalidBin {
		key := binKey{device: device, bin: bin}
		if blocks := a.cached[key]; len(blocks) > 0 {
			b := blocks[len(blocks)-1]
			a.cached[key] = blocks[:len(blocks)-1]
			a.cachedBytes[key] -= int64(b.Bytes)
			a.stats.CachedBlocks--
			a.stats.CachedBytes -= int64(b.Bytes)
			a.stats.Hits++
			b.Stream = stream
			a.track(b)
			if a.cfg.Debug {
				slog.Debug("reused cached block", "space", a.space, "device", device, "bin", bin, "bytes", b.Bytes)
			}
			return b, nil
		}
	}

	a.stats.Misses++
	data, err := a.raw.Malloc(device, rounded)
	if err != nil {
		return nil, fmt.Errorf("%s allocate %d bytes on device %d: %w", a.space, rounded, device, wrapExhausted(err))
	}
	b := &Block{Device: device, Stream: stream, Bin: bin, Bytes: rounded, data: data}
	a.track(b)
	if a.cfg.Debug {
		slog.Debug("allocated block", "space", a.space, "device", device, "bin", bin, "bytes", rounded)
	}
	return b, nil
}

// Free returns a block to its bin cache, or to the raw allocator when the bin
// budget would be exceeded.
func (a *CachingAllocator) Free(b *Block) error {
	if b == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.live[b]; !ok {
		return ErrUnknownBlock
	}
	delete(a.live, b)
	a.stats.LiveBlocks--
	a.stats.LiveBytes -= int64(b.Bytes)

	key := binKey{device: b.Device, bin: b.Bin}
	if b.Bin != InvalidBin && a.cachedBytes[key]+int64(b.Bytes) <= a.cfg.MaxCachedBytes {
		a.cached[key] = append(a.cached[key], b)
		a.cachedBytes[key] += int64(b.Bytes)
		a.stats.CachedBlocks++
		a.stats.CachedBytes += int64(b.Bytes)
		if a.cfg.Debug {
			slog.Debug("cached block", "space", a.space, "device", b.Device, "bin", b.Bin, "bytes", b.Bytes)
		}
		return nil
	}

	a.stats.Evictions++
	if a.cfg.Debug {
		slog.Debug("released block", "space", a.space, "device", b.Device, "bin", b.Bin, "bytes", b.Bytes)
	}
	return a.raw.Free(b.Device, b.data)
}

// FreeAllCached releases every cached block to the raw allocator.
func (a *CachingAllocator) FreeAllCached() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for key, blocks := range a.cached {
		for _, b := range blocks {
			if err := a.raw.Free(b.Device, b.data); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(a.cached, key)
	}
	clear(a.cachedBytes)
	a.stats.CachedBlocks = 0
	a.stats.CachedBytes = 0
	return firstErr
}

// Close frees the cache unless SkipCleanup is set.
func (a *CachingAllocator) Close() error {
	if a.cfg.SkipCleanup {
		return nil
	}
	return a.FreeAllCached()
}

// CachedBytes returns the bytes currently cached in one bin of device.
func (a *CachingAllocator) CachedBytes(device, bin int) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cachedBytes[binKey{device: device, bin: bin}]
}

// Stats returns a snapshot of allocator statistics.
func (a *CachingAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// track records b as live (must hold lock).
func (a *CachingAllocator) track(b *Block) {
	a.live[b] = struct{}{}
	a.stats.LiveBlocks++
	a.stats.LiveBytes += int64(b.Bytes)
}

func wrapExhausted(err error) error {
	if errors.Is(err, ErrResourceExhausted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
}

func ipow(base, exp int) int64 {
	r := int64(1)
	for range exp {
		r *= int64(base)
	}
	return r
}
