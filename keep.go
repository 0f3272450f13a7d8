// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bpowers/keep/internal/cache"
	"github.com/bpowers/keep/internal/imagefile"
	"github.com/bpowers/keep/internal/partition"
	"github.com/bpowers/keep/internal/zero"
)

const (
	// ArenaSize is the fixed backing region every database lives in.
	ArenaSize = 16 * 1024

	// MinPartitionSize and MaxPartitionSize bound each configured
	// partition.
	MinPartitionSize = 256
	MaxPartitionSize = 8 * 1024

	// MaxEntrySize is the largest payload one entry can carry.
	MaxEntrySize = partition.MaxEntrySize

	// MaxCacheSlots caps the write-observation cache.
	MaxCacheSlots = cache.MaxSlots
)

// PartitionID names one of the four fixed partitions, in arena order.
type PartitionID uint8

const (
	PartitionROM PartitionID = iota
	PartitionSave
	PartitionBackup
	PartitionRuntime

	// NumPartitions is the fixed partition count.
	NumPartitions = 4
)

func (id PartitionID) String() string {
	switch id {
	case PartitionROM:
		return "rom"
	case PartitionSave:
		return "save"
	case PartitionBackup:
		return "backup"
	case PartitionRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("partition(%d)", uint8(id))
	}
}

// searchOrder is the fixed read priority: freshest region first, factory
// data last.
var searchOrder = [NumPartitions]PartitionID{
	PartitionRuntime,
	PartitionSave,
	PartitionBackup,
	PartitionROM,
}

type dbOptions struct {
	logger   *slog.Logger
	path     string
	readonly bool
}

// Option adjusts how New builds a database handle.
type Option func(options *dbOptions)

// WithLogger routes the engine's diagnostics to logger.  By default they
// are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(options *dbOptions) {
		options.logger = logger
	}
}

// WithFile backs the arena with an image file at path instead of heap
// memory.  A missing file is created; an existing one is mapped and
// validated, ready for Attach.
func WithFile(path string) Option {
	return func(options *dbOptions) {
		options.path = path
	}
}

// WithReadOnly maps the image file without write access.  Every mutating
// operation on the handle fails with ErrReadOnly.  Requires WithFile.
func WithReadOnly() Option {
	return func(options *dbOptions) {
		options.readonly = true
	}
}

// DB is a handle over one arena.  It is not safe for concurrent use; the
// engine is designed for a single logical thread of control, and callers
// with more must serialize externally.
type DB struct {
	logger *slog.Logger
	arena  *imagefile.Arena

	cfg           Config
	parts         [NumPartitions]*partition.Partition
	tracker       *cache.Tracker
	cacheReserved int
	initialized   bool
}

// New builds an uninitialized database handle.  Follow with Initialize to
// format the arena, or Attach to adopt an arena that already holds data.
func New(opts ...Option) (*DB, error) {
	options := dbOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	arena, err := openArena(&options)
	if err != nil {
		return nil, err
	}
	return &DB{
		logger: options.logger,
		arena:  arena,
	}, nil
}

func openArena(options *dbOptions) (*imagefile.Arena, error) {
	if options.path == "" {
		if options.readonly {
			return nil, errors.New("read-only requires a backing image file")
		}
		return imagefile.NewMem(ArenaSize), nil
	}

	_, err := os.Stat(options.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if options.readonly {
			return nil, fmt.Errorf("image %s does not exist", options.path)
		}
		arena, err := imagefile.Create(options.path, ArenaSize)
		if err != nil {
			return nil, fmt.Errorf("imagefile.Create: %w", err)
		}
		return arena, nil
	case err != nil:
		return nil, fmt.Errorf("os.Stat(%s): %w", options.path, err)
	default:
		arena, err := imagefile.Open(options.path, ArenaSize, options.readonly)
		if err != nil {
			return nil, fmt.Errorf("imagefile.Open: %w", err)
		}
		return arena, nil
	}
}

// carvePartitions slices the arena into the four configured ranges, in
// fixed order.  The config-level size check already ran; this guards the
// layout math itself.
func carvePartitions(arena []byte, cfg *Config) ([NumPartitions][]byte, error) {
	var ranges [NumPartitions][]byte
	sizes := [NumPartitions]int{
		int(cfg.ROMSize), int(cfg.SaveSize), int(cfg.BackupSize), int(cfg.RuntimeSize),
	}

	off := 0
	for i, size := range sizes {
		if off+size > len(arena) {
			return ranges, fmt.Errorf("%s partition would end at %d in a %d byte arena: %w",
				PartitionID(i), off+size, len(arena), ErrBufferOverflow)
		}
		ranges[i] = arena[off : off+size]
		off += size
	}
	return ranges, nil
}

// carveCache reserves the cache slot region from the runtime range's tail.
// The request is clamped to MaxCacheSlots; a region that would not fit
// strictly inside the runtime partition disables the cache instead of
// failing.
func carveCache(runtime []byte, requested uint8) (shrunk []byte, slots, reserved int) {
	slots = int(requested)
	if slots > MaxCacheSlots {
		slots = MaxCacheSlots
	}
	reserved = slots * cache.SlotSize
	if reserved == 0 || reserved >= len(runtime) {
		return runtime, 0, 0
	}
	return runtime[:len(runtime)-reserved], slots, reserved
}

// Initialize formats the arena under cfg: four fresh partition headers,
// zeroed entry regions, and an empty cache.  A nil cfg applies
// DefaultConfig.  Calling Initialize on an already-initialized handle
// fails with ErrNotInitialized, the engine's long-standing wrong-state
// signal; Cleanup first to reinitialize.
func (db *DB) Initialize(cfg *Config) error {
	if db.initialized {
		return ErrNotInitialized
	}
	if db.arena.ReadOnly() {
		return ErrReadOnly
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ranges, err := carvePartitions(db.arena.Bytes(), cfg)
	if err != nil {
		return err
	}

	runtime, slots, reserved := carveCache(ranges[PartitionRuntime], cfg.MaxCacheEntries)
	if reserved > 0 {
		zero.Bytes(ranges[PartitionRuntime][len(runtime):])
		ranges[PartitionRuntime] = runtime
	}

	var parts [NumPartitions]*partition.Partition
	for i := range ranges {
		p, err := partition.Format(ranges[i])
		if err != nil {
			return fmt.Errorf("format %s: %w", PartitionID(i), err)
		}
		parts[i] = p
	}

	db.cfg = *cfg
	db.parts = parts
	db.tracker = cache.New(slots)
	db.cacheReserved = reserved
	db.initialized = true

	db.logger.Info("initialized arena",
		"rom", cfg.ROMSize, "save", cfg.SaveSize, "backup", cfg.BackupSize,
		"runtime", len(runtime), "cacheSlots", slots, "safety", uint8(cfg.Safety))
	return nil
}

// Attach adopts an arena that already holds formatted partitions, for
// example a mapped image from an earlier run, without writing anything.
// cfg must describe the same layout the arena was initialized with; every
// partition's structure and checksum are verified before the handle goes
// live.  The cache starts empty, as slot state never outlives a handle.
func (db *DB) Attach(cfg *Config) error {
	if db.initialized {
		return ErrNotInitialized
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ranges, err := carvePartitions(db.arena.Bytes(), cfg)
	if err != nil {
		return err
	}
	runtime, slots, reserved := carveCache(ranges[PartitionRuntime], cfg.MaxCacheEntries)
	ranges[PartitionRuntime] = runtime

	var parts [NumPartitions]*partition.Partition
	for i := range ranges {
		p := partition.View(ranges[i])
		if err := p.Verify(); err != nil {
			db.logger.Warn("refusing to adopt arena", "partition", PartitionID(i), "err", err)
			return fmt.Errorf("verify %s: %w", PartitionID(i), err)
		}
		if v := p.Version(); v != partition.Version {
			return fmt.Errorf("%s is format v%d, this engine reads v%d: %w",
				PartitionID(i), v, partition.Version, ErrMemoryCorrupted)
		}
		parts[i] = p
	}

	db.cfg = *cfg
	db.parts = parts
	db.tracker = cache.New(slots)
	db.cacheReserved = reserved
	db.initialized = true

	db.logger.Info("attached to arena",
		"entries", parts[PartitionROM].Count()+parts[PartitionSave].Count()+
			parts[PartitionBackup].Count()+parts[PartitionRuntime].Count(),
		"readonly", db.arena.ReadOnly())
	return nil
}

// Cleanup marks the handle uninitialized and drops the partition views and
// cache.  The arena bytes are deliberately left in place, so a following
// Initialize starts from fresh headers while a following Attach can adopt
// the warm data.
func (db *DB) Cleanup() {
	db.initialized = false
	db.parts = [NumPartitions]*partition.Partition{}
	db.tracker = nil
	db.cacheReserved = 0
	db.cfg = Config{}
}

// Close cleans up the handle and releases the arena, syncing file-backed
// ones to disk first.
func (db *DB) Close() error {
	db.Cleanup()
	return db.arena.Close()
}

// Config returns the configuration the database was initialized with, or
// the zero Config for an uninitialized handle.
func (db *DB) Config() Config {
	return db.cfg
}

func (db *DB) part(id PartitionID) (*partition.Partition, error) {
	if int(id) >= NumPartitions || db.parts[id] == nil {
		return nil, fmt.Errorf("partition %d: %w", uint8(id), ErrInvalidPartition)
	}
	return db.parts[id], nil
}

// Set stores value under key in the save partition.  Writes are
// append-only: setting a key that already exists appends a shadowed
// record, and reads keep returning the oldest one.  The public surface
// never writes anywhere but save; other partitions are populated by
// internal paths only.
func (db *DB) Set(key Key, value []byte) error {
	return db.setIn(PartitionSave, key, value, EntryBytes, 0)
}

// SetTyped is Set with a caller-chosen type tag.
func (db *DB) SetTyped(key Key, value []byte, typ EntryType) error {
	return db.setIn(PartitionSave, key, value, typ, 0)
}

func (db *DB) setIn(pid PartitionID, key Key, value []byte, typ EntryType, flags EntryFlags) error {
	if !db.initialized {
		return ErrNotInitialized
	}
	if db.arena.ReadOnly() {
		return ErrReadOnly
	}
	if !key.Valid() {
		return fmt.Errorf("key %s: %w", key, ErrInvalidKey)
	}
	if len(value) == 0 || len(value) > MaxEntrySize {
		return fmt.Errorf("%d byte payload outside [1, %d]: %w", len(value), MaxEntrySize, ErrEntryTooLarge)
	}

	p, err := db.part(pid)
	if err != nil {
		return err
	}
	if db.cfg.Safety >= SafetyParanoid {
		if err := p.Verify(); err != nil {
			return fmt.Errorf("pre-write verify of %s: %w", pid, err)
		}
	}

	off, err := p.Append(uint32(key), value, packTypeFlags(typ, flags))
	if err != nil {
		return fmt.Errorf("%s: %w", pid, err)
	}
	db.tracker.Record(uint32(key), uint16(partition.EntryHeaderSize+len(value)), off)

	db.logger.Debug("wrote entry", "key", key, "partition", pid, "size", len(value), "off", off)
	return nil
}

// Get returns a copy of the payload stored under key, searching runtime,
// save, backup, then ROM; the first partition holding the key wins, and
// within a partition the oldest record wins.  Corruption encountered
// mid-search surfaces immediately instead of being skipped.
func (db *DB) Get(key Key) ([]byte, error) {
	if !db.initialized {
		return nil, ErrNotInitialized
	}

	for _, pid := range searchOrder {
		item, err := db.parts[pid].Find(uint32(key))
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pid, err)
		}
		out := make([]byte, len(item.Value))
		copy(out, item.Value)
		return out, nil
	}
	return nil, ErrKeyNotFound
}

// Read copies the payload stored under key into buf, returning the stored
// size.  When buf is too small the stored size is still returned alongside
// ErrBufferOverflow, and buf is untouched.  An empty buf is rejected up
// front with ErrInvalidPartition.
func (db *DB) Read(key Key, buf []byte) (int, error) {
	if !db.initialized {
		return 0, ErrNotInitialized
	}
	if len(buf) == 0 {
		return 0, fmt.Errorf("empty destination buffer: %w", ErrInvalidPartition)
	}

	for _, pid := range searchOrder {
		n, err := db.parts[pid].Lookup(uint32(key), buf)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		// overflow and corruption end the search; a match in a
		// lower-priority partition must never mask either
		return n, fmt.Errorf("%s: %w", pid, err)
	}
	return 0, ErrKeyNotFound
}

// Exists reports whether any partition holds key.  It probes with a 1-byte
// read: success or a buffer overflow both prove presence.
func (db *DB) Exists(key Key) bool {
	var probe [1]byte
	_, err := db.Read(key, probe[:])
	return err == nil || errors.Is(err, ErrBufferOverflow)
}

// Walk visits every entry of one partition in storage order, shadowed
// records included.  The value slice aliases the arena and is only valid
// during the callback; copy it to retain.  Returning false from fn stops
// the walk early.
func (db *DB) Walk(pid PartitionID, fn func(key Key, typ EntryType, flags EntryFlags, value []byte) bool) error {
	if !db.initialized {
		return ErrNotInitialized
	}
	p, err := db.part(pid)
	if err != nil {
		return err
	}

	iter := p.Entries()
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		if !fn(Key(item.Key), EntryType(item.Type), EntryFlags(item.Flags), item.Value) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w", pid, err)
	}
	return nil
}

// SetU8 stores value as a 1-byte typed entry.
func (db *DB) SetU8(key Key, value uint8) error {
	return db.setIn(PartitionSave, key, []byte{value}, EntryU8, 0)
}

// SetU16 stores value little-endian as a 2-byte typed entry.
func (db *DB) SetU16(key Key, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return db.setIn(PartitionSave, key, buf[:], EntryU16, 0)
}

// SetU32 stores value little-endian as a 4-byte typed entry.
func (db *DB) SetU32(key Key, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return db.setIn(PartitionSave, key, buf[:], EntryU32, 0)
}

// GetU8 reads a 1-byte entry, returning def on any failure.  Callers who
// need to distinguish absence from corruption must use Get or Read.
func (db *DB) GetU8(key Key, def uint8) uint8 {
	probe := [1]byte{def}
	_, _ = db.Read(key, probe[:])
	return probe[0]
}

// GetU16 reads a 2-byte entry little-endian, returning def on any failure.
func (db *DB) GetU16(key Key, def uint16) uint16 {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], def)
	_, _ = db.Read(key, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

// GetU32 reads a 4-byte entry little-endian, returning def on any failure.
func (db *DB) GetU32(key Key, def uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], def)
	_, _ = db.Read(key, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Validate verifies every partition's magic, bounds, and checksum.  A nil
// return means the whole database is structurally sound; the first failure
// is returned with its partition named.
func (db *DB) Validate() error {
	if !db.initialized {
		return ErrNotInitialized
	}
	for i := range db.parts {
		if err := db.parts[i].Verify(); err != nil {
			db.logger.Warn("partition failed verification", "partition", PartitionID(i), "err", err)
			return fmt.Errorf("%s: %w", PartitionID(i), err)
		}
	}
	return nil
}

// Sync seals the arena's content fingerprint and, for file-backed arenas,
// fences the mapping to disk.
func (db *DB) Sync() error {
	if !db.initialized {
		return ErrNotInitialized
	}
	if err := db.arena.Sync(); err != nil {
		return fmt.Errorf("arena.Sync: %w", err)
	}
	return nil
}

// WriteTo serializes the database as an image file, usable later with
// WithFile.  The handle itself may be memory-backed or read-only.
func (db *DB) WriteTo(w io.Writer) (int64, error) {
	if !db.initialized {
		return 0, ErrNotInitialized
	}
	return db.arena.WriteTo(w)
}
