// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import "fmt"

// SafetyLevel selects how much verification the engine performs on top of
// its always-on bounds checks.
type SafetyLevel uint8

const (
	// SafetyNone trusts partition state between operations.
	SafetyNone SafetyLevel = 0
	// SafetyStandard is the default level.
	SafetyStandard SafetyLevel = 1
	// SafetyParanoid re-verifies the target partition's checksum before
	// every write, so corruption is caught before it can be built upon.
	SafetyParanoid SafetyLevel = 2
)

// Config sizes the four partitions and tunes the engine's behavior.  Sizes
// are fixed for the lifetime of an initialized database.
type Config struct {
	ROMSize     uint16
	SaveSize    uint16
	BackupSize  uint16
	RuntimeSize uint16

	// Compression and encryption are advisory: the engine stores and
	// reports them but leaves both transforms to collaborator layers.
	EnableCompression bool
	EnableEncryption  bool

	// MaxCacheEntries slots are carved from the runtime partition's tail,
	// clamped to MaxCacheSlots.  Zero disables the cache.
	MaxCacheEntries uint8

	Safety SafetyLevel
}

// DefaultConfig is the conservative layout applied when Initialize is
// given a nil config: two 2 KiB durable partitions, a smaller backup and
// runtime region, and a few cache slots.
func DefaultConfig() *Config {
	return &Config{
		ROMSize:         2048,
		SaveSize:        2048,
		BackupSize:      1024,
		RuntimeSize:     2048,
		MaxCacheEntries: 8,
		Safety:          SafetyStandard,
	}
}

// ConfigTiny fits well under 2 KiB of arena for the smallest deployments.
func ConfigTiny() *Config {
	return &Config{
		ROMSize:         512,
		SaveSize:        512,
		BackupSize:      256,
		RuntimeSize:     512,
		MaxCacheEntries: 4,
		Safety:          SafetyStandard,
	}
}

// ConfigSmall doubles ConfigTiny.
func ConfigSmall() *Config {
	return &Config{
		ROMSize:         1024,
		SaveSize:        1024,
		BackupSize:      512,
		RuntimeSize:     1024,
		MaxCacheEntries: 8,
		Safety:          SafetyStandard,
	}
}

// ConfigMedium matches DefaultConfig's sizes with a bigger cache and
// advisory compression turned on.
func ConfigMedium() *Config {
	return &Config{
		ROMSize:           2048,
		SaveSize:          2048,
		BackupSize:        1024,
		RuntimeSize:       2048,
		EnableCompression: true,
		MaxCacheEntries:   16,
		Safety:            SafetyStandard,
	}
}

// ConfigLarge uses most of the arena.
func ConfigLarge() *Config {
	return &Config{
		ROMSize:           4096,
		SaveSize:          4096,
		BackupSize:        2048,
		RuntimeSize:       4096,
		EnableCompression: true,
		EnableEncryption:  true,
		MaxCacheEntries:   32,
		Safety:            SafetyStandard,
	}
}

// ConfigSafe builds a paranoid-level config over caller-chosen sizes.
func ConfigSafe(rom, save, backup, runtime uint16) *Config {
	return &Config{
		ROMSize:           rom,
		SaveSize:          save,
		BackupSize:        backup,
		RuntimeSize:       runtime,
		EnableCompression: true,
		MaxCacheEntries:   16,
		Safety:            SafetyParanoid,
	}
}

// Validate checks every partition size against [MinPartitionSize,
// MaxPartitionSize], the summed sizes against the arena, and the safety
// level against its defined range.  All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	sizes := [NumPartitions]uint16{c.ROMSize, c.SaveSize, c.BackupSize, c.RuntimeSize}
	total := 0
	for i, size := range sizes {
		if size < MinPartitionSize || size > MaxPartitionSize {
			return fmt.Errorf("%s partition %d bytes outside [%d, %d]: %w",
				PartitionID(i), size, MinPartitionSize, MaxPartitionSize, ErrInvalidConfig)
		}
		total += int(size)
	}
	if total > ArenaSize {
		return fmt.Errorf("partitions total %d bytes, arena holds %d: %w", total, ArenaSize, ErrInvalidConfig)
	}
	if c.Safety > SafetyParanoid {
		return fmt.Errorf("safety level %d out of range: %w", c.Safety, ErrInvalidConfig)
	}
	return nil
}

// TotalSize sums the four configured partition sizes.
func (c *Config) TotalSize() int {
	return int(c.ROMSize) + int(c.SaveSize) + int(c.BackupSize) + int(c.RuntimeSize)
}
