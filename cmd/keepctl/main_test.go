// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/bpowers/keep"
)

func TestIsPossibleValue(t *testing.T) {
	list := []string{"bytes", "string", "u8"}
	require.True(t, isPossibleValue(list, "u8"))

	// Failure situation
	require.False(t, isPossibleValue(list, "u64"))
}

func TestParseKey(t *testing.T) {
	key, err := parseKey("01:02:0304")
	require.NoError(t, err)
	require.Equal(t, keep.MakeKey(0x01, 0x02, 0x0304), key)

	// Failure situation
	_, err = parseKey("01:02")
	require.Error(t, err)
	require.Contains(t, err.Error(), "should have the form")

	_, err = parseKey("zz:02:0304")
	require.Error(t, err)

	_, err = parseKey("ff:02:0304")
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved field values")

	_, err = parseKey("00:00:0000")
	require.Error(t, err)
}

func TestParsePartitions(t *testing.T) {
	all, err := parsePartitions("all")
	require.NoError(t, err)
	require.Len(t, all, 4)

	one, err := parsePartitions("save")
	require.NoError(t, err)
	require.Equal(t, []keep.PartitionID{keep.PartitionSave}, one)

	// Failure situation
	_, err = parsePartitions("banana")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown partition")
}

func TestPresetConfig(t *testing.T) {
	for _, name := range []string{"default", "tiny", "small", "medium", "large", "safe"} {
		cfg, err := presetConfig(name)
		require.NoError(t, err, name)
		require.NoError(t, cfg.Validate(), name)
	}

	// Failure situation
	_, err := presetConfig("gigantic")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown preset")
}

func TestLoadConfig(t *testing.T) {
	doc := `
compression = true
safety = 2

[partitions]
rom = 1024
save = 4096

[cache]
max_entries = 32
`
	path := filepath.Join(t.TempDir(), "layout.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), cfg.ROMSize)
	assert.Equal(t, uint16(4096), cfg.SaveSize)
	// keys absent from the document keep their defaults
	assert.Equal(t, uint16(1024), cfg.BackupSize)
	assert.Equal(t, uint16(2048), cfg.RuntimeSize)
	assert.True(t, cfg.EnableCompression)
	assert.False(t, cfg.EnableEncryption)
	assert.Equal(t, uint8(32), cfg.MaxCacheEntries)
	assert.Equal(t, keep.SafetyParanoid, cfg.Safety)

	// Failure situation
	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[partitions]\nrom = 64\n"), 0o644))
	_, err = loadConfig(bad)
	require.Error(t, err)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestResolveConfig(t *testing.T) {
	app := &cli.App{
		Flags: layoutFlags(),
	}
	ctx := cli.NewContext(app, nil, nil)

	cfg, err := resolveConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, keep.DefaultConfig(), cfg)

	flagSet := flag.NewFlagSet("test1", flag.PanicOnError)
	flagSet.String("preset", "tiny", "")
	ctx = cli.NewContext(app, flagSet, nil)
	cfg, err = resolveConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, keep.ConfigTiny(), cfg)

	// Failure situation
	flagSet = flag.NewFlagSet("test2", flag.PanicOnError)
	flagSet.String("preset", "tiny", "")
	flagSet.String("config", "layout.toml", "")
	ctx = cli.NewContext(app, flagSet, nil)
	_, err = resolveConfig(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "--config conflicts with --preset")
}
