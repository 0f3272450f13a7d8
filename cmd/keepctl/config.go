// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/bpowers/keep"
)

// fileConfig mirrors the TOML layout document:
//
//	compression = false
//	encryption = false
//	safety = 1
//
//	[partitions]
//	rom = 2048
//	save = 2048
//	backup = 1024
//	runtime = 2048
//
//	[cache]
//	max_entries = 8
//
// Keys absent from the document keep their default values.
type fileConfig struct {
	Compression bool  `toml:"compression"`
	Encryption  bool  `toml:"encryption"`
	Safety      uint8 `toml:"safety"`

	Partitions struct {
		ROM     uint16 `toml:"rom"`
		Save    uint16 `toml:"save"`
		Backup  uint16 `toml:"backup"`
		Runtime uint16 `toml:"runtime"`
	} `toml:"partitions"`

	Cache struct {
		MaxEntries uint8 `toml:"max_entries"`
	} `toml:"cache"`
}

func loadConfig(path string) (*keep.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	def := keep.DefaultConfig()
	var fc fileConfig
	fc.Compression = def.EnableCompression
	fc.Encryption = def.EnableEncryption
	fc.Safety = uint8(def.Safety)
	fc.Partitions.ROM = def.ROMSize
	fc.Partitions.Save = def.SaveSize
	fc.Partitions.Backup = def.BackupSize
	fc.Partitions.Runtime = def.RuntimeSize
	fc.Cache.MaxEntries = def.MaxCacheEntries

	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg := &keep.Config{
		ROMSize:           fc.Partitions.ROM,
		SaveSize:          fc.Partitions.Save,
		BackupSize:        fc.Partitions.Backup,
		RuntimeSize:       fc.Partitions.Runtime,
		EnableCompression: fc.Compression,
		EnableEncryption:  fc.Encryption,
		MaxCacheEntries:   fc.Cache.MaxEntries,
		Safety:            keep.SafetyLevel(fc.Safety),
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	return cfg, nil
}

func presetConfig(name string) (*keep.Config, error) {
	switch name {
	case "default":
		return keep.DefaultConfig(), nil
	case "tiny":
		return keep.ConfigTiny(), nil
	case "small":
		return keep.ConfigSmall(), nil
	case "medium":
		return keep.ConfigMedium(), nil
	case "large":
		return keep.ConfigLarge(), nil
	case "safe":
		return keep.ConfigSafe(2048, 2048, 1024, 2048), nil
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}
