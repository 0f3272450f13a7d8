// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// The keepctl tool creates, inspects, and edits keep database images from
// the command line.  The engine stores no layout metadata on media, so
// every command takes the same --config/--preset pair the image was
// created with.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bpowers/keep"
	"github.com/bpowers/keep/metrics"
)

var versionGitCommit string
var versionBuildTime string

func isPossibleValue(expected []string, value string) bool {
	for _, v := range expected {
		if value == v {
			return true
		}
	}
	return false
}

func layoutFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "", TakesFile: true, Usage: "TOML document describing the image's partition layout", EnvVars: []string{"KEEP_CONFIG"}},
		&cli.StringFlag{Name: "preset", Value: "", Usage: "Named layout preset (default, tiny, small, medium, large, safe), conflicts with --config", EnvVars: []string{"KEEP_PRESET"}},
	}
}

func imageFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "image", Required: true, Usage: "Database image file path", EnvVars: []string{"KEEP_IMAGE"}},
	}
	flags = append(flags, layoutFlags()...)
	return append(flags, extra...)
}

func resolveConfig(c *cli.Context) (*keep.Config, error) {
	configPath := c.String("config")
	preset := c.String("preset")
	if configPath != "" && preset != "" {
		return nil, fmt.Errorf("--config conflicts with --preset")
	}
	if configPath != "" {
		return loadConfig(configPath)
	}
	if preset != "" {
		return presetConfig(preset)
	}
	return keep.DefaultConfig(), nil
}

// parseKey reads the ns:cat:id form printed by Key.String, fields in hex.
func parseKey(s string) (keep.Key, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("key %q should have the form ns:cat:id", s)
	}
	ns, err := strconv.ParseUint(fields[0], 16, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "key namespace %q", fields[0])
	}
	cat, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "key category %q", fields[1])
	}
	id, err := strconv.ParseUint(fields[2], 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "key id %q", fields[2])
	}

	key := keep.MakeKey(uint8(ns), uint8(cat), uint16(id))
	if !key.Valid() {
		return 0, fmt.Errorf("key %s uses reserved field values", key)
	}
	return key, nil
}

func parsePartitions(name string) ([]keep.PartitionID, error) {
	all := []keep.PartitionID{
		keep.PartitionROM, keep.PartitionSave, keep.PartitionBackup, keep.PartitionRuntime,
	}
	if name == "" || name == "all" {
		return all, nil
	}
	for _, pid := range all {
		if pid.String() == name {
			return []keep.PartitionID{pid}, nil
		}
	}
	return nil, fmt.Errorf("unknown partition %q", name)
}

// attach opens an existing image and adopts its contents.  Opening
// read-write would create a missing image as a side effect, so the path is
// required to exist up front.
func attach(path string, cfg *keep.Config, readonly bool) (*keep.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "image %s", path)
	}

	opts := []keep.Option{keep.WithFile(path)}
	if readonly {
		opts = append(opts, keep.WithReadOnly())
	}
	db, err := keep.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Attach(cfg); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "attach")
	}
	return db, nil
}

func createAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}
	path := c.String("image")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("image %s already exists", path)
	}

	db, err := keep.New(keep.WithFile(path))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Initialize(cfg); err != nil {
		return errors.Wrap(err, "initialize")
	}
	if err := db.Sync(); err != nil {
		return errors.Wrap(err, "sync")
	}

	logrus.Infof("created %s: rom/save/backup/runtime = %d/%d/%d/%d bytes",
		path, cfg.ROMSize, cfg.SaveSize, cfg.BackupSize, cfg.RuntimeSize)
	return nil
}

func setAction(c *cli.Context) error {
	key, err := parseKey(c.String("key"))
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	db, err := attach(c.String("image"), cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	typ := c.String("type")
	possibleTypes := []string{"bytes", "string", "u8", "u16", "u32"}
	if !isPossibleValue(possibleTypes, typ) {
		return fmt.Errorf("--type should be one of %v", possibleTypes)
	}

	switch typ {
	case "u8", "u16", "u32":
		if c.String("value-hex") != "" {
			return fmt.Errorf("--value-hex cannot be combined with --type %s", typ)
		}
		n, err := strconv.ParseUint(c.String("value"), 0, 32)
		if err != nil {
			return errors.Wrap(err, "parse --value")
		}
		switch typ {
		case "u8":
			if n > 0xff {
				return fmt.Errorf("%d does not fit in a u8", n)
			}
			err = db.SetU8(key, uint8(n))
		case "u16":
			if n > 0xffff {
				return fmt.Errorf("%d does not fit in a u16", n)
			}
			err = db.SetU16(key, uint16(n))
		case "u32":
			err = db.SetU32(key, uint32(n))
		}
		if err != nil {
			return errors.Wrap(err, "set")
		}
	default:
		value := []byte(c.String("value"))
		if valueHex := c.String("value-hex"); valueHex != "" {
			if len(value) > 0 {
				return fmt.Errorf("--value conflicts with --value-hex")
			}
			value, err = hex.DecodeString(valueHex)
			if err != nil {
				return errors.Wrap(err, "decode --value-hex")
			}
		}
		if typ == "string" {
			err = db.SetTyped(key, value, keep.EntryString)
		} else {
			err = db.Set(key, value)
		}
		if err != nil {
			return errors.Wrap(err, "set")
		}
	}

	if err := db.Sync(); err != nil {
		return errors.Wrap(err, "sync")
	}
	logrus.Infof("stored %s in %s", key, c.String("image"))
	return nil
}

func getAction(c *cli.Context) error {
	key, err := parseKey(c.String("key"))
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	db, err := attach(c.String("image"), cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	value, err := db.Get(key)
	if err != nil {
		return errors.Wrapf(err, "get %s", key)
	}
	if c.Bool("hex") {
		fmt.Printf("%x\n", value)
	} else {
		fmt.Printf("%s\n", value)
	}
	return nil
}

func dumpAction(c *cli.Context) error {
	pids, err := parsePartitions(c.String("partition"))
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	db, err := attach(c.String("image"), cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, pid := range pids {
		walkErr := db.Walk(pid, func(key keep.Key, typ keep.EntryType, flags keep.EntryFlags, value []byte) bool {
			fmt.Printf("%-8s %s %-10s flags=%#02x %3dB %q\n",
				pid, key, typ, uint8(flags), len(value), value)
			return true
		})
		if walkErr != nil {
			return errors.Wrapf(walkErr, "dump %s", pid)
		}
	}
	return nil
}

func verifyAction(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one image path is required")
	}
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	eg := new(errgroup.Group)
	for _, path := range paths {
		p := path
		eg.Go(func() error {
			db, err := attach(p, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.Validate(); err != nil {
				return errors.Wrap(err, p)
			}
			logrus.Infof("%s: ok", p)
			return nil
		})
	}
	return eg.Wait()
}

func statsAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	db, err := attach(c.String("image"), cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	fmt.Print(db.MemoryMap())

	if addr := c.String("serve"); addr != "" {
		registry := prometheus.NewRegistry()
		if err := registry.Register(metrics.NewCollector(db)); err != nil {
			return errors.Wrap(err, "register collector")
		}
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)

		logrus.Infof("serving metrics on %s/metrics", addr)
		return http.ListenAndServe(addr, mux)
	}
	return nil
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)

	app := &cli.App{
		Name:    "keepctl",
		Usage:   "Create, inspect, and edit keep database images",
		Version: version,
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
	}
	app.Before = func(c *cli.Context) error {
		logLevel, err := logrus.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(logLevel)
		logrus.Debugf("Version: %s", version)
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:   "create",
			Usage:  "Create and format a new database image",
			Flags:  imageFlags(),
			Action: createAction,
		},
		{
			Name:  "set",
			Usage: "Store an entry in the image's save partition",
			Flags: imageFlags(
				&cli.StringFlag{Name: "key", Required: true, Usage: "Entry key in ns:cat:id hex form"},
				&cli.StringFlag{Name: "value", Value: "", Usage: "Entry payload; a number for the integer types"},
				&cli.StringFlag{Name: "value-hex", Value: "", Usage: "Entry payload as hex bytes, conflicts with --value"},
				&cli.StringFlag{Name: "type", Value: "bytes", Usage: "Entry type (bytes, string, u8, u16, u32)"},
			),
			Action: setAction,
		},
		{
			Name:  "get",
			Usage: "Read an entry, searching runtime, save, backup, then rom",
			Flags: imageFlags(
				&cli.StringFlag{Name: "key", Required: true, Usage: "Entry key in ns:cat:id hex form"},
				&cli.BoolFlag{Name: "hex", Value: false, Usage: "Print the payload as hex instead of raw bytes"},
			),
			Action: getAction,
		},
		{
			Name:  "dump",
			Usage: "List every entry record, shadowed history included",
			Flags: imageFlags(
				&cli.StringFlag{Name: "partition", Value: "all", Usage: "Partition to dump (rom, save, backup, runtime, all)"},
			),
			Action: dumpAction,
		},
		{
			Name:      "verify",
			Usage:     "Check partition magic, bounds, and checksums of images",
			ArgsUsage: "IMAGE...",
			Flags:     layoutFlags(),
			Action:    verifyAction,
		},
		{
			Name:  "stats",
			Usage: "Print the image's memory map, optionally serving Prometheus metrics",
			Flags: imageFlags(
				&cli.StringFlag{Name: "serve", Value: "", Usage: "Address to serve /metrics on until interrupted, e.g. :9090"},
			),
			Action: statsAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
