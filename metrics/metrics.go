// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package metrics exposes a database's usage counters as a Prometheus
// collector.  Values are read from keep.DB.Stats at scrape time, so the
// collector adds no bookkeeping to the write path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bpowers/keep"
)

const partitionLabel = "partition"

var (
	arenaSizeDesc = prometheus.NewDesc(
		"keep_arena_size_bytes",
		"Fixed size of the backing arena.",
		nil, nil,
	)
	arenaUsedDesc = prometheus.NewDesc(
		"keep_arena_used_bytes",
		"Bytes consumed across all partitions, headers included.",
		nil, nil,
	)
	arenaFreeDesc = prometheus.NewDesc(
		"keep_arena_free_bytes",
		"Arena bytes not consumed by partition contents.",
		nil, nil,
	)
	partitionSizeDesc = prometheus.NewDesc(
		"keep_partition_size_bytes",
		"Configured size of the partition.",
		[]string{partitionLabel}, nil,
	)
	partitionUsedDesc = prometheus.NewDesc(
		"keep_partition_used_bytes",
		"Bytes consumed in the partition, header included.",
		[]string{partitionLabel}, nil,
	)
	partitionFreeDesc = prometheus.NewDesc(
		"keep_partition_free_bytes",
		"Bytes still appendable in the partition.",
		[]string{partitionLabel}, nil,
	)
	partitionEntriesDesc = prometheus.NewDesc(
		"keep_partition_entries",
		"Entry records stored in the partition.",
		[]string{partitionLabel}, nil,
	)
	cacheSlotsDesc = prometheus.NewDesc(
		"keep_cache_slots",
		"Cache slots carved from the runtime partition.",
		nil, nil,
	)
	cacheOccupiedDesc = prometheus.NewDesc(
		"keep_cache_occupied_slots",
		"Cache slots currently holding a key.",
		nil, nil,
	)
	cacheReservedDesc = prometheus.NewDesc(
		"keep_cache_reserved_bytes",
		"Runtime bytes reserved for cache slots.",
		nil, nil,
	)
)

// Collector implements prometheus.Collector over a single database
// handle.  Register it with any prometheus.Registerer.
type Collector struct {
	db *keep.DB
}

func NewCollector(db *keep.DB) *Collector {
	return &Collector{db: db}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- arenaSizeDesc
	ch <- arenaUsedDesc
	ch <- arenaFreeDesc
	ch <- partitionSizeDesc
	ch <- partitionUsedDesc
	ch <- partitionFreeDesc
	ch <- partitionEntriesDesc
	ch <- cacheSlotsDesc
	ch <- cacheOccupiedDesc
	ch <- cacheReservedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()

	gauge := func(desc *prometheus.Desc, value int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(value), labels...)
	}

	gauge(arenaSizeDesc, stats.TotalSize)
	gauge(arenaUsedDesc, stats.TotalUsed)
	gauge(arenaFreeDesc, stats.TotalFree)

	for i := range stats.Partitions {
		p := stats.Partitions[i]
		name := keep.PartitionID(i).String()
		gauge(partitionSizeDesc, p.Size, name)
		gauge(partitionUsedDesc, p.Used, name)
		gauge(partitionFreeDesc, p.Free, name)
		gauge(partitionEntriesDesc, p.Entries, name)
	}

	gauge(cacheSlotsDesc, stats.CacheSlots)
	gauge(cacheOccupiedDesc, stats.CacheOccupied)
	gauge(cacheReservedDesc, stats.CacheReserved)
}
