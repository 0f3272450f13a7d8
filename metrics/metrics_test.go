// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/keep"
)

func gatherByName(t *testing.T, db *keep.DB) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(db)))
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

func TestCollector(t *testing.T) {
	db, err := keep.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Initialize(nil))
	require.NoError(t, db.Set(keep.MakeKey(1, 1, 1), []byte("abc")))

	byName := gatherByName(t, db)

	size := byName["keep_arena_size_bytes"]
	require.NotNil(t, size)
	assert.Equal(t, float64(keep.ArenaSize), size.GetMetric()[0].GetGauge().GetValue())

	// four fresh headers plus one 9-byte record
	used := byName["keep_arena_used_bytes"]
	require.NotNil(t, used)
	assert.Equal(t, float64(4*16+9), used.GetMetric()[0].GetGauge().GetValue())

	entries := byName["keep_partition_entries"]
	require.NotNil(t, entries)
	require.Len(t, entries.GetMetric(), 4)

	perPartition := make(map[string]float64, 4)
	for _, m := range entries.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "partition" {
				perPartition[label.GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), perPartition["save"])
	assert.Equal(t, float64(0), perPartition["rom"])
	assert.Equal(t, float64(0), perPartition["backup"])
	assert.Equal(t, float64(0), perPartition["runtime"])

	occupied := byName["keep_cache_occupied_slots"]
	require.NotNil(t, occupied)
	assert.Equal(t, float64(1), occupied.GetMetric()[0].GetGauge().GetValue())
}

func TestCollector_Uninitialized(t *testing.T) {
	db, err := keep.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// scraping an uninitialized handle reports zero usage, not an error
	byName := gatherByName(t, db)
	used := byName["keep_arena_used_bytes"]
	require.NotNil(t, used)
	assert.Equal(t, float64(0), used.GetMetric()[0].GetGauge().GetValue())
}
