// Copyright 2025 l3montree UG (haftungsbeschraenkt).
// SPDX-License-Identifier: 	AGPL-3.0-or-later

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SearchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kepler_search_cache_hits_total",
	Help: "The total number of search cache hits",
})

var SearchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kepler_search_cache_misses_total",
	Help: "The total number of search cache misses",
})

var IndexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kepler_search_index_rebuild_duration_minutes",
	Help:    "Duration of search index rebuilds in minutes",
	Buckets: prometheus.DefBuckets,
})
