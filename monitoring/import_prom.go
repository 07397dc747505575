// Copyright 2025 l3montree UG (haftungsbeschraenkt).
// SPDX-License-Identifier: 	AGPL-3.0-or-later

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var NVDSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kepler_daemon_nvd_sync_duration_minutes",
	Help:    "Duration of NVD sync operations in minutes",
	Buckets: prometheus.DefBuckets,
})

var NPMSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kepler_daemon_npm_sync_duration_minutes",
	Help:    "Duration of npm advisories sync operations in minutes",
	Buckets: prometheus.DefBuckets,
})
