package daemons

import (
	"context"
	"log/slog"
	"time"

	"github.com/l3montree-dev/kepler/monitoring"
	"github.com/l3montree-dev/kepler/shared"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	nvdMirrorKey = "vulndb.nvd"
	npmMirrorKey = "vulndb.npm"
)

func getLastMirrorTime(configService shared.ConfigService, key string) (time.Time, error) {
	var lastMirror struct {
		Time time.Time `json:"time"`
	}

	err := configService.GetJSONConfig(key, &lastMirror)

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("could not get last mirror time", "err", err, "key", key)
		return time.Time{}, err
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Info("no last mirror time found. Setting to 0", "key", key)
		return time.Time{}, nil
	}

	return lastMirror.Time, nil
}

func shouldMirror(configService shared.ConfigService, key string) bool {
	lastTime, err := getLastMirrorTime(configService, key)
	if err != nil {
		return false
	}

	return time.Since(lastTime) > 12*time.Hour
}

func markMirrored(configService shared.ConfigService, key string) error {
	return configService.SetJSONConfig(key, struct {
		Time time.Time `json:"time"`
	}{
		Time: time.Now(),
	})
}

func (runner *DaemonRunner) runDaemons() {
	daemonStart := time.Now()
	slog.Info("starting background jobs", "time", daemonStart)

	ctx := context.Background()
	imported := false

	if shouldMirror(runner.configService, nvdMirrorKey) {
		start := time.Now()
		if err := runner.nvdService.Sync(ctx); err != nil {
			monitoring.Alert("failed to mirror the NVD feed", err)
			// Even if the mirror fails we mark it as mirrored to avoid
			// hammering the upstream api in an endless retry loop.
		} else {
			imported = true
		}
		if err := markMirrored(runner.configService, nvdMirrorKey); err != nil {
			slog.Error("could not mark nvd as mirrored", "err", err)
		}
		monitoring.NVDSyncDuration.Observe(time.Since(start).Minutes())
		slog.Info("nvd mirrored", "duration", time.Since(start))
	}

	if shouldMirror(runner.configService, npmMirrorKey) {
		start := time.Now()
		// the very first run walks the whole advisory feed, afterwards only
		// the most recent page is needed
		lastTime, _ := getLastMirrorTime(runner.configService, npmMirrorKey)
		if err := runner.npmService.Sync(ctx, !lastTime.IsZero()); err != nil {
			monitoring.Alert("failed to mirror the npm advisory feed", err)
		} else {
			imported = true
		}
		if err := markMirrored(runner.configService, npmMirrorKey); err != nil {
			slog.Error("could not mark npm as mirrored", "err", err)
		}
		monitoring.NPMSyncDuration.Observe(time.Since(start).Minutes())
		slog.Info("npm advisories mirrored", "duration", time.Since(start))
	}

	if imported {
		if err := runner.searchService.Refresh(); err != nil {
			monitoring.Alert("failed to rebuild the search index", err)
		}
	}

	slog.Info("background jobs finished", "duration", time.Since(daemonStart))
}
