// Copyright (C) 2025 l3montree GmbH
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package daemons

import (
	"context"
	"os"
	"time"

	"github.com/l3montree-dev/kepler/shared"
)

type nvdSyncer interface {
	Sync(ctx context.Context) error
}

type npmSyncer interface {
	Sync(ctx context.Context, recentOnly bool) error
}

type indexRefresher interface {
	Refresh() error
}

// DaemonRunner encapsulates daemon dependencies and lifecycle
type DaemonRunner struct {
	configService shared.ConfigService
	nvdService    nvdSyncer
	npmService    npmSyncer
	searchService indexRefresher
}

// NewDaemonRunner creates a new daemon runner with injected dependencies
func NewDaemonRunner(
	configService shared.ConfigService,
	nvdService nvdSyncer,
	npmService npmSyncer,
	searchService indexRefresher,
) *DaemonRunner {
	return &DaemonRunner{
		configService: configService,
		nvdService:    nvdService,
		npmService:    npmService,
		searchService: searchService,
	}
}

// Start initiates the background mirror loop. The loop wakes up every
// 5 minutes and mirrors each source at most once per 12 hours.
func (runner *DaemonRunner) Start() {
	if os.Getenv("DISABLE_DAEMONS") == "true" {
		return
	}

	go func() {
		runner.runDaemons()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			runner.runDaemons()
		}
	}()
}
