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

package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kepler",
	Short: "CVE search engine",
	Long:  `Kepler mirrors the NVD and npm advisory feeds into postgres and serves product/version vulnerability lookups over http.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// running without a subcommand starts the api server
		return serve(cmd, args)
	},
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}
