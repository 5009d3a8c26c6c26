// Copyright 2025 The toolmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newToolsCommand creates the 'tools' command.
func newToolsCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the merged tool catalog",
		Long: `Connect to the configured servers and list every discovered tool.

Examples:
  toolmux tools
  toolmux tools --server filesystem
  toolmux tools --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, server)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "only show tools owned by this server")
	return cmd
}

func runTools(cmd *cobra.Command, server string) error {
	logger := newLogger()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	reg := connectFleet(cmd.Context(), logger, cfg)
	defer reg.Close()

	catalog := reg.Catalog()
	if server != "" {
		filtered := catalog[:0]
		for _, tool := range catalog {
			if tool.Server == server {
				filtered = append(filtered, tool)
			}
		}
		catalog = filtered
	}

	if flagJSON {
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(catalog) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	fmt.Println(Header.Render(fmt.Sprintf("Tools (%d)", len(catalog))))
	fmt.Println()
	for _, tool := range catalog {
		fmt.Printf("  %s %s\n", tool.Name, Muted.Render("("+tool.Server+")"))
		if tool.Description != "" {
			for _, line := range strings.Split(wrapText(truncate(tool.Description, 200), 70), "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
	}
	return nil
}
