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

	"github.com/spf13/cobra"
)

// newStatusCommand creates the 'status' command.
func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every configured server",
		Long: `Connect to the configured servers and report each connection state.

Examples:
  toolmux status
  toolmux status --json`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	reg := connectFleet(cmd.Context(), logger, cfg)
	defer reg.Close()

	statuses := reg.Status()
	summary := reg.Summary()

	if flagJSON {
		out := struct {
			Servers any `json:"servers"`
			Summary any `json:"summary"`
		}{statuses, summary}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(Header.Render("Servers"))
	fmt.Println(Muted.Render("config: " + path))
	fmt.Println()

	if len(statuses) == 0 {
		fmt.Println("No servers connected.")
	}
	for _, st := range statuses {
		fmt.Printf("  %-20s %-14s %d tools\n", st.Name, renderState(string(st.State)), st.ToolCount)
	}

	// Servers that failed to spawn never make it into the registry; show
	// them so the status is not silently incomplete.
	for _, desc := range cfg.Descriptors() {
		if reg.Conn(desc.Name) == nil {
			fmt.Printf("  %-20s %s\n", desc.Name, StatusError.Render("unreachable"))
		}
	}

	fmt.Println()
	fmt.Printf("%d configured, %d ready\n", len(cfg.Descriptors()), summary.Ready)
	return nil
}
