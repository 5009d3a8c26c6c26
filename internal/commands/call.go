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
	"time"

	"github.com/spf13/cobra"
)

// newCallCommand creates the 'call' command.
func newCallCommand() *cobra.Command {
	var argPairs []string
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool from the catalog",
		Long: `Invoke a tool on whichever server owns it.

Arguments are given as repeated --arg key=value pairs, or as a single
JSON object with --args-json.

Examples:
  toolmux call read_file --arg path=/etc/hosts
  toolmux call search --args-json '{"query":"tls", "limit": 5}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := buildArguments(argPairs, argsJSON)
			if err != nil {
				return err
			}
			return runCall(cmd, args[0], arguments)
		},
	}

	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "tool argument as key=value (repeatable)")
	cmd.Flags().StringVar(&argsJSON, "args-json", "", "tool arguments as a JSON object")
	return cmd
}

// buildArguments merges --args-json with --arg overrides.
func buildArguments(pairs []string, argsJSON string) (map[string]any, error) {
	arguments := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
			return nil, fmt.Errorf("invalid --args-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", pair)
		}
		arguments[key] = value
	}
	return arguments, nil
}

func runCall(cmd *cobra.Command, tool string, arguments map[string]any) error {
	logger := newLogger()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	reg := connectFleet(cmd.Context(), logger, cfg)
	defer reg.Close()

	inv := reg.Invoke(cmd.Context(), tool, arguments)

	if flagJSON {
		data, err := json.MarshalIndent(inv, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if !inv.OK {
			return fmt.Errorf("tool %s failed", tool)
		}
		return nil
	}

	if !inv.OK {
		fmt.Println(RenderError(fmt.Sprintf("%s: %s", inv.ErrCode, inv.Err)))
		return fmt.Errorf("tool %s failed", tool)
	}

	fmt.Println(RenderOK(fmt.Sprintf("%s via %s (%s)", tool, inv.Server, inv.Duration.Round(time.Millisecond))))
	switch {
	case inv.Text != "":
		fmt.Println(inv.Text)
	case len(inv.Content) > 0:
		data, _ := json.MarshalIndent(inv.Content, "", "  ")
		fmt.Println(string(data))
	}
	if len(inv.Structured) > 0 {
		fmt.Println(string(inv.Structured))
	}
	return nil
}
