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

import "testing"

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"empty", "", 10, ""},
		{"fits", "short text", 20, "short text"},
		{"wraps on word boundary", "one two three four", 9, "one two\nthree\nfour"},
		{"zero width is passthrough", "anything at all", 0, "anything at all"},
		{"long word overflows its line", "a veryverylongword b", 6, "a\nveryverylongword\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapText(tt.text, tt.width); got != tt.want {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"abc", 3, "abc"},
		{"abcdef", 2, "ab"},
	}

	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestBuildArguments(t *testing.T) {
	args, err := buildArguments([]string{"path=/etc/hosts", "mode=fast"}, `{"limit": 5, "mode": "slow"}`)
	if err != nil {
		t.Fatalf("buildArguments: %v", err)
	}
	if args["path"] != "/etc/hosts" {
		t.Errorf("path = %v", args["path"])
	}
	// --arg overrides --args-json.
	if args["mode"] != "fast" {
		t.Errorf("mode = %v, want 'fast'", args["mode"])
	}
	if args["limit"] != float64(5) {
		t.Errorf("limit = %v", args["limit"])
	}

	if _, err := buildArguments([]string{"noequals"}, ""); err == nil {
		t.Error("expected error for malformed --arg")
	}
	if _, err := buildArguments(nil, "{bad json"); err == nil {
		t.Error("expected error for malformed --args-json")
	}
}
