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

package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolmux/toolmux/internal/wire"
)

// TestConcurrentCallAndClose hammers a connection with calls while closing
// it, to verify settlement stays exactly-once under contention.
func TestConcurrentCallAndClose(t *testing.T) {
	conn, _ := newTestConn(t, Options{Timeout: time.Second},
		listToolsResponder(`[]`, func(msg *wire.Message) *wire.Message {
			return resultMsg(*msg.ID, `{}`)
		}))
	require.NoError(t, conn.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Either a result or a connection-closed error is fine; a hang
			// or double settlement is not.
			_, _ = conn.Call(context.Background(), "echo", nil)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		_ = conn.Close()
	}()

	wg.Wait()
}

// TestConcurrentStateReads verifies state accessors are safe against the
// read loop and closers.
func TestConcurrentStateReads(t *testing.T) {
	conn, _ := newTestConn(t, Options{Timeout: time.Second}, listToolsResponder(`[]`, nil))
	require.NoError(t, conn.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.State()
			_ = conn.Ready()
			_ = conn.Tools()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = conn.Close()
	}()
	wg.Wait()
}
