package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKind(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{name: "request", body: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, want: KindRequest},
		{name: "response result", body: `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`, want: KindResponse},
		{name: "response null result", body: `{"jsonrpc":"2.0","id":3,"result":null}`, want: KindResponse},
		{name: "response error", body: `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"method not found"}}`, want: KindResponse},
		{name: "notification", body: `{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`, want: KindNotification},
		{name: "bare object", body: `{"jsonrpc":"2.0"}`, want: KindInvalid},
		{name: "id without result or error", body: `{"jsonrpc":"2.0","id":9}`, want: KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Kind())
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":`))
	assert.Error(t, err)
}

func TestNewRequest(t *testing.T) {
	m, err := NewRequest(5, "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)

	require.NotNil(t, m.ID)
	assert.Equal(t, int64(5), *m.ID)
	assert.Equal(t, Version, m.JSONRPC)
	assert.Equal(t, KindRequest, m.Kind())
	assert.JSONEq(t, `{"name":"echo"}`, string(m.Params))
}

func TestNewRequestNilParams(t *testing.T) {
	m, err := NewRequest(1, "tools/list", nil)
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "params")
}

func TestNewNotification(t *testing.T) {
	m, err := NewNotification("notifications/initialized", nil)
	require.NoError(t, err)
	assert.Nil(t, m.ID)
	assert.Equal(t, KindNotification, m.Kind())
}

func TestErrorString(t *testing.T) {
	e := &Error{Code: CodeMethodNotFound, Message: "method not found"}
	assert.Equal(t, "method not found (code -32601)", e.Error())

	e.Data = json.RawMessage(`{"method":"x"}`)
	assert.Contains(t, e.Error(), `data {"method":"x"}`)
}
