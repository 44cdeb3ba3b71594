package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
)

// TestBroadcaster_ForwardsApprovalToConnectedReviewers tests the fan-out
// of a pending record to a websocket client.
func TestBroadcaster_ForwardsApprovalToConnectedReviewers(t *testing.T) {
	broadcaster := NewBroadcaster()
	defer broadcaster.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broadcaster.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a beat to register the connection.
	time.Sleep(50 * time.Millisecond)

	record := &approval.Record{
		ID:       "apr_1",
		CallID:   "call_1",
		ToolPath: "payments.send",
		Status:   approval.StatusPending,
	}
	require.NoError(t, broadcaster.ForwardApproval(context.Background(), record))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "approval_request", msg.Event)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var got approval.Record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "apr_1", got.ID)
	assert.Equal(t, "payments.send", got.ToolPath)
}
