package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

func graphDescriptor(t *testing.T, query string) tool.CanonicalToolDescriptor {
	t.Helper()
	payload, err := json.Marshal(graphPayload{Query: query})
	require.NoError(t, err)
	return tool.CanonicalToolDescriptor{
		ProviderKind:    tool.ProviderGraph,
		SourceID:        "src_graph",
		ToolID:          "user_by_id",
		Name:            "User by id",
		InvocationMode:  tool.ModeRead,
		Availability:    tool.AvailabilityEnabled,
		ProviderPayload: payload,
	}
}

// TestGraphProvider_VariablesFromArgs tests that call arguments travel as
// query variables and data is unwrapped from the envelope.
func TestGraphProvider_VariablesFromArgs(t *testing.T) {
	var gotRequest graphRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotRequest)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"user":{"id":"u1","name":"ada"}}}`))
	}))
	defer server.Close()

	provider := NewGraphProvider(nil)
	source := tool.Source{Kind: tool.ProviderGraph, BaseURL: server.URL}
	query := "query ($id: ID!) { user(id: $id) { id name } }"

	result, err := provider.Invoke(context.Background(), source, graphDescriptor(t, query), map[string]any{"id": "u1"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, query, gotRequest.Query)
	assert.Equal(t, "u1", gotRequest.Variables["id"])

	data, ok := result.Output.(map[string]any)
	require.True(t, ok)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", user["name"])
}

// TestGraphProvider_ErrorsEnvelope tests that GraphQL errors become an
// error result with the messages collected.
func TestGraphProvider_ErrorsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":null,"errors":[{"message":"user not found"}]}`))
	}))
	defer server.Close()

	provider := NewGraphProvider(nil)
	source := tool.Source{Kind: tool.ProviderGraph, BaseURL: server.URL}

	result, err := provider.Invoke(context.Background(), source, graphDescriptor(t, "query { user { id } }"), nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, []string{"user not found"}, result.Output)
}

// TestGraphProvider_MissingQuery tests payload validation.
func TestGraphProvider_MissingQuery(t *testing.T) {
	provider := NewGraphProvider(nil)
	_, err := provider.Invoke(context.Background(), tool.Source{BaseURL: "http://localhost"}, graphDescriptor(t, ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no query")
}
