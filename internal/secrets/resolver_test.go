package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver()
	r.Set("acme_api", map[string]string{"Authorization": "Bearer sk-test"})

	t.Run("known key", func(t *testing.T) {
		values, err := r.Resolve(context.Background(), Request{SourceKey: "acme_api"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer sk-test", values["Authorization"])
	})

	t.Run("unknown key yields nil", func(t *testing.T) {
		values, err := r.Resolve(context.Background(), Request{SourceKey: "ghost"})
		require.NoError(t, err)
		assert.Nil(t, values)
	})

	t.Run("resolved values are copies", func(t *testing.T) {
		values, err := r.Resolve(context.Background(), Request{SourceKey: "acme_api"})
		require.NoError(t, err)
		values["Authorization"] = "tampered"

		again, err := r.Resolve(context.Background(), Request{SourceKey: "acme_api"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer sk-test", again["Authorization"])
	})
}
