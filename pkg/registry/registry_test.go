package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CallTool(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	out, err := r.CallTool(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.CallTool(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestDemoTools(t *testing.T) {
	r := registry.NewDemo()
	assert.Len(t, r.Names(), 8)

	raw, err := r.CallTool(context.Background(), domain.ToolFindStopPlacesByName, map[string]any{"query": "Zurich"})
	require.NoError(t, err)
	env, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, env["content"].([]any)[0].(map[string]any)["text"], "8503000")

	_, err = r.CallTool(context.Background(), domain.ToolFindTrips, map[string]any{"origin": "Zurich"})
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.Status)
}
