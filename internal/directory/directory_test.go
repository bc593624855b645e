package directory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/model"
	"github.com/lowks/discovery/internal/ring"
)

func newDirectory() *Directory {
	return New(50, zap.NewNop())
}

func TestAdd_And_FindProvider(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))

	node, err := d.FindProvider("cache", ring.Sum64("some-key"))
	require.NoError(t, err)
	assert.Equal(t, model.NodeID("nodeA"), node)
	assert.True(t, d.HasNode("nodeA"))
}

func TestAdd_InvalidArguments(t *testing.T) {
	d := newDirectory()

	assert.ErrorIs(t, d.Add("", "cache"), model.ErrInvalidArgument)
	assert.ErrorIs(t, d.Add("nodeA", ""), model.ErrInvalidArgument)
	assert.ErrorIs(t, d.Add("nodeA", "no spaces allowed"), model.ErrInvalidArgument)

	nodes, services := d.Stats()
	assert.Equal(t, 0, nodes)
	assert.Equal(t, 0, services)
}

func TestAdd_DuplicatePairIsNoop(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))
	require.NoError(t, d.Add("nodeA", "cache"))

	assert.Equal(t, map[model.NodeID][]string{"nodeA": {"cache"}}, d.ListNodes())
}

func TestAdd_MultipleServicesPerNode(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))
	require.NoError(t, d.Add("nodeA", "queue"))

	assert.Equal(t, []string{"cache", "queue"}, d.Services("nodeA"))

	services := d.ListServices()
	assert.Equal(t, []model.NodeID{"nodeA"}, services["cache"])
	assert.Equal(t, []model.NodeID{"nodeA"}, services["queue"])
}

func TestFindProvider_UnknownService(t *testing.T) {
	d := newDirectory()

	_, err := d.FindProvider("nope", 42)
	assert.ErrorIs(t, err, model.ErrNoServers)
}

func TestDrop_RemovesNodeEverywhere(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))
	require.NoError(t, d.Add("nodeB", "cache"))
	require.NoError(t, d.Add("nodeA", "queue"))

	d.Drop("nodeA")

	assert.False(t, d.HasNode("nodeA"))
	assert.Nil(t, d.Services("nodeA"))

	// cache keeps its surviving provider; queue lost its only one.
	node, err := d.FindProvider("cache", ring.Sum64("key"))
	require.NoError(t, err)
	assert.Equal(t, model.NodeID("nodeB"), node)

	_, err = d.FindProvider("queue", ring.Sum64("key"))
	assert.ErrorIs(t, err, model.ErrNoServers)

	_, ok := d.ListServices()["queue"]
	assert.False(t, ok)
}

func TestDrop_UnknownNodeIsNoop(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))

	d.Drop("ghost")
	d.Drop("ghost")

	assert.True(t, d.HasNode("nodeA"))
}

func TestDrop_LastProviderTearsDownService(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))

	d.Drop("nodeA")

	for i := 0; i < 50; i++ {
		_, err := d.FindProvider("cache", ring.Sum64(fmt.Sprintf("key-%d", i)))
		assert.ErrorIs(t, err, model.ErrNoServers)
	}
	assert.Empty(t, d.ListServices())
	assert.Empty(t, d.ListNodes())
}

// TestIndexConsistency walks a sequence of adds and drops and asserts the
// node index, service index and rings agree at every step.
func TestIndexConsistency(t *testing.T) {
	d := newDirectory()

	check := func() {
		nodes := d.ListNodes()
		services := d.ListServices()

		for node, offered := range nodes {
			for _, service := range offered {
				assert.Contains(t, services[service], node)

				// The ring must be able to route to the node for some
				// hash: probe its own placement labels.
				found := false
				for i := 0; i < 50 && !found; i++ {
					got, err := d.FindProvider(service, ring.Sum64(fmt.Sprintf("%s-%d", node, i)))
					require.NoError(t, err)
					found = got == node
				}
				assert.True(t, found, "ring for %s cannot route to %s", service, node)
			}
		}
		for service, providers := range services {
			for _, node := range providers {
				assert.Contains(t, nodes[node], service)
			}
		}
	}

	require.NoError(t, d.Add("nodeA", "cache"))
	check()
	require.NoError(t, d.Add("nodeB", "cache"))
	check()
	require.NoError(t, d.Add("nodeB", "queue"))
	check()
	require.NoError(t, d.Add("nodeC", "queue"))
	check()
	d.Drop("nodeB")
	check()
	d.Drop("nodeA")
	check()
	d.Drop("nodeC")
	check()
	assert.Empty(t, d.ListNodes())
}

func TestFindProvider_StableUntilMembershipChanges(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))
	require.NoError(t, d.Add("nodeB", "cache"))

	hash := ring.Sum64("pinned-key")
	first, err := d.FindProvider("cache", hash)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		got, err := d.FindProvider("cache", hash)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}

	d.Drop(first)

	got, err := d.FindProvider("cache", hash)
	require.NoError(t, err)
	assert.NotEqual(t, first, got)
}

func TestClear(t *testing.T) {
	d := newDirectory()
	require.NoError(t, d.Add("nodeA", "cache"))
	require.NoError(t, d.Add("nodeB", "queue"))

	d.Clear()

	nodes, services := d.Stats()
	assert.Equal(t, 0, nodes)
	assert.Equal(t, 0, services)
	_, err := d.FindProvider("cache", 1)
	assert.ErrorIs(t, err, model.ErrNoServers)
}
