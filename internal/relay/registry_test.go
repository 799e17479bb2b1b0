package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"carnetsante/internal/relay"
)

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	reg := relay.NewRegistry()

	c1 := relay.NewConnection(7, &fakeTransport{})
	c2 := relay.NewConnection(7, &fakeTransport{})
	reg.Register(c1)
	reg.Register(c2)

	assert.Len(t, reg.ConnectionsFor(7), 2)
	assert.NotEqual(t, c1.ID, c2.ID)

	last := reg.Unregister(c1)
	assert.False(t, last, "user still has a live connection")
	assert.Len(t, reg.ConnectionsFor(7), 1)

	last = reg.Unregister(c2)
	assert.True(t, last, "closing the last connection must report it")
	assert.Empty(t, reg.ConnectionsFor(7))
}

func TestRegistry_ConnectionsForUnknownUser(t *testing.T) {
	reg := relay.NewRegistry()

	// empty result, never an error: offline users just miss live delivery
	assert.Empty(t, reg.ConnectionsFor(999))
	assert.Equal(t, 0, reg.ConnectionCount(999))
}

func TestRegistry_UnregisterUnknownConnection(t *testing.T) {
	reg := relay.NewRegistry()
	c := relay.NewConnection(1, &fakeTransport{})

	assert.False(t, reg.Unregister(c))
}
