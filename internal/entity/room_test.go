package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoom_CanEnter(t *testing.T) {
	private := &Room{ID: "r1", CreatedBy: "alice", IsPublic: false, Members: []string{"alice", "carol"}}
	public := &Room{ID: "r2", CreatedBy: "alice", IsPublic: true}

	assert.True(t, private.CanEnter("alice"))
	assert.True(t, private.CanEnter("carol"))
	assert.False(t, private.CanEnter("bob"))
	assert.True(t, public.CanEnter("bob"))
}
