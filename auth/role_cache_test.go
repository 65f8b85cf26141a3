package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCacheSetThenGet(t *testing.T) {
	c := NewRoleCache()
	assert.NoError(t, c.Set("workshop", "jcarberry", RoleManager))

	role, err := c.Get("workshop", "jcarberry")
	assert.NoError(t, err)
	assert.Equal(t, RoleManager, role)
}

func TestRoleCacheGetMissReturnsError(t *testing.T) {
	c := NewRoleCache()
	_, err := c.Get("workshop", "unknown")
	assert.Error(t, err)
}

func TestRoleCacheScopesByGroup(t *testing.T) {
	c := NewRoleCache()
	assert.NoError(t, c.Set("groupA", "p", RoleManager))
	assert.NoError(t, c.Set("groupB", "p", RoleUser))

	role, err := c.Get("groupA", "p")
	assert.NoError(t, err)
	assert.Equal(t, RoleManager, role)

	role, err = c.Get("groupB", "p")
	assert.NoError(t, err)
	assert.Equal(t, RoleUser, role)
}
