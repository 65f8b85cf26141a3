package auth

import "fmt"

// RoleCache maintains a (group, principal) -> Role mapping behind its own
// goroutine, generalising the teacher's kbaseUserFederation (an ORCID ->
// username map fielding requests over channels) into a role cache so a
// RoleOf lookup never blocks on a concurrent write.
type RoleCache struct {
	setChan   chan roleCacheSet
	getChan   chan roleCacheGet
	errorChan chan error
	roleChan  chan Role
}

type roleCacheSet struct {
	group, principal string
	role             Role
}

type roleCacheGet struct {
	group, principal string
}

// NewRoleCache starts the cache's goroutine and returns a handle to it.
func NewRoleCache() *RoleCache {
	c := &RoleCache{
		setChan:   make(chan roleCacheSet, 32),
		getChan:   make(chan roleCacheGet, 32),
		errorChan: make(chan error, 32),
		roleChan:  make(chan Role, 32),
	}
	go c.run()
	return c
}

func (c *RoleCache) run() {
	table := make(map[string]Role)
	key := func(group, principal string) string { return group + ":" + principal }

	for {
		select {
		case set := <-c.setChan:
			table[key(set.group, set.principal)] = set.role
			c.errorChan <- nil
		case get := <-c.getChan:
			if role, found := table[key(get.group, get.principal)]; found {
				c.roleChan <- role
			} else {
				c.errorChan <- fmt.Errorf("no cached role for %s in group %s", get.principal, get.group)
			}
		}
	}
}

// Set records principal's role within group.
func (c *RoleCache) Set(group, principal string, role Role) error {
	c.setChan <- roleCacheSet{group: group, principal: principal, role: role}
	return <-c.errorChan
}

// Get returns principal's cached role within group, if any.
func (c *RoleCache) Get(group, principal string) (Role, error) {
	c.getChan <- roleCacheGet{group: group, principal: principal}
	select {
	case role := <-c.roleChan:
		return role, nil
	case err := <-c.errorChan:
		return "", err
	}
}
