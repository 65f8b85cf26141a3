// These tests verify that the core utilities work properly.
package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testConfig = []byte(`
general:
  retry_delays: [0, 30000, 60000, 3600000, 86400000, 432000000]
  max_retries: 5
fabric:
  exchange:
    name: nlds
index_q:
  filelist_max_length: 1000
catalog_q:
  db_engine: sqlite
monitor_q:
  db_engine: sqlite
`)

// Tests whether core.Init works once.
func TestInitOnce(t *testing.T) {
	err := Init(testConfig)
	assert.Nil(t, err, "core.Init Failed!")
}

// Tests whether core.Init works twice in a row.
func TestInitTwice(t *testing.T) {
	for i := 0; i < 2; i++ {
		err := Init(testConfig)
		assert.Nil(t, err, "core.Init Failed!")
	}
}

// Tests whether core.Uptime() returns a positive time duration.
func TestUptime(t *testing.T) {
	Init(testConfig)
	uptime := Uptime()
	assert.GreaterOrEqual(t, uptime, 0.0, "Uptime is negative.")
}
