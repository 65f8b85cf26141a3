package config

// These tests verify that we can properly configure the NLDS service with
// YAML input.
import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// a minimal, valid fabric config entry
const VALID_FABRIC string = `
fabric:
  server: ${NLDS_RABBIT_SERVER}
  user: ${NLDS_RABBIT_USER}
  password: ${NLDS_RABBIT_PASSWORD}
  exchange:
    name: nlds
    type: topic
`

// a minimal, valid index_q config entry
const VALID_INDEX_Q string = `
index_q:
  filelist_max_length: 1000
`

// tests whether config.Init reports an error for blank input
func TestInitRejectsBlankInputConfig(t *testing.T) {
	b := []byte("")
	err := Init(b)
	assert.NotNil(t, err, "Blank config didn't trigger an error.")
}

// tests whether config.Init reports an error for a non-positive max_retries
func TestInitRejectsBadMaxRetries(t *testing.T) {
	yaml := "general:\n  max_retries: 0\n\n" + VALID_FABRIC + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.NotNil(t, err, "Config with bad max_retries didn't trigger an error.")
}

// tests whether config.Init reports an error for an empty retry_delays table
func TestInitRejectsEmptyRetryDelays(t *testing.T) {
	yaml := "general:\n  retry_delays: []\n\n" + VALID_FABRIC + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.NotNil(t, err, "Config with empty retry_delays didn't trigger an error.")
}

// tests whether config.Init rejects a fabric config with no exchange name
func TestInitRejectsNoExchangeName(t *testing.T) {
	yaml := "fabric:\n  exchange:\n    type: topic\n\n" + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.NotNil(t, err, "Config with no exchange name didn't trigger an error.")
}

// tests whether config.Init rejects a bad filelist_max_length
func TestInitRejectsBadFilelistMaxLength(t *testing.T) {
	yaml := VALID_FABRIC + "index_q:\n  filelist_max_length: 0\n"
	b := []byte(yaml)
	err := Init(b)
	assert.NotNil(t, err, "Config with bad filelist_max_length didn't trigger an error.")
}

// Tests whether config.Init returns no error for a configuration that is
// (ostensibly) valid and relies on the built-in defaults for everything else.
func TestInitAcceptsValidInputConfig(t *testing.T) {
	yaml := VALID_FABRIC + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.Nil(t, err, fmt.Sprintf("Valid YAML input produced an error: %s", err))
}

// Tests whether config.Init properly initializes its globals for valid input.
func TestInitProperlySetsGlobals(t *testing.T) {
	yaml := VALID_FABRIC + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.Nil(t, err, fmt.Sprintf("Valid YAML input produced an error: %s", err))

	assert.Equal(t, "nlds", Fabric.Exchange.Name)
	assert.Equal(t, "topic", Fabric.Exchange.Type)
	assert.Equal(t, 1000, IndexQ.FilelistMaxLength)
	assert.Equal(t, 5, General.MaxRetries)
	assert.Equal(t, "sqlite", CatalogQ.DBEngine)
}

// Tests that defaults are populated even when a section is omitted entirely.
func TestInitFillsInDefaults(t *testing.T) {
	yaml := VALID_FABRIC + VALID_INDEX_Q
	b := []byte(yaml)
	err := Init(b)
	assert.Nil(t, err)
	assert.Equal(t, []int{0, 30000, 60000, 3600000, 86400000, 432000000}, General.RetryDelays)
	assert.Equal(t, int64(5*1024*1024), ArchivePutQ.ChunkSize)
	assert.True(t, ArchiveGetQ.FullUnpack)
}

// this function gets called at the beginning of a test session
func setup() {
}

// this function gets called after all tests have been run
func breakdown() {
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}
