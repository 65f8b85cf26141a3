package marshaller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlds-storage/nlds/core"
)

func env(worker, state string, filelist []core.PathDetails) core.Envelope {
	return core.Envelope{
		RoutingKey: core.RoutingKey{Application: "nlds-api", Worker: worker, State: state},
		Data:       core.Data{Filelist: filelist},
	}
}

func TestRoutePutGoesToIndexInit(t *testing.T) {
	out, ok := Next(env("route", "put", nil))
	assert.True(t, ok)
	assert.Equal(t, "index", out.RoutingKey.Worker)
	assert.Equal(t, "init", out.RoutingKey.State)
}

func TestTransferPutCompleteGoesToCatalogUpdate(t *testing.T) {
	out, ok := Next(env("transfer-put", "complete", nil))
	assert.True(t, ok)
	assert.Equal(t, "catalog-update", out.RoutingKey.Worker)
}

func TestTransferPutFailedGoesToCatalogDel(t *testing.T) {
	permanentlyFailed := core.PathDetails{Retries: 5}
	permanentlyFailed.Fail("exceeded max_retries")
	out, ok := Next(env("transfer-put", "failed", []core.PathDetails{permanentlyFailed}))
	assert.True(t, ok)
	assert.Equal(t, "catalog-del", out.RoutingKey.Worker)
}

func TestTransferGetFailedGoesToMonitorGetFailed(t *testing.T) {
	permanentlyFailed := core.PathDetails{Retries: 5}
	permanentlyFailed.Fail("exceeded max_retries")
	out, ok := Next(env("transfer-get", "failed", []core.PathDetails{permanentlyFailed}))
	assert.True(t, ok)
	assert.Equal(t, "monitor-get", out.RoutingKey.Worker)
	assert.Equal(t, "failed", out.RoutingKey.State)
}

func TestCatalogGetFailedFallsBackToMonitorGetFailed(t *testing.T) {
	permanentlyFailed := core.PathDetails{}
	permanentlyFailed.Fail("no such holding")
	out, ok := Next(env("catalog-get", "failed", []core.PathDetails{permanentlyFailed}))
	assert.True(t, ok)
	assert.Equal(t, "monitor-get", out.RoutingKey.Worker)
	assert.Equal(t, "failed", out.RoutingKey.State)
}

func TestApplicationSegmentIsEchoedVerbatim(t *testing.T) {
	out, ok := Next(env("route", "put", nil))
	assert.True(t, ok)
	assert.Equal(t, "nlds-api", out.RoutingKey.Application)
}

func TestUnrecoverableFailedGoesToMonitorFailed(t *testing.T) {
	failedFile := core.PathDetails{OriginalPath: "a.txt"}
	failedFile.Fail("file not found")
	out, ok := Next(env("index", "failed", []core.PathDetails{failedFile}))
	assert.True(t, ok)
	assert.Equal(t, "monitor-put", out.RoutingKey.Worker)
	assert.Equal(t, "failed", out.RoutingKey.State)
}

func TestUnknownTriggerProducesNoPublication(t *testing.T) {
	_, ok := Next(env("nonsense", "start", nil))
	assert.False(t, ok)
}
