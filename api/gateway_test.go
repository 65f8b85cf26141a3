package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/fabric"
)

func newTestGateway(t *testing.T) (*Gateway, *fabric.Broker) {
	broker := fabric.NewBroker(nil)
	require.NoError(t, broker.DeclareQueue("nlds", []fabric.Binding{
		{RoutingKey: "nlds-api.route.*"},
	}, 1))
	gw, err := NewGateway(broker, nil, time.Second)
	require.NoError(t, err)
	return gw, broker
}

func TestPutPublishesRouteMessage(t *testing.T) {
	gw, broker := newTestGateway(t)
	txID, err := gw.Put(PutRequest{Token: "tok", Group: "workshop", Paths: []string{"/data/a.dat"}})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	depth, err := broker.QueueDepth("nlds")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestPutHonoursSuppliedTransactionID(t *testing.T) {
	gw, _ := newTestGateway(t)
	txID, err := gw.Put(PutRequest{Token: "tok", Group: "workshop", TransactionID: "fixed-id"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", txID)
}

func TestGetPublishesRouteMessage(t *testing.T) {
	gw, broker := newTestGateway(t)
	_, err := gw.Get(GetRequest{Token: "tok", Group: "workshop", OriginalPaths: []string{"/data/a.dat"}})
	require.NoError(t, err)

	depth, err := broker.QueueDepth("nlds")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestDelPublishesRouteMessage(t *testing.T) {
	gw, broker := newTestGateway(t)
	err := gw.Del(DelRequest{Token: "tok", Group: "workshop", TransactionID: "tx-1", Paths: []string{"/data/a.dat"}})
	require.NoError(t, err)

	depth, err := broker.QueueDepth("nlds")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestStatTimesOutWithoutAQueryResponder(t *testing.T) {
	broker := fabric.NewBroker(nil)
	require.NoError(t, broker.DeclareQueue("query", []fabric.Binding{
		{RoutingKey: "*.query.*"},
	}, 1))
	gw, err := NewGateway(broker, nil, 30*time.Millisecond)
	require.NoError(t, err)

	_, err = gw.Stat(context.Background(), "tok", "tx-1")
	assert.Error(t, err)
}
