package main

import (
	"github.com/nlds-storage/nlds/config"
	"github.com/nlds-storage/nlds/fabric"
)

// queueNames lists every queue the marshaller's transition table can
// address, in the order spec §4.1's table lists them. declareQueues
// registers each with its fixed binding set, unless the operator has
// overridden fabric.queues in the config file.
var queueNames = []string{
	"nlds",
	"index",
	"catalog",
	"transfer-put",
	"transfer-get",
	"archive-put",
	"archive-get",
	"monitor",
	"logging",
}

// defaultBindings is spec §4.1's exact stage-queue binding table.
var defaultBindings = map[string][]string{
	"nlds": {
		"nlds-api.route.*",
		"nlds-api.*.complete",
		"nlds-api.*.reroute",
		"nlds-api.*.failed",
	},
	"index": {
		"#.index.init",
		"#.index.start",
	},
	"catalog": {
		"*.catalog-put.start",
		"*.catalog-get.start",
		"*.catalog-del.start",
		"*.catalog-archive-next.start",
		"*.catalog-archive-update.start",
		"*.catalog-archive-del.start",
		"*.catalog-remove.start",
		"*.catalog-update.start",
	},
	"transfer-put": {
		"*.transfer-put.start",
	},
	"transfer-get": {
		"*.transfer-get.init",
		"*.transfer-get.start",
	},
	"archive-put": {
		"*.archive-put.init",
		"*.archive-put.start",
	},
	"archive-get": {
		"*.archive-get.prepare",
		"*.archive-get.prepare-check",
		"*.archive-get.start",
	},
	"monitor": {
		"*.monitor-put.start",
		"*.monitor-get.start",
	},
	"logging": {
		"*.log.*",
	},
}

// defaultPrefetch matches spec §5's "catalog consumers run with prefetch=1"
// requirement; every other queue also defaults to 1 unless overridden.
const defaultPrefetch = 1

// queryQueueName is the RPC-served queue api.Gateway's synchronous query
// endpoints (ListHoldings/FindFiles/Stat/Quota/SystemStatus, spec §4.10)
// address. It is declared and served separately from queueNames because it
// answers through fabric.RPCServer rather than fabric.RunConsumer.
const queryQueueName = "query"

func declareQueryQueue(broker *fabric.Broker) error {
	return broker.DeclareQueue(queryQueueName, []fabric.Binding{
		{Exchange: config.Fabric.Exchange.Name, RoutingKey: "*.query.*"},
	}, defaultPrefetch)
}

func declareQueues(broker *fabric.Broker) error {
	declared := map[string]bool{}

	// An operator may fully override the binding table via fabric.queues in
	// the config file; config.Fabric.Queues' element type is private to
	// package config, but its fields (Name, Bindings, Prefetch) are
	// exported, so a plain range over it works without naming the type.
	for _, q := range config.Fabric.Queues {
		bindings := make([]fabric.Binding, 0, len(q.Bindings))
		for _, b := range q.Bindings {
			bindings = append(bindings, fabric.Binding{Exchange: b.Exchange, RoutingKey: b.RoutingKey})
		}
		prefetch := q.Prefetch
		if prefetch <= 0 {
			prefetch = defaultPrefetch
		}
		if err := broker.DeclareQueue(q.Name, bindings, prefetch); err != nil {
			return err
		}
		declared[q.Name] = true
	}

	for _, name := range queueNames {
		if declared[name] {
			continue
		}
		bindings := make([]fabric.Binding, 0, len(defaultBindings[name]))
		for _, pattern := range defaultBindings[name] {
			bindings = append(bindings, fabric.Binding{Exchange: config.Fabric.Exchange.Name, RoutingKey: pattern})
		}
		if err := broker.DeclareQueue(name, bindings, defaultPrefetch); err != nil {
			return err
		}
	}
	return nil
}
