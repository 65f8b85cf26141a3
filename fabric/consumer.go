package fabric

import (
	"log/slog"
	"time"

	"github.com/nlds-storage/nlds/core"
)

// Handler processes one inbound envelope and returns zero or more outbound
// envelopes to publish, each with its own delay. A non-nil error causes the
// delivery to be classified (core.Classify), logged and nacked: retryable
// errors are requeued at once, with no back-off delay; non-retryable ones
// are dropped.
type Handler func(core.Envelope) ([]Publication, error)

// Publication pairs an outbound envelope with the delay before it should be
// routed (spec §4.1's delayed-delivery contract).
type Publication struct {
	Envelope core.Envelope
	Delay    time.Duration
}

// RunConsumer starts a single-threaded worker loop against queueName: block
// on receive, invoke handler, publish its results, ack, loop — the same
// "parallel workers, each internally single-threaded" shape spec §5
// requires, and the same blocking-receive-then-select shape as the
// teacher's tasks.processTasks. It runs until stop is closed.
func RunConsumer(broker *Broker, queueName string, handler Handler, log *slog.Logger, stop <-chan struct{}) error {
	deliveries, err := broker.Consume(queueName)
	if err != nil {
		return err
	}
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-stop:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			pubs, err := handler(d.Envelope)
			if err != nil {
				class := core.Classify(err)
				log.Error("handler failed", "queue", queueName, "error", err, "class", class.String())
				d.Nack(class.Retryable())
				continue
			}
			for _, p := range pubs {
				if err := broker.Publish(p.Envelope, p.Delay); err != nil {
					log.Error("publish failed", "queue", queueName, "error", err)
				}
			}
			d.Ack()
		}
	}
}
