package fabric

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlds-storage/nlds/core"
)

// RPCClient implements the synchronous request/reply channel of spec §4.10:
// a reply queue per call, a correlation id echoed by the receiver, and a
// configured time limit. Grounded on the teacher's context.WithTimeout use
// in transfers/stages.go's DispatchToProvider.
type RPCClient struct {
	broker     *Broker
	replyQueue string
	timeLimit  time.Duration

	mu      sync.Mutex
	waiting map[string]chan core.Envelope
}

// NewRPCClient declares an exclusive reply queue named replyQueue (the
// caller picks a unique name per client instance, e.g. one per API
// process) and starts listening on it for replies.
func NewRPCClient(broker *Broker, replyQueue string, timeLimit time.Duration) (*RPCClient, error) {
	if err := broker.DeclareQueue(replyQueue, []Binding{{RoutingKey: "*.*." + replyQueue}}, 64); err != nil {
		if _, already := err.(*AlreadyDeclaredError); !already {
			return nil, err
		}
	}
	c := &RPCClient{
		broker:     broker,
		replyQueue: replyQueue,
		timeLimit:  timeLimit,
		waiting:    make(map[string]chan core.Envelope),
	}
	deliveries, err := broker.Consume(replyQueue)
	if err != nil {
		return nil, err
	}
	go c.dispatchReplies(deliveries)
	return c, nil
}

func (c *RPCClient) dispatchReplies(deliveries <-chan Delivery) {
	for d := range deliveries {
		c.mu.Lock()
		ch, found := c.waiting[d.Envelope.Meta.CorrelationID]
		if found {
			delete(c.waiting, d.Envelope.Meta.CorrelationID)
		}
		c.mu.Unlock()
		if found {
			ch <- d.Envelope
		}
		d.Ack()
	}
}

// Call publishes req to target, blocking until a reply with the same
// correlation id arrives or the time limit (or ctx) expires. On timeout it
// returns *TimeoutError, matching spec §4.10's "504/503" boundary contract
// at the layer below the HTTP status mapping.
func (c *RPCClient) Call(ctx context.Context, target core.RoutingKey, req core.Envelope) (core.Envelope, error) {
	correlationID := uuid.NewString()
	req.RoutingKey = target
	req.Meta.CorrelationID = correlationID
	req.Meta.ReplyTo = c.replyQueue

	reply := make(chan core.Envelope, 1)
	c.mu.Lock()
	c.waiting[correlationID] = reply
	c.mu.Unlock()

	if err := c.broker.Publish(req, 0); err != nil {
		c.mu.Lock()
		delete(c.waiting, correlationID)
		c.mu.Unlock()
		return core.Envelope{}, err
	}

	timeout := c.timeLimit
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case env := <-reply:
		return env, nil
	case <-callCtx.Done():
		c.mu.Lock()
		delete(c.waiting, correlationID)
		c.mu.Unlock()
		return core.Envelope{}, &TimeoutError{CorrelationID: correlationID}
	}
}

// RPCServer answers RPC requests delivered to queueName by invoking respond
// and publishing its result back to the envelope's reply-to target with the
// same correlation id. respond may short-circuit on core.Envelope.IsSystemStat
// to implement the status-dashboard ping described in spec §4.10.
type RPCServer struct {
	broker *Broker
	queue  string
	log    *slog.Logger
}

// NewRPCServer wires a responder onto queueName. respond receives the
// request envelope and returns the reply envelope's Data/Details (its
// RoutingKey is overwritten to route to the caller's reply queue).
func NewRPCServer(broker *Broker, queueName string, log *slog.Logger) *RPCServer {
	if log == nil {
		log = slog.Default()
	}
	return &RPCServer{broker: broker, queue: queueName, log: log}
}

// Serve runs the responder loop until stop is closed.
func (s *RPCServer) Serve(respond func(core.Envelope) core.Envelope, stop <-chan struct{}) error {
	deliveries, err := s.broker.Consume(s.queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-stop:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			reply := respond(d.Envelope)
			reply.Meta.CorrelationID = d.Envelope.Meta.CorrelationID
			reply.RoutingKey = core.RoutingKey{
				Application: d.Envelope.RoutingKey.Application,
				Worker:      "rpc",
				State:       d.Envelope.Meta.ReplyTo,
			}
			if err := s.broker.Publish(reply, 0); err != nil {
				s.log.Error("RPC reply publish failed", "error", err)
			}
			d.Ack()
		}
	}
}
