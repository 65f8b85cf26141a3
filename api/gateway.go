// Package api is the Go-level boundary an out-of-core HTTP layer would call
// (spec §4.10, §6): a thin Gateway that marshals a caller's request onto the
// fabric, either fire-and-forget for the write endpoints or as a blocking
// RPC for the synchronous query endpoints, with no net/http server and no
// OAuth handling of its own — that transport is explicitly not implemented
// here, consistent with the HTTP API being out of core scope. Grounded on
// the teacher's pattern of a thin client-facing struct wrapping the
// transport it talks over (here, fabric.Broker/fabric.RPCClient in place of
// an HTTP client).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nlds-storage/nlds/auth"
	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/fabric"
)

// Application is the routing-key Application segment every Gateway request
// carries, matching the literal "nlds-api.route.*" binding the marshaller's
// queue declares (cmd/nlds-server's defaultBindings) rather than a wildcard
// every API instance can pick for itself.
const Application = "nlds-api"

// Gateway implements spec §4.10's client-facing contract: Put/Get/Del are
// one-way publishes that the marshaller picks up; ListHoldings/FindFiles/
// Stat/Quota/SystemStatus are RPCClient.Call round trips.
type Gateway struct {
	broker *fabric.Broker
	rpc    *fabric.RPCClient
	auth   auth.Authenticator
}

// NewGateway declares this Gateway's private reply queue and starts
// listening for RPC replies. authenticator may be nil, defaulting to
// auth.DefaultAuthenticator per spec §4.4/§9.
func NewGateway(broker *fabric.Broker, authenticator auth.Authenticator, timeLimit time.Duration) (*Gateway, error) {
	if authenticator == nil {
		authenticator = auth.DefaultAuthenticator{}
	}
	replyQueue := Application + "-rpc-" + uuid.NewString()
	rpc, err := fabric.NewRPCClient(broker, replyQueue, timeLimit)
	if err != nil {
		return nil, fmt.Errorf("api: building RPC client: %w", err)
	}
	return &Gateway{broker: broker, rpc: rpc, auth: authenticator}, nil
}

// authenticate resolves token to a Principal and confirms it may act within
// group, mirroring spec §9's authenticate_token + authenticate_group pair.
func (g *Gateway) authenticate(token, group string) (auth.Principal, error) {
	principal, err := g.auth.AuthenticateToken(token)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("api: authenticating token: %w", err)
	}
	ok, err := g.auth.AuthenticateGroup(principal, group)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("api: authenticating group: %w", err)
	}
	if !ok {
		return auth.Principal{}, fmt.Errorf("api: %s is not a member of group %s", principal.Name, group)
	}
	principal.Group = group
	return principal, nil
}

func pathDetailsFrom(paths []string) []core.PathDetails {
	out := make([]core.PathDetails, len(paths))
	for i, p := range paths {
		out[i] = core.PathDetails{OriginalPath: p}
	}
	return out
}

//-----------
// PUT /files — write endpoint
//-----------

// PutRequest carries a put's query/body parameters (spec §6).
type PutRequest struct {
	Token, Group  string
	TransactionID string
	HoldingLabel  string
	Tags          map[string]string
	Tenancy       string
	AccessKey     string
	SecretKey     string
	JobLabel      string
	Paths         []string
}

// Put authenticates the caller, assigns a transaction id if the caller
// didn't supply one, and publishes a single route.put message for the
// marshaller to pick up (spec §4.2's `route.put` → `index.init` transition).
// It does not wait for the underlying workflow to complete.
func (g *Gateway) Put(req PutRequest) (transactionID string, err error) {
	principal, err := g.authenticate(req.Token, req.Group)
	if err != nil {
		return "", err
	}
	transactionID = req.TransactionID
	if transactionID == "" {
		transactionID = uuid.NewString()
	}
	env := core.NewEnvelope(
		core.RoutingKey{Application: Application, Worker: "route", State: "put"},
		core.Details{
			TransactionID: transactionID,
			User:          principal.Name,
			Group:         req.Group,
			Tenancy:       req.Tenancy,
			AccessKey:     req.AccessKey,
			SecretKey:     req.SecretKey,
			JobLabel:      req.JobLabel,
			HoldingLabel:  req.HoldingLabel,
			TagMap:        req.Tags,
			APIAction:     "put",
		},
		core.Meta{},
		pathDetailsFrom(req.Paths),
	)
	if err := g.broker.Publish(env, 0); err != nil {
		return "", fmt.Errorf("api: publishing put: %w", err)
	}
	return transactionID, nil
}

//-----------
// GET /files — read endpoint
//-----------

// GetRequest carries a get's selector set and delivery target (spec §6).
// Any combination of OriginalPaths, TransactionID, HoldingID and
// HoldingLabel may be supplied; Catalog resolves them the same way as a
// catalog-get.start (spec §4.4).
type GetRequest struct {
	Token, Group  string
	OriginalPaths []string
	TransactionID string
	HoldingID     int64
	HoldingLabel  string
	Tags          map[string]string
	Target        string
	AccessKey     string
	SecretKey     string
}

// Get authenticates the caller and publishes a route.get message (spec
// §4.2's `route.get` → `catalog-get.start` transition).
func (g *Gateway) Get(req GetRequest) (transactionID string, err error) {
	principal, err := g.authenticate(req.Token, req.Group)
	if err != nil {
		return "", err
	}
	transactionID = req.TransactionID
	if transactionID == "" {
		transactionID = uuid.NewString()
	}
	details := core.Details{
		TransactionID: transactionID,
		HoldingID:     req.HoldingID,
		HoldingLabel:  req.HoldingLabel,
		User:          principal.Name,
		Group:         req.Group,
		Target:        req.Target,
		AccessKey:     req.AccessKey,
		SecretKey:     req.SecretKey,
		TagMap:        req.Tags,
		APIAction:     "get",
	}
	env := core.NewEnvelope(
		core.RoutingKey{Application: Application, Worker: "route", State: "get"},
		details, core.Meta{}, pathDetailsFrom(req.OriginalPaths),
	)
	if err := g.broker.Publish(env, 0); err != nil {
		return "", fmt.Errorf("api: publishing get: %w", err)
	}
	return transactionID, nil
}

//-----------
// PUT /files/dellist — delete endpoint
//-----------

// DelRequest carries a delete's transaction scope and the specific paths
// within it to remove (spec §6).
type DelRequest struct {
	Token, Group  string
	TransactionID string
	Paths         []string
}

// Del authenticates the caller and publishes a route.del message. spec.md's
// own transition table (§4.2) only names put and get, but the dellist HTTP
// endpoint (§6) needs somewhere to land; the marshaller routes route.del
// straight to catalog-del.start, skipping indexing and transfer entirely.
func (g *Gateway) Del(req DelRequest) error {
	principal, err := g.authenticate(req.Token, req.Group)
	if err != nil {
		return err
	}
	env := core.NewEnvelope(
		core.RoutingKey{Application: Application, Worker: "route", State: "del"},
		core.Details{
			TransactionID: req.TransactionID,
			User:          principal.Name,
			Group:         req.Group,
			APIAction:     "del",
		},
		core.Meta{},
		pathDetailsFrom(req.Paths),
	)
	if err := g.broker.Publish(env, 0); err != nil {
		return fmt.Errorf("api: publishing del: %w", err)
	}
	return nil
}

//-----------
// Query endpoints (synchronous, RPC-backed)
//-----------

// queryTarget is the fixed routing key every RPC query addresses; a
// dedicated "query" consumer answers all five (spec §4.10).
var queryTarget = core.RoutingKey{Application: Application, Worker: "query"}

// StatResult is a TransactionRecord's rolled-up status (spec §4.9, §4.10).
type StatResult struct {
	TransactionID string
	State         string
	JobLabel      string
	User          string
	Group         string
	APIAction     string
}

// Stat reads a transaction's rolled-up monitor state (spec §6's "stat
// transactions" query endpoint).
func (g *Gateway) Stat(ctx context.Context, token, transactionID string) (StatResult, error) {
	principal, err := g.auth.AuthenticateToken(token)
	if err != nil {
		return StatResult{}, fmt.Errorf("api: authenticating token: %w", err)
	}
	req := core.NewEnvelope(queryTarget.WithState("query", "stat"), core.Details{
		TransactionID: transactionID,
		User:          principal.Name,
		APIAction:     "stat",
	}, core.Meta{}, nil)
	reply, err := g.rpc.Call(ctx, req.RoutingKey, req)
	if err != nil {
		return StatResult{}, err
	}
	if msg, failed := reply.Details.TagMap["error"]; failed {
		return StatResult{}, fmt.Errorf("api: stat: %s", msg)
	}
	return StatResult{
		TransactionID: transactionID,
		State:         reply.Details.TagMap["state"],
		JobLabel:      reply.Details.JobLabel,
		User:          reply.Details.User,
		Group:         reply.Details.Group,
		APIAction:     reply.Details.TagMap["api_action"],
	}, nil
}

// SystemStatusResult is the status-dashboard ping reply (spec §4.10, §6).
type SystemStatusResult struct {
	Hostname    string
	PID         string
	ConsumerTag string
	Timestamp   string
}

// SystemStatus pings a consumer with the api_action=system_stat
// short-circuit (spec §4.10): the responder answers with its identity
// without touching Catalog or Monitor.
func (g *Gateway) SystemStatus(ctx context.Context, consumerTag string) (SystemStatusResult, error) {
	req := core.NewEnvelope(queryTarget.WithState("query", "system-stat"), core.Details{
		APIAction: "system_stat",
		TagMap:    map[string]string{"consumer_tag": consumerTag},
	}, core.Meta{}, nil)
	reply, err := g.rpc.Call(ctx, req.RoutingKey, req)
	if err != nil {
		return SystemStatusResult{}, err
	}
	return SystemStatusResult{
		Hostname:    reply.Details.TagMap["hostname"],
		PID:         reply.Details.TagMap["pid"],
		ConsumerTag: reply.Details.TagMap["consumer_tag"],
		Timestamp:   reply.Details.TagMap["timestamp"],
	}, nil
}

// HoldingSummary is one row of a list-holdings reply.
type HoldingSummary struct {
	Label string
	ID    int64
}

// ListHoldings implements spec §6's "list holdings" query endpoint,
// resolved against Catalog's holding table (spec §4.4) keyed by owner and
// group, optionally narrowed by label.
func (g *Gateway) ListHoldings(ctx context.Context, token, group, label string) ([]HoldingSummary, error) {
	principal, err := g.authenticate(token, group)
	if err != nil {
		return nil, err
	}
	req := core.NewEnvelope(queryTarget.WithState("query", "list-holdings"), core.Details{
		User:      principal.Name,
		Group:     group,
		TagMap:    map[string]string{"label": label},
		APIAction: "list-holdings",
	}, core.Meta{}, nil)
	reply, err := g.rpc.Call(ctx, req.RoutingKey, req)
	if err != nil {
		return nil, err
	}
	if msg, failed := reply.Details.TagMap["error"]; failed {
		return nil, fmt.Errorf("api: list-holdings: %s", msg)
	}
	var holdings []HoldingSummary
	if encoded := reply.Details.TagMap["holdings"]; encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &holdings); err != nil {
			return nil, fmt.Errorf("api: decoding list-holdings reply: %w", err)
		}
	}
	return holdings, nil
}

// FindFiles implements spec §6's "find files" query endpoint, resolved
// against Catalog's file table (spec §4.4), scoped to group.
func (g *Gateway) FindFiles(ctx context.Context, token, group string, originalPaths []string) ([]core.PathDetails, error) {
	principal, err := g.authenticate(token, group)
	if err != nil {
		return nil, err
	}
	req := core.NewEnvelope(queryTarget.WithState("query", "find-files"), core.Details{
		User:      principal.Name,
		Group:     group,
		APIAction: "find-files",
	}, core.Meta{}, pathDetailsFrom(originalPaths))
	reply, err := g.rpc.Call(ctx, req.RoutingKey, req)
	if err != nil {
		return nil, err
	}
	if msg, failed := reply.Details.TagMap["error"]; failed {
		return nil, fmt.Errorf("api: find-files: %s", msg)
	}
	return reply.Data.Filelist, nil
}

// QuotaResult is a group's usage against its allotment (spec §3's Quota
// model, §6's "read quota" query endpoint).
type QuotaResult struct {
	Group string
	Size  int64
	Used  int64
}

// Quota implements spec §6's "read quota" query endpoint, resolved against
// Catalog's quota table (spec §4.4).
func (g *Gateway) Quota(ctx context.Context, token, group string) (QuotaResult, error) {
	principal, err := g.authenticate(token, group)
	if err != nil {
		return QuotaResult{}, err
	}
	req := core.NewEnvelope(queryTarget.WithState("query", "quota"), core.Details{
		User:      principal.Name,
		Group:     group,
		APIAction: "quota",
	}, core.Meta{}, nil)
	reply, err := g.rpc.Call(ctx, req.RoutingKey, req)
	if err != nil {
		return QuotaResult{}, err
	}
	if msg, failed := reply.Details.TagMap["error"]; failed {
		return QuotaResult{}, fmt.Errorf("api: quota: %s", msg)
	}
	size, _ := strconv.ParseInt(reply.Details.TagMap["size"], 10, 64)
	used, _ := strconv.ParseInt(reply.Details.TagMap["used"], 10, 64)
	return QuotaResult{Group: reply.Details.TagMap["group"], Size: size, Used: used}, nil
}
