package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nlds-storage/nlds/catalog"
	"github.com/nlds-storage/nlds/config"
	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/fabric"
	"github.com/nlds-storage/nlds/journal"
	"github.com/nlds-storage/nlds/marshaller"
	"github.com/nlds-storage/nlds/monitor"
	"github.com/nlds-storage/nlds/objectstore"
	"github.com/nlds-storage/nlds/stages/archiveget"
	"github.com/nlds-storage/nlds/stages/archiveput"
	"github.com/nlds-storage/nlds/stages/indexer"
	"github.com/nlds-storage/nlds/stages/transferget"
	"github.com/nlds-storage/nlds/stages/transferput"
)

// handlerFor returns the fabric.Handler that a given queue's consumer
// should run. Every handler is a pure function of one inbound Envelope to
// zero or more outbound Publications, matching the "parallel workers, each
// internally single-threaded" model spec §5 requires.
func (s *service) handlerFor(queueName string) fabric.Handler {
	switch queueName {
	case "nlds":
		return s.marshallerHandler
	case "index":
		return s.indexHandler
	case "catalog":
		return s.catalogHandler
	case "transfer-put":
		return s.transferPutHandler
	case "transfer-get":
		return s.transferGetHandler
	case "archive-put":
		return s.archivePutHandler
	case "archive-get":
		return s.archiveGetHandler
	case "monitor":
		return s.monitorHandler
	case "logging":
		return s.loggingHandler
	default:
		return func(core.Envelope) ([]fabric.Publication, error) { return nil, nil }
	}
}

// marshallerHandler implements spec §4.2: the one stateless function that
// picks the single next publication for an inbound envelope.
func (s *service) marshallerHandler(env core.Envelope) ([]fabric.Publication, error) {
	if env.IsSystemStat() {
		// The RPC short-circuit (spec §4.10) is answered by whichever
		// consumer holds the reply-to queue, not by the marshaller; nothing
		// to route here.
		return nil, nil
	}
	next, ok := marshaller.Next(env)
	if !ok {
		return nil, nil
	}
	return []fabric.Publication{{Envelope: next}}, nil
}

//-----------
// Indexer
//-----------

func indexerOptions() indexer.Options {
	return indexer.Options{
		FilelistMaxLength: config.IndexQ.FilelistMaxLength,
		MessageThreshold:  config.IndexQ.MessageThreshold,
		CheckPermissions:  config.IndexQ.CheckPermissions,
		CheckFilesize:     config.IndexQ.CheckFilesize,
		MaxFilesize:       config.IndexQ.MaxFilesize,
	}
}

func (s *service) indexHandler(env core.Envelope) ([]fabric.Publication, error) {
	switch env.RoutingKey.State {
	case "init":
		paths := originalPaths(env.Data.Filelist)
		subs := indexer.Split(paths, indexerOptions())
		pubs := make([]fabric.Publication, 0, len(subs))
		for _, sub := range subs {
			details := env.Details
			details.SubID = sub.SubID
			subEnv := core.NewEnvelope(env.RoutingKey.WithState("index", "start"), details, env.Meta, asPathDetails(sub.Paths))
			pubs = append(pubs, fabric.Publication{Envelope: subEnv})
		}
		return pubs, nil

	case "start":
		uid, gids, err := indexer.LookupGroups(env.Details.User)
		if err != nil {
			return nil, core.NewUserError("resolving indexing permissions", err)
		}
		gid := 0
		if len(gids) > 0 {
			gid = gids[0]
		}
		paths := originalPaths(env.Data.Filelist)
		batches := indexer.Walk(paths, uid, gid, gids, indexerOptions())
		var pubs []fabric.Publication
		for _, b := range batches {
			if len(b.Completed) > 0 {
				pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("index", "complete").WithFilelist(b.Completed)})
			}
			if len(b.Failed) > 0 {
				pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("index", "failed").WithFilelist(b.Failed)})
			}
		}
		return pubs, nil

	default:
		return nil, core.NewProtocolError(fmt.Sprintf("index: unrecognised state %q", env.RoutingKey.State), nil)
	}
}

//-----------
// Catalog
//-----------

func (s *service) catalogHandler(env core.Envelope) ([]fabric.Publication, error) {
	ctx := context.Background()
	switch env.RoutingKey.Worker {
	case "catalog-put":
		req := catalog.PutRequest{
			User: env.Details.User, Group: env.Details.Group,
			TransactionID: env.Details.TransactionID,
			HoldingLabel:  env.Details.HoldingLabel,
			Tags:          env.Details.TagMap,
			Files:         env.Data.Filelist,
		}
		completed, failed, err := s.catalog.CatalogPut(ctx, req)
		if err != nil {
			return nil, core.NewTransientError("catalog-put", err)
		}
		return completeAndFailed(env, "catalog-put", completed, failed), nil

	case "catalog-update":
		tenancy := env.Details.Tenancy
		if tenancy == "" {
			tenancy = config.CatalogQ.DefaultTenancy
		}
		if err := s.catalog.CatalogUpdate(ctx, env.Details.TransactionID, tenancy, env.Data.Filelist); err != nil {
			return nil, core.NewTransientError("catalog-update", err)
		}
		return []fabric.Publication{{Envelope: env.WithKey("monitor-put", "start")}}, nil

	case "catalog-del":
		role, err := s.roleChecker.RoleOf(ctx, env.Details.User, env.Details.Group)
		if err != nil {
			return nil, core.NewTransientError("catalog-del: resolving role", err)
		}
		if err := s.catalog.CatalogDel(ctx, env.Details.TransactionID, env.Details.User, env.Details.Group, role, env.Data.Filelist); err != nil {
			if forbidden, ok := err.(*catalog.ForbiddenError); ok {
				return nil, core.NewUserError("catalog-del", forbidden)
			}
			return nil, core.NewTransientError("catalog-del", err)
		}
		return []fabric.Publication{{Envelope: env.WithKey("monitor-put", "start")}}, nil

	case "catalog-remove":
		if err := s.catalog.CatalogRemove(ctx, env.Details.TransactionID, env.Data.Filelist); err != nil {
			return nil, core.NewTransientError("catalog-remove", err)
		}
		return []fabric.Publication{{Envelope: env.WithKey("monitor-get", "start")}}, nil

	case "catalog-get":
		req := catalog.GetRequest{
			User: env.Details.User, Group: env.Details.Group,
			OriginalPaths: originalPaths(env.Data.Filelist),
			TransactionID: env.Details.TransactionID,
			HoldingID:     env.Details.HoldingID,
			HoldingLabel:  env.Details.HoldingLabel,
			Tags:          env.Details.TagMap,
			FullUnpack:    config.ArchiveGetQ.FullUnpack,
		}
		result, err := s.catalog.CatalogGet(ctx, req)
		if err != nil {
			return nil, core.NewTransientError("catalog-get", err)
		}
		var pubs []fabric.Publication
		if len(result.TransferList) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("catalog-get", "complete").WithFilelist(result.TransferList)})
		}
		if len(result.ArchiveList) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("catalog-get", "archive-restore").WithFilelist(result.ArchiveList)})
		}
		if len(result.FailedList) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("catalog-get", "failed").WithFilelist(result.FailedList)})
		}
		return pubs, nil

	case "catalog-archive-next":
		holdingLabel, candidates, err := s.catalog.CatalogArchiveNext(ctx, config.CatalogQ.DefaultTapeURL)
		if err != nil {
			return nil, core.NewTransientError("catalog-archive-next", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		details := env.Details
		details.HoldingLabel = holdingLabel
		// Candidates may span several of the holding's transactions, each
		// originally uploaded under its own transaction-id bucket; archiving
		// reads back through the service-level credentials in
		// archive_put_q instead (see buildArchiveObjectStoreClient), so the
		// holding label stands in as a stable per-holding bucket name for
		// the archive read/tape-write path.
		details.TransactionID = holdingLabel
		return []fabric.Publication{{Envelope: core.NewEnvelope(env.RoutingKey.WithState("catalog-archive-next", "complete"), details, env.Meta, candidates)}}, nil

	case "catalog-archive-update":
		agg := catalog.Aggregation{
			TarName:   env.Details.TagMap["tar_name"],
			Checksum:  env.Details.TagMap["checksum"],
			Algorithm: env.Details.TagMap["algorithm"],
		}
		if err := s.catalog.CatalogArchiveUpdate(ctx, agg, env.Data.Filelist); err != nil {
			return nil, core.NewTransientError("catalog-archive-update", err)
		}
		return []fabric.Publication{{Envelope: env.WithKey("monitor-put", "start")}}, nil

	case "catalog-archive-del":
		if err := s.catalog.CatalogArchiveDel(ctx, env.Data.Filelist); err != nil {
			return nil, core.NewTransientError("catalog-archive-del", err)
		}
		return []fabric.Publication{{Envelope: env.WithKey("monitor-put", "start")}}, nil

	default:
		return nil, core.NewProtocolError(fmt.Sprintf("catalog: unrecognised worker %q", env.RoutingKey.Worker), nil)
	}
}

//-----------
// Transfer-put / Transfer-get
//-----------

func buildObjectStoreClient(env core.Envelope, requireSecure bool) (*objectstore.Client, error) {
	return objectstore.New(objectstore.Options{
		Endpoint:  env.Details.Target,
		AccessKey: env.Details.AccessKey,
		SecretKey: env.Details.SecretKey,
		Secure:    requireSecure,
	})
}

// buildArchiveObjectStoreClient builds the object-store client
// catalog-archive-next's background sweep reads members through, using
// archive_put_q's service-level credentials rather than any single
// request's Details (spec §4.7's sweep has no originating user request to
// carry per-call credentials).
func buildArchiveObjectStoreClient() (*objectstore.Client, error) {
	return objectstore.New(objectstore.Options{
		Endpoint:  config.ArchivePutQ.ObjectStoreEndpoint,
		AccessKey: config.ArchivePutQ.ObjectStoreAccessKey,
		SecretKey: config.ArchivePutQ.ObjectStoreSecretKey,
		Secure:    config.TransferPutQ.RequireSecure,
	})
}

func (s *service) transferPutHandler(env core.Envelope) ([]fabric.Publication, error) {
	client, err := buildObjectStoreClient(env, config.TransferPutQ.RequireSecure)
	if err != nil {
		return nil, core.NewUserError("building object-store client", err)
	}
	ctx := context.Background()
	if err := client.EnsureBucket(ctx, env.Details.TransactionID); err != nil {
		return nil, core.NewTransientError("ensuring bucket", err)
	}
	result := transferput.Run(ctx, client, env.Details.TransactionID, env.Data.Filelist, config.General.MaxRetries)
	pubs := completeAndFailed(env, "transfer-put", result.Completed, result.Failed)
	pubs = append(pubs, retryPublications(env, "transfer-put", "start", result.Retrying)...)
	return pubs, nil
}

func (s *service) transferGetHandler(env core.Envelope) ([]fabric.Publication, error) {
	if env.RoutingKey.State == "init" {
		chunks := transferget.Chunk(env.Data.Filelist, config.IndexQ.FilelistMaxLength)
		pubs := make([]fabric.Publication, 0, len(chunks))
		for _, chunk := range chunks {
			pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("transfer-get", "start").WithFilelist(chunk)})
		}
		return pubs, nil
	}

	client, err := buildObjectStoreClient(env, config.TransferGetQ.RequireSecure)
	if err != nil {
		return nil, core.NewUserError("building object-store client", err)
	}
	var chowner transferget.Chowner
	if config.TransferGetQ.Chown.Enable {
		chowner = transferget.NewChowner(config.TransferGetQ.Chown.Enable, config.TransferGetQ.Chown.Helper)
	}
	ctx := context.Background()
	result := transferget.Run(ctx, client, chowner, env.Details.TransactionID, env.Details.Target, env.Data.Filelist, config.General.MaxRetries)
	pubs := completeAndFailed(env, "transfer-get", result.Completed, result.Failed)
	pubs = append(pubs, retryPublications(env, "transfer-get", "start", result.Retrying)...)
	if len(result.Completed) > 0 {
		pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("monitor-get", "start").WithFilelist(result.Completed)})
	}
	if len(result.Failed) > 0 {
		pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("monitor-get", "start").WithFilelist(result.Failed)})
	}
	return pubs, nil
}

//-----------
// Archive-put
//-----------

func (s *service) archivePutHandler(env core.Envelope) ([]fabric.Publication, error) {
	switch env.RoutingKey.State {
	case "init":
		aggregates := archiveput.BinPack(env.Data.Filelist, nil, config.ArchivePutQ.MaxAggregationSize)
		pubs := make([]fabric.Publication, 0, len(aggregates))
		for _, agg := range aggregates {
			details := env.Details
			if details.TagMap == nil {
				details = cloneDetailsWithTagMap(details)
			}
			details.TagMap["tar_name"] = agg.TarName
			pubs = append(pubs, fabric.Publication{Envelope: core.NewEnvelope(env.RoutingKey.WithState("archive-put", "start"), details, env.Meta, agg.Members)})
		}
		return pubs, nil

	case "start":
		client, err := buildArchiveObjectStoreClient()
		if err != nil {
			return nil, core.NewUserError("building object-store client", err)
		}
		agg := archiveput.Aggregate{TarName: env.Details.TagMap["tar_name"], Members: env.Data.Filelist}
		result := archiveput.Run(context.Background(), client, s.tapePut, env.Details.TransactionID, agg, config.ArchivePutQ.Compress)

		details := cloneDetailsWithTagMap(env.Details)
		details.TagMap["tar_name"] = result.TarName
		details.TagMap["checksum"] = fmt.Sprintf("%08x", result.Checksum)
		details.TagMap["algorithm"] = "adler32"

		var pubs []fabric.Publication
		if len(result.Completed) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: core.NewEnvelope(env.RoutingKey.WithState("archive-put", "complete"), details, env.Meta, result.Completed)})
		}
		if len(result.Failed) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: core.NewEnvelope(env.RoutingKey.WithState("archive-put", "failed"), details, env.Meta, result.Failed)})
		}
		return pubs, nil

	default:
		return nil, core.NewProtocolError(fmt.Sprintf("archive-put: unrecognised state %q", env.RoutingKey.State), nil)
	}
}

func cloneDetailsWithTagMap(d core.Details) core.Details {
	if d.TagMap == nil {
		d.TagMap = map[string]string{}
		return d
	}
	clone := make(map[string]string, len(d.TagMap))
	for k, v := range d.TagMap {
		clone[k] = v
	}
	d.TagMap = clone
	return d
}

//-----------
// Archive-get
//-----------

// groupByAggregate partitions filelist by the owning aggregate's tar name,
// carried in PathDetails.ObjectLocation by catalog.CatalogGet (spec §4.4's
// "look up the owning Aggregation").
func groupByAggregate(filelist []core.PathDetails) map[string][]core.PathDetails {
	groups := map[string][]core.PathDetails{}
	for _, pd := range filelist {
		groups[pd.ObjectLocation] = append(groups[pd.ObjectLocation], pd)
	}
	return groups
}

func (s *service) archiveGetHandler(env core.Envelope) ([]fabric.Publication, error) {
	ctx := context.Background()
	switch env.RoutingKey.State {
	case "prepare":
		groups := groupByAggregate(env.Data.Filelist)
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		result := archiveget.Prepare(ctx, s.tapeGet, names)

		var pubs []fabric.Publication
		for _, name := range result.Ready {
			pubs = append(pubs, fabric.Publication{Envelope: archiveStartEnvelope(env, name, groups[name])})
		}
		for prepareID, name := range result.Pending {
			pubs = append(pubs, fabric.Publication{
				Envelope: archivePrepareCheckEnvelope(env, prepareID, name, groups[name]),
				Delay:    prepareRequeueDelay(),
			})
		}
		if len(result.Failed) > 0 {
			pubs = append(pubs, fabric.Publication{Envelope: env.WithKey("archive-get", "failed").WithFilelist(failAggregateMembers(groups, result.Failed))})
		}
		return pubs, nil

	case "prepare-check":
		prepareID := env.Details.TagMap["prepare_id"]
		name := env.Details.TagMap["aggregate"]
		result := archiveget.PrepareCheck(ctx, s.tapeGet, map[string]string{prepareID: name})

		if len(result.Ready) > 0 {
			return []fabric.Publication{{Envelope: archiveStartEnvelope(env, name, env.Data.Filelist)}}, nil
		}
		if _, stillPending := result.Pending[prepareID]; stillPending {
			return []fabric.Publication{{
				Envelope: env,
				Delay:    prepareRequeueDelay(),
			}}, nil
		}
		// result.Failed or neither: treat as a failed prepare.
		return []fabric.Publication{{Envelope: env.WithKey("archive-get", "failed")}}, nil

	case "start":
		client, err := buildObjectStoreClient(env, config.TransferGetQ.RequireSecure)
		if err != nil {
			return nil, core.NewUserError("building object-store client", err)
		}
		aggregate := env.Details.TagMap["aggregate"]
		result := archiveget.Start(ctx, s.tapeGet, client, env.Details.TransactionID, aggregate, env.Data.Filelist)
		return completeAndFailed(env, "archive-get", result.Transferred, result.Failed), nil

	default:
		return nil, core.NewProtocolError(fmt.Sprintf("archive-get: unrecognised state %q", env.RoutingKey.State), nil)
	}
}

func archiveStartEnvelope(env core.Envelope, aggregate string, members []core.PathDetails) core.Envelope {
	details := cloneDetailsWithTagMap(env.Details)
	details.TagMap["aggregate"] = aggregate
	delete(details.TagMap, "prepare_id")
	return core.NewEnvelope(env.RoutingKey.WithState("archive-get", "start"), details, env.Meta, members)
}

func archivePrepareCheckEnvelope(env core.Envelope, prepareID, aggregate string, members []core.PathDetails) core.Envelope {
	details := cloneDetailsWithTagMap(env.Details)
	details.TagMap["prepare_id"] = prepareID
	details.TagMap["aggregate"] = aggregate
	return core.NewEnvelope(env.RoutingKey.WithState("archive-get", "prepare-check"), details, env.Meta, members)
}

func prepareRequeueDelay() time.Duration {
	ms := config.ArchiveGetQ.PrepareRequeueDelay
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

func failAggregateMembers(groups map[string][]core.PathDetails, failed map[string]error) []core.PathDetails {
	var out []core.PathDetails
	for name, err := range failed {
		for _, pd := range groups[name] {
			pd.Fail(fmt.Sprintf("preparing aggregate %s: %s", name, err))
			out = append(out, pd)
		}
	}
	return out
}

//-----------
// Monitor
//-----------

// monitorHandler interprets a monitor-put.start/monitor-get.start message:
// the sub-transaction ratchets to complete when no entry carries a
// FailReason, to complete-with-errors when only some do, and to failed when
// all do or the filelist is empty; failed entries are logged against the
// sub-transaction (spec §4.9's ratchet rule).
func (s *service) monitorHandler(env core.Envelope) ([]fabric.Publication, error) {
	ctx := context.Background()
	subID := env.Details.SubID
	if subID == "" {
		return nil, nil
	}

	var completed, failed []core.PathDetails
	for _, pd := range env.Data.Filelist {
		if pd.Failed() {
			failed = append(failed, pd)
		} else {
			completed = append(completed, pd)
		}
	}

	state := monitor.StateComplete
	if len(env.Data.Filelist) == 0 || len(failed) == len(env.Data.Filelist) {
		state = monitor.StateFailed
	} else if len(failed) > 0 {
		state = monitor.StateCompleteWithErrors
	}

	if _, _, err := s.monitor.UpsertSubRecord(ctx, monitor.SubRecord{SubID: subID, TransactionID: env.Details.TransactionID, State: state}); err != nil {
		return nil, core.NewTransientError("updating monitor state", err)
	}

	if len(failed) > 0 {
		ff := make([]monitor.FailedFile, 0, len(failed))
		for _, pd := range failed {
			ff = append(ff, monitor.FailedFile{FilePath: pd.OriginalPath, Reason: pd.FailReason})
		}
		if err := s.monitor.RecordFailure(ctx, subID, ff); err != nil {
			return nil, core.NewTransientError("recording monitor failures", err)
		}
	}
	return nil, nil
}

//-----------
// Logging
//-----------

// loggingHandler is a sink for *.log.* messages; this reference deployment
// writes every stage's own structured logs directly via journal.NewLogger
// rather than round-tripping log lines through the fabric, so this consumer
// only exists to keep the "logging" queue's binding non-dangling for an
// external producer that publishes log-shaped envelopes.
func (s *service) loggingHandler(env core.Envelope) ([]fabric.Publication, error) {
	return nil, nil
}

//-----------
// shared helpers
//-----------

func originalPaths(filelist []core.PathDetails) []string {
	paths := make([]string, len(filelist))
	for i, pd := range filelist {
		paths[i] = pd.OriginalPath
	}
	return paths
}

func asPathDetails(paths []string) []core.PathDetails {
	out := make([]core.PathDetails, len(paths))
	for i, p := range paths {
		out[i] = core.PathDetails{OriginalPath: p}
	}
	return out
}

// retryPublications republishes a stage's transiently-failed entries to its
// own worker/state after the exponential back-off delay spec §5, §7 name
// (config.General.DelayFor, indexed by each entry's current retry count),
// rather than ever surfacing a mid-retry item to the marshaller as a
// terminal failure. Entries are grouped by retry count since DelayFor's
// table means two entries at different points in their retry history need
// different delays.
func retryPublications(env core.Envelope, worker, state string, retrying []core.PathDetails) []fabric.Publication {
	if len(retrying) == 0 {
		return nil
	}
	groups := map[int][]core.PathDetails{}
	for _, pd := range retrying {
		groups[pd.Retries] = append(groups[pd.Retries], pd)
	}
	pubs := make([]fabric.Publication, 0, len(groups))
	for retries, group := range groups {
		pubs = append(pubs, fabric.Publication{
			Envelope: env.WithKey(worker, state).WithFilelist(group),
			Delay:    time.Duration(config.General.DelayFor(retries)) * time.Millisecond,
		})
	}
	return pubs
}

func completeAndFailed(env core.Envelope, worker string, completed, failed []core.PathDetails) []fabric.Publication {
	var pubs []fabric.Publication
	if len(completed) > 0 {
		pubs = append(pubs, fabric.Publication{Envelope: env.WithKey(worker, "complete").WithFilelist(completed)})
	}
	if len(failed) > 0 {
		pubs = append(pubs, fabric.Publication{Envelope: env.WithKey(worker, "failed").WithFilelist(failed)})
	}
	return pubs
}

//-----------
// Monitoring middleware and archive trigger
//-----------

// stateFor maps an inbound routing key's (worker, state) to the monitor.State
// it represents, for withMonitoring's intermediate ratchet. Terminal
// outcomes (complete/failed) are handled by each handler's own explicit
// monitor-put/monitor-get publication rather than by this table, since only
// the handler knows whether a "complete" split across batches is itself the
// last one (spec §4.9).
var stateFor = map[transitionKey]monitor.State{
	{worker: "route", state: "put"}:            monitor.StateRouting,
	{worker: "route", state: "get"}:             monitor.StateRouting,
	{worker: "index", state: "init"}:            monitor.StateSplitting,
	{worker: "index", state: "start"}:           monitor.StateIndexing,
	{worker: "catalog-put", state: "start"}:     monitor.StateCatalogPutting,
	{worker: "transfer-put", state: "init"}:     monitor.StateTransferInit,
	{worker: "transfer-put", state: "start"}:    monitor.StateTransferPutting,
	{worker: "catalog-get", state: "start"}:     monitor.StateCatalogGetting,
	{worker: "archive-get", state: "prepare"}:   monitor.StateArchivePreparing,
	{worker: "transfer-get", state: "init"}:     monitor.StateTransferInit,
	{worker: "transfer-get", state: "start"}:    monitor.StateTransferGetting,
	{worker: "archive-put", state: "init"}:      monitor.StateArchiveInit,
	{worker: "archive-put", state: "start"}:     monitor.StateArchivePutting,
	{worker: "catalog-del", state: "start"}:     monitor.StateCatalogDeleting,
	{worker: "catalog-update", state: "start"}:  monitor.StateCatalogUpdating,
	{worker: "catalog-archive-update", state: "start"}: monitor.StateCatalogArchiveUpdating,
	{worker: "catalog-remove", state: "start"}:  monitor.StateCatalogRemoving,
}

type transitionKey struct {
	worker, state string
}

// withMonitoring wraps a queue's handler with a generic ratchet of the
// sub-transaction's progress, keyed purely off the inbound envelope's
// routing key, so individual handlers don't need to thread monitor calls
// through every branch for the non-terminal states spec §4.9's state
// table names. A SubID-less envelope (the initial route.put/route.get
// before splitting) is left alone since there is no SubRecord yet to
// ratchet.
func (s *service) withMonitoring(next fabric.Handler) fabric.Handler {
	return func(env core.Envelope) ([]fabric.Publication, error) {
		if env.Details.SubID != "" {
			if state, ok := stateFor[transitionKey{worker: env.RoutingKey.Worker, state: env.RoutingKey.State}]; ok {
				ctx := context.Background()
				// Monitor visibility is best-effort: a failure here must never
				// block the actual stage work from running.
				s.monitor.UpsertSubRecord(ctx, monitor.SubRecord{
					SubID:         env.Details.SubID,
					TransactionID: env.Details.TransactionID,
					State:         state,
				})
			}
		}
		return next(env)
	}
}

// runArchiveTrigger periodically kicks off a catalog-archive-next pass,
// implementing the out-of-band driver spec §4.2 and §4.7 describe: nothing
// upstream ever publishes catalog-archive-next.start on its own, since
// archiving runs on a schedule rather than in response to a put.
func (s *service) runArchiveTrigger(stop <-chan struct{}) {
	log := journal.NewLogger("archive-trigger")
	ticker := time.NewTicker(archiveTriggerInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			env := core.NewEnvelope(core.RoutingKey{Application: "nlds-api", Worker: "catalog-archive-next", State: "start"}, core.Details{}, core.Meta{}, nil)
			if err := s.broker.Publish(env, 0); err != nil {
				log.Error("publishing archive trigger failed", "error", err)
			}
		}
	}
}

// archiveTriggerInterval has no dedicated config field in spec §6; thirty
// minutes matches the cadence spec §4.7's "runs on a schedule, not per-put"
// description implies for a background tape-aggregation sweep.
func archiveTriggerInterval() time.Duration {
	return 30 * time.Minute
}
