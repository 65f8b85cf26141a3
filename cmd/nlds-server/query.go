package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/nlds-storage/nlds/core"
)

// answerQuery implements the RPC side of spec §4.10: the system_stat
// short-circuit, a stat responder backed by monitor.Store's
// TransactionStatus, and the three Catalog-backed query endpoints spec §6
// names (list-holdings, find-files, quota).
func (s *service) answerQuery(env core.Envelope) core.Envelope {
	if env.IsSystemStat() {
		return s.systemStatReply(env)
	}
	switch env.RoutingKey.State {
	case "stat":
		return s.statReply(env)
	case "list-holdings":
		return s.listHoldingsReply(env)
	case "find-files":
		return s.findFilesReply(env)
	case "quota":
		return s.quotaReply(env)
	default:
		return notImplementedReply(env)
	}
}

func (s *service) systemStatReply(env core.Envelope) core.Envelope {
	hostname, _ := os.Hostname()
	reply := env
	reply.Details = core.Details{
		TagMap: map[string]string{
			"hostname":     hostname,
			"pid":          strconv.Itoa(os.Getpid()),
			"consumer_tag": env.Details.TagMap["consumer_tag"],
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		},
	}
	return reply
}

func (s *service) statReply(env core.Envelope) core.Envelope {
	ctx := context.Background()
	tr, _, state, err := s.monitor.TransactionStatus(ctx, env.Details.TransactionID)
	reply := env
	if err != nil {
		reply.Details = core.Details{TagMap: map[string]string{"error": err.Error()}}
		return reply
	}
	reply.Details = core.Details{
		User:     tr.User,
		Group:    tr.Group,
		JobLabel: tr.JobLabel,
		TagMap: map[string]string{
			"state":      state.String(),
			"api_action": tr.APIAction,
		},
	}
	return reply
}

// listHoldingsReply answers spec §6's "list holdings" endpoint against
// Catalog's holding table, narrowed to the caller's user/group and an
// optional label filter carried in TagMap["label"].
func (s *service) listHoldingsReply(env core.Envelope) core.Envelope {
	holdings, err := s.catalog.ListHoldings(context.Background(), env.Details.User, env.Details.Group, env.Details.TagMap["label"])
	reply := env
	if err != nil {
		reply.Details = core.Details{TagMap: map[string]string{"error": err.Error()}}
		return reply
	}
	encoded, err := json.Marshal(holdings)
	if err != nil {
		reply.Details = core.Details{TagMap: map[string]string{"error": err.Error()}}
		return reply
	}
	reply.Details = core.Details{TagMap: map[string]string{"holdings": string(encoded)}}
	return reply
}

// findFilesReply answers spec §6's "find files" endpoint against Catalog's
// file table, scoped to the caller's group and optionally narrowed to the
// request's filelist of original paths.
func (s *service) findFilesReply(env core.Envelope) core.Envelope {
	files, err := s.catalog.FindFiles(context.Background(), env.Details.Group, originalPaths(env.Data.Filelist))
	reply := env
	if err != nil {
		reply.Details = core.Details{TagMap: map[string]string{"error": err.Error()}}
		return reply
	}
	reply.Details = core.Details{}
	reply.Data = core.Data{Filelist: files}
	return reply
}

// quotaReply answers spec §6's "read quota" endpoint against Catalog's
// quota table.
func (s *service) quotaReply(env core.Envelope) core.Envelope {
	q, err := s.catalog.GetQuota(context.Background(), env.Details.Group)
	reply := env
	if err != nil {
		reply.Details = core.Details{TagMap: map[string]string{"error": err.Error()}}
		return reply
	}
	reply.Details = core.Details{TagMap: map[string]string{
		"group": q.Group,
		"size":  strconv.FormatInt(q.Size, 10),
		"used":  strconv.FormatInt(q.Used, 10),
	}}
	return reply
}

func notImplementedReply(env core.Envelope) core.Envelope {
	reply := env
	reply.Details = core.Details{TagMap: map[string]string{"error": "not implemented"}}
	return reply
}
