package models

import (
	"time"

	audit "taskguard/pkg/platform/audit"
)

// RecordResponse is the API view of an audit record.
type RecordResponse struct {
	ID            string            `json:"id"`
	ActorID       string            `json:"actor_id,omitempty"`
	ActorDetached bool              `json:"actor_detached,omitempty"`
	Action        string            `json:"action"`
	Category      string            `json:"category"`
	EntityType    string            `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	SourceAddress string            `json:"source_address,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Hash          string            `json:"hash"`
}

// RecordListResponse wraps a page of records.
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Count   int              `json:"count"`
}

func ToRecordResponse(rec audit.Record) RecordResponse {
	resp := RecordResponse{
		ID:            rec.ID,
		ActorDetached: rec.ActorDetached,
		Action:        string(rec.Action),
		Category:      string(rec.Action.Category()),
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		SourceAddress: rec.SourceAddress,
		UserAgent:     rec.UserAgent,
		RequestID:     rec.RequestID,
		Metadata:      rec.Metadata,
		Timestamp:     rec.Timestamp,
		Hash:          rec.Hash,
	}
	if !rec.ActorID.IsNil() {
		resp.ActorID = rec.ActorID.String()
	}
	return resp
}

func ToRecordListResponse(records []audit.Record) RecordListResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, ToRecordResponse(rec))
	}
	return RecordListResponse{Records: out, Count: len(out)}
}
