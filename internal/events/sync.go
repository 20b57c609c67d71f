// Package events defines the payloads published when a sync generation is committed.
package events

import "time"

// TypeSyncCompleted is the outbox event type for a committed generation.
const TypeSyncCompleted = "wellness.sync_completed"

// SyncCompleted is emitted in the same transaction that replaces the trends table.
type SyncCompleted struct {
	RunID       string     `json:"run_id"`
	Trigger     string     `json:"trigger"`
	Table       string     `json:"table"`
	Rows        int        `json:"rows"`
	WindowStart string     `json:"window_start,omitempty"`
	WindowEnd   string     `json:"window_end,omitempty"`
	Endpoints   []string   `json:"endpoints"`
	Warnings    int        `json:"warnings"`
	Watermark   *time.Time `json:"watermark,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Envelope is an event queued in the outbox alongside the data it describes.
type Envelope struct {
	Type        string
	AggregateID string
	Payload     any
}

// Metadata describes how to route and describe an event type.
type Metadata struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

// Catalog lists every event type the service emits.
var Catalog = map[string]Metadata{
	TypeSyncCompleted: {
		Topic:         "wellness.sync_completed",
		SchemaSubject: "wellness.sync_completed-value",
		Schema:        syncCompletedSchema,
	},
}

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "run_id": {"type": "string"},
    "trigger": {"type": "string"},
    "table": {"type": "string"},
    "rows": {"type": "integer"},
    "window_start": {"type": "string", "format": "date"},
    "window_end": {"type": "string", "format": "date"},
    "endpoints": {"type": "array", "items": {"type": "string"}},
    "warnings": {"type": "integer"},
    "watermark": {"type": "string", "format": "date-time"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "trigger", "table", "rows", "endpoints", "warnings", "completed_at"],
  "additionalProperties": false
}`
