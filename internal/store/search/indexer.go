// Package search mirrors the event log into Elasticsearch for analytics.
// The index is a best-effort copy; the event log remains the only source of truth.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ar-ledger/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"id":            {"type": "keyword"},
			"arId":          {"type": "keyword"},
			"kind":          {"type": "keyword"},
			"occurredAt":    {"type": "date"},
			"actor":         {"properties": {"kind": {"type": "keyword"}, "userId": {"type": "keyword"}}},
			"schemaVersion": {"type": "integer"},
			"payload":       {"type": "object", "enabled": false}
		}
	}
}`

// EventIndexer writes events into one index, keyed by event id so that
// re-indexing the same event overwrites rather than duplicates.
type EventIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewEventIndexer(client *elasticsearch.Client, index string) *EventIndexer {
	return &EventIndexer{client: client, index: index}
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (x *EventIndexer) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.index}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = x.client.Indices.Create(
		x.index,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", x.index, res.String())
	}
	return nil
}

// IndexEvent stores one event document.
func (x *EventIndexer) IndexEvent(ctx context.Context, evt models.Event) error {
	doc, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}

	res, err := x.client.Index(
		x.index,
		bytes.NewReader(doc),
		x.client.Index.WithContext(ctx),
		x.client.Index.WithDocumentID(evt.ID),
	)
	if err != nil {
		return fmt.Errorf("index event %s: %w", evt.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index event %s: %s", evt.ID, res.String())
	}
	return nil
}

// CountByKind returns how many indexed events have the given kind.
func (x *EventIndexer) CountByKind(ctx context.Context, kind models.EventKind) (int64, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"kind": string(kind)},
		},
	}
	body, _ := json.Marshal(query)

	res, err := x.client.Count(
		x.client.Count.WithContext(ctx),
		x.client.Count.WithIndex(x.index),
		x.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count %s: %s", kind, res.String())
	}

	var r struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return r.Count, nil
}
