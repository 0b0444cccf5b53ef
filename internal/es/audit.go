package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/compliance_api/internal/events"
)

const DefaultAuditIndex = "auth_audit"

var auditMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":          map[string]any{"type": "keyword"},
			"type":        map[string]any{"type": "keyword"},
			"user_id":     map[string]any{"type": "keyword"},
			"email":       map[string]any{"type": "keyword"},
			"ip":          map[string]any{"type": "keyword"},
			"user_agent":  map[string]any{"type": "text"},
			"occurred_at": map[string]any{"type": "date"},
		},
	},
}

// AuditIndex stores auth events in Elasticsearch and lets a user search
// their own history.
type AuditIndex struct {
	Client *elasticsearch.Client
	Index  string
}

func NewAuditIndex(client *elasticsearch.Client, index string) *AuditIndex {
	if index == "" {
		index = DefaultAuditIndex
	}
	return &AuditIndex{Client: client, Index: index}
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (a *AuditIndex) EnsureIndex(ctx context.Context) error {
	res, err := a.Client.Indices.Exists([]string{a.Index}, a.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", a.Index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(auditMapping)
	if err != nil {
		return err
	}
	res, err = a.Client.Indices.Create(a.Index,
		a.Client.Indices.Create.WithContext(ctx),
		a.Client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", a.Index, err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", a.Index, res.Status())
	}
	return nil
}

func (a *AuditIndex) Publish(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("es: marshal event: %w", err)
	}
	res, err := a.Client.Index(a.Index, bytes.NewReader(body),
		a.Client.Index.WithContext(ctx),
		a.Client.Index.WithDocumentID(ev.ID),
	)
	if err != nil {
		return fmt.Errorf("es: index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es: index event: %s: %s", res.Status(), readBody(res.Body))
	}
	return nil
}

// Search returns one page of userID's events, newest first. An empty query
// matches everything.
func (a *AuditIndex) Search(ctx context.Context, userID, query string, from, size int) (int64, []events.Event, error) {
	filter := []any{
		map[string]any{"term": map[string]any{"user_id": userID}},
	}
	boolQuery := map[string]any{"filter": filter}
	if q := strings.TrimSpace(query); q != "" {
		boolQuery["must"] = []any{
			map[string]any{
				"multi_match": map[string]any{
					"query":     q,
					"fields":    []string{"type^2", "email", "ip", "user_agent"},
					"lenient":   true,
					"fuzziness": "AUTO",
				},
			},
		}
	}
	body := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"sort":  []any{map[string]any{"occurred_at": map[string]any{"order": "desc"}}},
		"from":  from,
		"size":  size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("es: encode query: %w", err)
	}

	res, err := a.Client.Search(
		a.Client.Search.WithContext(ctx),
		a.Client.Search.WithIndex(a.Index),
		a.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("es: search: %s: %s", res.Status(), readBody(res.Body))
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source events.Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("es: decode search: %w", err)
	}

	out := make([]events.Event, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		out[i] = hit.Source
	}
	return r.Hits.Total.Value, out, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return string(b)
}
