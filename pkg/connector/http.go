package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"

	"github.com/lanewatch/lanewatch/pkg/models"
)

// pollDocument is the JSON shape a polled endpoint returns: a page of items
// and an opaque cursor for the next poll.
type pollDocument struct {
	Items      []map[string]any `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

// NewHTTPFetcher returns a Fetcher that polls a JSON endpoint. The provider
// config supplies the endpoint under "url" and an optional bearer token under
// "auth_token"; the cursor travels as a query parameter and comes back as
// next_cursor. Each item is a flat JSON object whose "id" (or "event_id")
// field identifies it for change detection.
func NewHTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, cfg ProviderConfig, cursor string) ([]Item, string, error) {
		endpoint, _ := cfg["url"].(string)
		if endpoint == "" {
			return nil, "", fmt.Errorf("provider config has no url")
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, "", fmt.Errorf("parsing provider url: %w", err)
		}
		if cursor != "" {
			q := u.Query()
			q.Set("cursor", cursor)
			u.RawQuery = q.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", fmt.Errorf("building provider request: %w", err)
		}
		if token, _ := cfg["auth_token"].(string); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetching %s: %w", u.Host, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetching %s: unexpected status %d", u.Host, resp.StatusCode)
		}

		var doc pollDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, "", fmt.Errorf("decoding response from %s: %w", u.Host, err)
		}

		items := make([]Item, 0, len(doc.Items))
		for _, data := range doc.Items {
			id, _ := data["id"].(string)
			if id == "" {
				id, _ = data["event_id"].(string)
			}
			items = append(items, Item{ID: id, Data: data})
		}
		return items, doc.NextCursor, nil
	}
}

// ContentVersion fingerprints an item's data. json.Marshal writes map keys in
// sorted order, so identical content hashes identically across polls.
func ContentVersion(item Item) string {
	body, err := json.Marshal(item.Data)
	if err != nil {
		return "unhashable:" + item.ID
	}
	h := fnv.New64a()
	_, _ = h.Write(body)
	return fmt.Sprintf("%016x", h.Sum64())
}

// RawSignalTransform passes an item's fields through as a raw signal for
// normalisation downstream. The item id doubles as the event id when the
// provider supplies none.
func RawSignalTransform(item Item) (models.RawExternalSignal, error) {
	raw := make(models.RawExternalSignal, len(item.Data)+1)
	for k, v := range item.Data {
		raw[k] = v
	}
	if raw.String("event_id", "eventId") == "" && item.ID != "" {
		raw["event_id"] = item.ID
	}
	return raw, nil
}
