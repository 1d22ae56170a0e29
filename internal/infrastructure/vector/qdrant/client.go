package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// Client queries a qdrant collection maintained by an external seeding
// process. The pipeline never writes to it.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Search returns up to topK scored documents, descending by similarity.
// Zero matches yields an empty slice, not an error.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedDocument, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	body, err := json.Marshal(map[string]any{
		"query":        vector,
		"limit":        topK,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, fmt.Errorf("qdrant query status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant query status: %s", resp.Status)
	}

	points, err := decodeQueryPoints(resp.Body)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedDocument, 0, len(points))
	for _, p := range points {
		out = append(out, domain.RetrievedDocument{
			ID:       p.ID,
			Score:    p.Score,
			Source:   domain.SourceVector,
			Title:    getStringPayload(p.Payload, "title"),
			Category: getStringPayload(p.Payload, "category"),
			Text:     getStringPayload(p.Payload, "text"),
		})
	}
	return out, nil
}

type queryPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

func decodeQueryPoints(body io.Reader) ([]queryPoint, error) {
	var response struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	points := make([]queryPoint, 0, len(response.Result.Points))
	for _, p := range response.Result.Points {
		points = append(points, queryPoint{
			ID:      fmt.Sprintf("%v", p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return points, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
