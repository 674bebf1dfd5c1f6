// Package export renders analyses as downloadable JSON documents and
// optionally publishes them to an object store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"ats-matcher/internal/shared/storage/object"
	"ats-matcher/internal/shared/telemetry"
)

// ContentType is the media type of rendered exports.
const ContentType = "application/json"

var ErrMissingID = errors.New("export id is required")

// Render returns v as two-space indented JSON with a trailing newline.
// HTML characters are not escaped so the file reads the way it was written.
func Render(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is the download name for an analysis id.
func FileName(id string) string {
	return "analysis-" + strings.TrimSpace(id) + ".json"
}

// Published describes a stored export.
type Published struct {
	Key       string `json:"key"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Publisher writes rendered exports to an object store under
// exports/YYYY/MM/DD/analysis-<id>.json.
type Publisher struct {
	Store object.ObjectStore
	now   func() time.Time
}

// NewPublisher returns a publisher backed by store.
func NewPublisher(store object.ObjectStore) *Publisher {
	return &Publisher{Store: store, now: time.Now}
}

// Key returns the storage key for id at time t.
func Key(id string, t time.Time) string {
	t = t.UTC()
	return path.Join("exports", t.Format("2006"), t.Format("01"), t.Format("02"), FileName(id))
}

// Publish stores data for id.
func (p *Publisher) Publish(ctx context.Context, id string, data []byte) (Published, error) {
	if strings.TrimSpace(id) == "" {
		return Published{}, ErrMissingID
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	key := Key(id, now())
	n, err := p.Store.Put(ctx, key, ContentType, bytes.NewReader(data))
	if err != nil {
		telemetry.Error("export.publish_failed", map[string]any{
			"analysis_id": id,
			"key":         key,
			"error":       err.Error(),
		})
		return Published{}, fmt.Errorf("publish export %s: %w", id, err)
	}

	out := Published{Key: key, Location: p.Store.Location(key), SizeBytes: n}
	telemetry.Info("export.published", map[string]any{
		"analysis_id": id,
		"location":    out.Location,
		"size_bytes":  n,
	})
	return out, nil
}
