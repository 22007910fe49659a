// Package publish turns a validated draft session into the live set of
// index entries for its source: an atomic replace expressed as
// delete-by-source then insert, followed by session teardown.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/session"
	"github.com/docloom/docloom/internal/vector"
)

const sourceIDField = "doc.source_id"

// Embedder computes fixed-dimension vectors for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Config controls publish policy.
type Config struct {
	// EmbedBatchSize bounds how many fragment texts go into one provider
	// call, keeping payloads under provider limits.
	EmbedBatchSize int
	// AllowDraftPublish admits DRAFT sessions in addition to PREVIEW.
	AllowDraftPublish bool
}

func (c Config) normalized() Config {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	return c
}

// Result reports a successful publish.
type Result struct {
	PublishedChunks int    `json:"published_chunks"`
	CollectionID    string `json:"collection_id"`
	SourceID        string `json:"source_id"`
	Revision        int    `json:"revision"`
}

// Engine executes the replace-publish sequence. A failure before the
// index delete leaves both the session and the prior published entries
// untouched, so the operation is safely retryable.
type Engine struct {
	sessions *session.Store
	index    vector.Index
	embedder Embedder
	cfg      Config
}

func NewEngine(sessions *session.Store, index vector.Index, embedder Embedder, cfg Config) *Engine {
	return &Engine{sessions: sessions, index: index, embedder: embedder, cfg: cfg.normalized()}
}

// Publish validates the session, replaces the live entries for its
// source, and deletes the draft. Re-running for the same source always
// yields exactly one live set of entries.
func (e *Engine) Publish(ctx context.Context, sessionID, collectionID, publishedBy string) (*Result, error) {
	logger := common.Logger()
	sess, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPreview {
		if !(e.cfg.AllowDraftPublish && sess.Status == session.StatusDraft) {
			return nil, errs.InvalidState("publish requires PREVIEW, session is %s", sess.Status)
		}
	}
	if len(sess.Chunks) == 0 {
		return nil, errs.InvalidState("session %s has no chunks to publish", sessionID)
	}
	if collectionID != "" {
		e.index.SetCollection(collectionID)
	}

	vectors, err := e.embedAll(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := e.index.EnsureCollection(ctx, vectorDimension(vectors)); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	sourceID := sourceIDFor(sess.SourceType, sess.SourceURL)
	revision, err := e.nextRevision(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve revision for source %s: %w", sourceID, err)
	}

	now := time.Now().UTC()
	points := make([]vector.Point, len(sess.Chunks))
	for i, frag := range sess.Chunks {
		points[i] = vector.Point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: entryPayload(sess, frag, i, revision, sourceID, publishedBy, now),
		}
	}

	// Prior entries are superseded wholesale; a failure past this point
	// is reported loudly rather than papered over with partial success.
	if err := e.index.DeleteByFilter(ctx, vector.Filter{sourceIDField: sourceID}); err != nil {
		return nil, fmt.Errorf("delete prior entries for source %s: %w", sourceID, err)
	}
	if err := e.index.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("insert %d entries for source %s: %w", len(points), sourceID, err)
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		logger.Warn("publish: session cleanup failed", "session", sessionID, "error", err)
	}
	logger.Info("publish: source replaced",
		"session", sessionID, "source_id", sourceID, "chunks", len(points), "revision", revision)
	return &Result{
		PublishedChunks: len(points),
		CollectionID:    e.index.Collection(),
		SourceID:        sourceID,
		Revision:        revision,
	}, nil
}

// embedAll batches fragment texts through the embedder. Failures name
// the fragment that broke the batch.
func (e *Engine) embedAll(ctx context.Context, sess *session.Session) ([][]float32, error) {
	for _, frag := range sess.Chunks {
		if frag.Text == "" {
			return nil, errs.Validation("chunk %s is empty and cannot be published", frag.ID)
		}
	}
	vectors := make([][]float32, 0, len(sess.Chunks))
	for start := 0; start < len(sess.Chunks); start += e.cfg.EmbedBatchSize {
		end := start + e.cfg.EmbedBatchSize
		if end > len(sess.Chunks) {
			end = len(sess.Chunks)
		}
		texts := make([]string, 0, end-start)
		for _, frag := range sess.Chunks[start:end] {
			texts = append(texts, frag.Text)
		}
		batch, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d (first id %s): %w", start, end-1, sess.Chunks[start].ID, err)
		}
		if len(batch) != len(texts) {
			return nil, errs.Upstream(true, "embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// nextRevision reads the highest live revision for the source and
// increments it. Missing entries start at revision 1.
func (e *Engine) nextRevision(ctx context.Context, sourceID string) (int, error) {
	highest := 0
	filter := vector.Filter{sourceIDField: sourceID}
	var offset interface{}
	for {
		page, err := e.index.Scroll(ctx, filter, 128, offset)
		if err != nil {
			return 0, err
		}
		for _, point := range page.Points {
			if rev := revisionFromPayload(point.Payload); rev > highest {
				highest = rev
			}
		}
		if page.NextOffset == nil || len(page.Points) == 0 {
			break
		}
		offset = page.NextOffset
	}
	return highest + 1, nil
}

func revisionFromPayload(payload map[string]interface{}) int {
	doc, ok := payload["doc"].(map[string]interface{})
	if !ok {
		return 0
	}
	switch rev := doc["revision"].(type) {
	case float64:
		return int(rev)
	case int:
		return rev
	case json.Number:
		if n, err := rev.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

func vectorDimension(vectors [][]float32) int {
	for _, vec := range vectors {
		if len(vec) > 0 {
			return len(vec)
		}
	}
	return 0
}
