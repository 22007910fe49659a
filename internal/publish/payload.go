package publish

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/docloom/docloom/internal/chunker"
	"github.com/docloom/docloom/internal/session"
	"github.com/docloom/docloom/internal/token"
)

// sourceIDFor derives the stable identifier grouping all published
// entries originating from one ingested document. It depends only on the
// source identity, never on session or publish state.
func sourceIDFor(sourceType, sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceType) + "|" + strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// entryPayload builds the index payload for one fragment. Entries are
// content-addressed by (random point id, doc.source_id) and replaced
// wholesale on republish, never updated in place.
func entryPayload(sess *session.Session, frag chunker.TypedFragment, position, revision int, sourceID, publishedBy string, now time.Time) map[string]interface{} {
	issues := qualityIssues(frag)
	score := 1.0
	if len(issues) > 0 {
		score = 0.5
	}
	editCount := 0
	if frag.Dirty {
		editCount = 1
	}
	return map[string]interface{}{
		"doc": map[string]interface{}{
			"source_id":        sourceID,
			"source_type":      sess.SourceType,
			"url":              sess.SourceURL,
			"title":            sess.Title,
			"revision":         revision,
			"last_modified_at": now.Format(time.RFC3339),
			"last_modified_by": publishedBy,
			"ingest_date":      sess.CreatedAt.Format(time.RFC3339),
		},
		"chunk": map[string]interface{}{
			"id":           frag.ID,
			"index":        position,
			"type":         frag.Type,
			"heading_path": frag.HeadingPath,
			"section":      frag.Section,
			"text":         frag.Text,
			"content_hash": contentHash(frag.Text),
			"lang":         frag.Lang,
		},
		"tags": []string{},
		"acl":  []string{},
		"editor": map[string]interface{}{
			"position":       position,
			"quality_score":  score,
			"quality_issues": issues,
			"last_edited_at": sess.UpdatedAt.Format(time.RFC3339),
			"edit_count":     editCount,
		},
	}
}

func qualityIssues(frag chunker.TypedFragment) []string {
	issues := []string{}
	if strings.TrimSpace(frag.Text) == "" {
		issues = append(issues, "empty_text")
	}
	if token.Estimate(frag.Text) > 2048 {
		issues = append(issues, "oversized")
	}
	return issues
}
