package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/chunker"
	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/token"
)

// warnFragmentTokens is the soft per-fragment size guard checked during
// preview validation.
const warnFragmentTokens = 2048

// SemanticChunker generates typed fragments from raw text via an LLM.
type SemanticChunker interface {
	Chunk(ctx context.Context, text string) ([]chunker.TypedFragment, error)
}

// Machine applies lifecycle transitions and fragment mutations to
// sessions. Every mutation is a load, transform, save sequence; the save
// refreshes the session TTL.
type Machine struct {
	store    *Store
	semantic SemanticChunker
}

func NewMachine(store *Store, semantic SemanticChunker) *Machine {
	return &Machine{store: store, semantic: semantic}
}

// Create registers a new DRAFT session for an ingested source.
func (m *Machine) Create(ctx context.Context, sess *Session) (*Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = StatusDraft
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Generate replaces the fragment list wholesale by running the session's
// configured chunking algorithm over the raw content. Requires DRAFT.
func (m *Machine) Generate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusDraft {
		return nil, errs.InvalidState("chunks can only be generated in DRAFT, session is %s", sess.Status)
	}
	if strings.TrimSpace(sess.RawContent) == "" {
		return nil, errs.InvalidState("session %s has no raw content to chunk", sessionID)
	}
	var fragments []chunker.TypedFragment
	switch sess.Chunking.Mode {
	case ModeSemantic:
		if m.semantic == nil {
			return nil, errs.InvalidState("semantic chunking is not configured")
		}
		fragments, err = m.semantic.Chunk(ctx, sess.RawContent)
		if err != nil {
			return nil, err
		}
	default:
		plain := chunker.Split(sess.RawContent, chunker.Config{
			ChunkSize: sess.Chunking.ChunkSize,
			Overlap:   sess.Chunking.Overlap,
		})
		fragments = make([]chunker.TypedFragment, len(plain))
		for i, frag := range plain {
			fragments[i] = chunker.TypedFragment{Fragment: frag, Type: "text"}
		}
	}
	sess.Chunks = fragments
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	common.Logger().Info("session: chunks generated", "session", sessionID, "mode", sess.Chunking.Mode, "chunks", len(fragments))
	return sess, nil
}

// Merge concatenates the identified fragments in the order they appear
// in the session, not the order given in the request, and replaces the
// span with one dirty fragment bearing a fresh id.
func (m *Machine) Merge(ctx context.Context, sessionID string, ids []string) (*Session, error) {
	sess, err := m.loadEditable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, errs.Validation("merge requires at least two chunk ids")
	}
	requested := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := requested[id]; dup {
			return nil, errs.Validation("duplicate chunk id %s in merge request", id)
		}
		requested[id] = struct{}{}
		if sess.ChunkIndex(id) < 0 {
			return nil, errs.NotFound("chunk %s not found in session %s", id, sessionID)
		}
	}
	var text strings.Builder
	insertAt := -1
	kept := make([]chunker.TypedFragment, 0, len(sess.Chunks))
	for _, frag := range sess.Chunks {
		if _, ok := requested[frag.ID]; !ok {
			kept = append(kept, frag)
			continue
		}
		text.WriteString(frag.Text)
		if insertAt < 0 {
			insertAt = len(kept)
		}
	}
	merged := chunker.TypedFragment{Fragment: chunker.Fragment{ID: uuid.NewString(), Text: text.String(), Dirty: true}, Type: "text"}
	kept = append(kept, chunker.TypedFragment{})
	copy(kept[insertAt+1:], kept[insertAt:])
	kept[insertAt] = merged
	sess.Chunks = kept
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SplitRequest carries exactly one of SplitPoints or NewTextBlocks.
// SplitPoints are character offsets into the target fragment's text;
// NewTextBlocks directly supply the replacement texts in order.
type SplitRequest struct {
	ChunkID       string
	SplitPoints   []int
	NewTextBlocks []string
	// Elevated reflects the caller's role flag; the check itself is an
	// external collaborator's decision.
	Elevated bool
}

// Split replaces one fragment with ordered sub-fragments.
func (m *Machine) Split(ctx context.Context, sessionID string, req SplitRequest) (*Session, error) {
	if !req.Elevated {
		return nil, errs.Forbidden("splitting chunks requires an elevated role")
	}
	sess, err := m.loadEditable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	hasPoints := len(req.SplitPoints) > 0
	hasBlocks := len(req.NewTextBlocks) > 0
	if hasPoints == hasBlocks {
		return nil, errs.Validation("provide exactly one of split_points or new_text_blocks")
	}
	idx := sess.ChunkIndex(req.ChunkID)
	if idx < 0 {
		return nil, errs.NotFound("chunk %s not found in session %s", req.ChunkID, sessionID)
	}
	var texts []string
	if hasPoints {
		texts, err = splitAtPoints(sess.Chunks[idx].Text, req.SplitPoints)
		if err != nil {
			return nil, err
		}
	} else {
		if len(req.NewTextBlocks) < 2 {
			return nil, errs.Validation("new_text_blocks must contain at least two entries")
		}
		texts = req.NewTextBlocks
	}
	pieces := make([]chunker.TypedFragment, len(texts))
	for i, text := range texts {
		pieces[i] = chunker.TypedFragment{
			Fragment:    chunker.Fragment{ID: uuid.NewString(), Text: text, Dirty: true},
			Type:        sess.Chunks[idx].Type,
			HeadingPath: sess.Chunks[idx].HeadingPath,
			Section:     sess.Chunks[idx].Section,
			Lang:        sess.Chunks[idx].Lang,
		}
	}
	replaced := make([]chunker.TypedFragment, 0, len(sess.Chunks)+len(pieces)-1)
	replaced = append(replaced, sess.Chunks[:idx]...)
	replaced = append(replaced, pieces...)
	replaced = append(replaced, sess.Chunks[idx+1:]...)
	sess.Chunks = replaced
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func splitAtPoints(text string, points []int) ([]string, error) {
	runes := []rune(text)
	prev := 0
	segments := make([]string, 0, len(points)+1)
	for _, p := range points {
		if p <= prev || p >= len(runes) {
			return nil, errs.Validation("split points must be strictly increasing and inside the text (got %d, length %d)", p, len(runes))
		}
		segments = append(segments, string(runes[prev:p]))
		prev = p
	}
	segments = append(segments, string(runes[prev:]))
	return segments, nil
}

// Update replaces a single fragment's text and marks it dirty.
func (m *Machine) Update(ctx context.Context, sessionID, chunkID, text string) (*Session, error) {
	sess, err := m.loadEditable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := sess.ChunkIndex(chunkID)
	if idx < 0 {
		return nil, errs.NotFound("chunk %s not found in session %s", chunkID, sessionID)
	}
	sess.Chunks[idx].Text = text
	sess.Chunks[idx].Dirty = true
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reorder applies a full permutation of the current fragment ids.
func (m *Machine) Reorder(ctx context.Context, sessionID string, ids []string) (*Session, error) {
	sess, err := m.loadEditable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(sess.Chunks) {
		return nil, errs.Validation("reorder must list all %d chunk ids, got %d", len(sess.Chunks), len(ids))
	}
	seen := make(map[string]struct{}, len(ids))
	ordered := make([]chunker.TypedFragment, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, errs.Validation("duplicate chunk id %s in reorder request", id)
		}
		seen[id] = struct{}{}
		idx := sess.ChunkIndex(id)
		if idx < 0 {
			return nil, errs.NotFound("chunk %s not found in session %s", id, sessionID)
		}
		ordered = append(ordered, sess.Chunks[idx])
	}
	sess.Chunks = ordered
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Remove deletes a fragment. Removing the last fragment is permitted;
// sessions may be empty pre-publish.
func (m *Machine) Remove(ctx context.Context, sessionID, chunkID string) (*Session, error) {
	sess, err := m.loadEditable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := sess.ChunkIndex(chunkID)
	if idx < 0 {
		return nil, errs.NotFound("chunk %s not found in session %s", chunkID, sessionID)
	}
	sess.Chunks = append(sess.Chunks[:idx], sess.Chunks[idx+1:]...)
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Preview validates the draft and transitions it DRAFT -> PREVIEW. Only
// hard errors block the transition; warnings are returned alongside.
func (m *Machine) Preview(ctx context.Context, sessionID string) (*Session, []string, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status != StatusDraft {
		return nil, nil, errs.InvalidState("preview requires DRAFT, session is %s", sess.Status)
	}
	warnings, err := validateChunks(sess)
	if err != nil {
		return nil, nil, err
	}
	sess.Status = StatusPreview
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, nil, err
	}
	return sess, warnings, nil
}

func validateChunks(sess *Session) ([]string, error) {
	seen := make(map[string]struct{}, len(sess.Chunks))
	var warnings []string
	for i, frag := range sess.Chunks {
		if _, dup := seen[frag.ID]; dup {
			return nil, errs.Validation("duplicate chunk id %s", frag.ID)
		}
		seen[frag.ID] = struct{}{}
		if strings.TrimSpace(frag.Text) == "" {
			warnings = append(warnings, fmt.Sprintf("chunk %s at position %d is empty", frag.ID, i))
		}
		if token.Estimate(frag.Text) > warnFragmentTokens {
			warnings = append(warnings, fmt.Sprintf("chunk %s exceeds %d tokens", frag.ID, warnFragmentTokens))
		}
	}
	return warnings, nil
}

// Delete transitions the session to DELETED and removes it from the
// store. Published sessions cannot be deleted.
func (m *Machine) Delete(ctx context.Context, sessionID string) error {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusPublished {
		return errs.InvalidState("published sessions cannot be deleted")
	}
	sess.Status = StatusDeleted
	return m.store.Delete(ctx, sessionID)
}

// Store exposes the backing draft store.
func (m *Machine) Store() *Store { return m.store }

func (m *Machine) loadEditable(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.editable() {
		return nil, errs.InvalidState("session %s is %s and cannot be edited", sessionID, sess.Status)
	}
	return sess, nil
}
