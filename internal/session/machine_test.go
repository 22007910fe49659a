package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docloom/docloom/internal/chunker"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/kvstore"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return NewMachine(NewStore(kv, 0), nil)
}

func createWithChunks(t *testing.T, m *Machine, texts ...string) *Session {
	t.Helper()
	sess := &Session{SourceType: "text", SourceURL: "file:///doc.txt"}
	sess, err := m.Create(context.Background(), sess)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, text := range texts {
		sess.Chunks = append(sess.Chunks, chunker.TypedFragment{
			Fragment: chunker.NewFragment(text),
			Type:     "text",
		})
	}
	if err := m.Store().Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	return sess
}

func TestCreateDefaults(t *testing.T) {
	m := newTestMachine(t)
	sess, err := m.Create(context.Background(), &Session{SourceType: "text"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected generated session id")
	}
	if sess.Status != StatusDraft {
		t.Fatalf("expected DRAFT, got %s", sess.Status)
	}
}

func TestGenerateBoundary(t *testing.T) {
	m := newTestMachine(t)
	sess, err := m.Create(context.Background(), &Session{
		SourceType: "text",
		RawContent: "A single small document.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, err = m.Generate(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sess.Chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(sess.Chunks))
	}
	if sess.Chunks[0].Dirty {
		t.Fatalf("generated chunks must not be dirty")
	}
	if sess.Chunks[0].Type != "text" {
		t.Fatalf("boundary chunks default to type text, got %q", sess.Chunks[0].Type)
	}
}

func TestGenerateRequiresDraftAndContent(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, &Session{SourceType: "text"})
	if _, err := m.Generate(ctx, sess.ID); !errors.Is(err, &errs.Error{Kind: errs.KindInvalidState}) {
		t.Fatalf("expected invalid_state without content, got %v", err)
	}

	sess2, _ := m.Create(ctx, &Session{SourceType: "text", RawContent: "content", Status: StatusPreview})
	if _, err := m.Generate(ctx, sess2.ID); !errors.Is(err, &errs.Error{Kind: errs.KindInvalidState}) {
		t.Fatalf("expected invalid_state outside DRAFT, got %v", err)
	}
}

func TestMergeHelloWorld(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "Hello ", "world")
	c1, c2 := sess.Chunks[0].ID, sess.Chunks[1].ID

	merged, err := m.Merge(context.Background(), sess.ID, []string{c1, c2})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Chunks) != 1 {
		t.Fatalf("expected one chunk after merge, got %d", len(merged.Chunks))
	}
	frag := merged.Chunks[0]
	if frag.Text != "Hello world" {
		t.Fatalf("merged text = %q, want %q", frag.Text, "Hello world")
	}
	if !frag.Dirty {
		t.Fatalf("merged fragment must be dirty")
	}
	if frag.ID == c1 || frag.ID == c2 {
		t.Fatalf("merged fragment must carry a fresh id")
	}
}

func TestMergeUsesSessionOrder(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "first ", "second ", "third")
	c1, c3 := sess.Chunks[0].ID, sess.Chunks[2].ID

	// Request order is reversed; session order must govern.
	merged, err := m.Merge(context.Background(), sess.ID, []string{c3, c1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Chunks) != 2 {
		t.Fatalf("expected two chunks, got %d", len(merged.Chunks))
	}
	if merged.Chunks[0].Text != "first third" {
		t.Fatalf("merged text = %q, want %q", merged.Chunks[0].Text, "first third")
	}
	if merged.Chunks[1].Text != "second " {
		t.Fatalf("untouched chunk moved: %q", merged.Chunks[1].Text)
	}
}

func TestMergeAssociativeOnContent(t *testing.T) {
	ctx := context.Background()

	mAll := newTestMachine(t)
	all := createWithChunks(t, mAll, "A", "B", "C")
	all, err := mAll.Merge(ctx, all.ID, []string{all.Chunks[0].ID, all.Chunks[1].ID, all.Chunks[2].ID})
	if err != nil {
		t.Fatalf("merge all: %v", err)
	}

	mPair := newTestMachine(t)
	pair := createWithChunks(t, mPair, "A", "B", "C")
	pair, err = mPair.Merge(ctx, pair.ID, []string{pair.Chunks[0].ID, pair.Chunks[1].ID})
	if err != nil {
		t.Fatalf("merge pair: %v", err)
	}
	pair, err = mPair.Merge(ctx, pair.ID, []string{pair.Chunks[0].ID, pair.Chunks[1].ID})
	if err != nil {
		t.Fatalf("merge rest: %v", err)
	}

	if all.Chunks[0].Text != pair.Chunks[0].Text {
		t.Fatalf("merge is not associative: %q vs %q", all.Chunks[0].Text, pair.Chunks[0].Text)
	}
}

func TestMergeValidation(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "a", "b")
	ctx := context.Background()

	if _, err := m.Merge(ctx, sess.ID, []string{sess.Chunks[0].ID}); !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("expected validation for single id, got %v", err)
	}
	if _, err := m.Merge(ctx, sess.ID, []string{sess.Chunks[0].ID, "ghost"}); !errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
		t.Fatalf("expected not_found for unknown id, got %v", err)
	}
}

func TestSplitRequiresElevatedRole(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "some text to split")

	_, err := m.Split(context.Background(), sess.ID, SplitRequest{
		ChunkID:     sess.Chunks[0].ID,
		SplitPoints: []int{4},
	})
	if !errors.Is(err, &errs.Error{Kind: errs.KindForbidden}) {
		t.Fatalf("expected forbidden without elevated role, got %v", err)
	}
}

func TestSplitThenMergeReconstructs(t *testing.T) {
	m := newTestMachine(t)
	original := "alpha beta gamma delta"
	sess := createWithChunks(t, m, original)
	ctx := context.Background()

	sess, err := m.Split(ctx, sess.ID, SplitRequest{
		ChunkID:     sess.Chunks[0].ID,
		SplitPoints: []int{6, 11},
		Elevated:    true,
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(sess.Chunks) != 3 {
		t.Fatalf("expected 3 pieces, got %d", len(sess.Chunks))
	}
	for _, frag := range sess.Chunks {
		if !frag.Dirty {
			t.Fatalf("split pieces must be dirty")
		}
	}

	ids := []string{sess.Chunks[0].ID, sess.Chunks[1].ID, sess.Chunks[2].ID}
	sess, err = m.Merge(ctx, sess.ID, ids)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if sess.Chunks[0].Text != original {
		t.Fatalf("split then merge = %q, want %q", sess.Chunks[0].Text, original)
	}
}

func TestSplitValidation(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "abcdef")
	ctx := context.Background()
	id := sess.Chunks[0].ID

	cases := []SplitRequest{
		{ChunkID: id, Elevated: true},
		{ChunkID: id, SplitPoints: []int{2}, NewTextBlocks: []string{"ab", "cdef"}, Elevated: true},
		{ChunkID: id, SplitPoints: []int{3, 2}, Elevated: true},
		{ChunkID: id, SplitPoints: []int{0}, Elevated: true},
		{ChunkID: id, SplitPoints: []int{6}, Elevated: true},
		{ChunkID: id, NewTextBlocks: []string{"only one"}, Elevated: true},
	}
	for i, req := range cases {
		if _, err := m.Split(ctx, sess.ID, req); !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestSplitWithNewTextBlocks(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "before", "replace me", "after")

	sess, err := m.Split(context.Background(), sess.ID, SplitRequest{
		ChunkID:       sess.Chunks[1].ID,
		NewTextBlocks: []string{"replace", "me"},
		Elevated:      true,
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	texts := make([]string, len(sess.Chunks))
	for i, frag := range sess.Chunks {
		texts[i] = frag.Text
	}
	want := []string{"before", "replace", "me", "after"}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestUpdateSetsDirty(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "old text")

	sess, err := m.Update(context.Background(), sess.ID, sess.Chunks[0].ID, "new text")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sess.Chunks[0].Text != "new text" || !sess.Chunks[0].Dirty {
		t.Fatalf("update did not apply: %+v", sess.Chunks[0])
	}
}

func TestReorder(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "a", "b", "c")
	ctx := context.Background()
	a, b, c := sess.Chunks[0].ID, sess.Chunks[1].ID, sess.Chunks[2].ID

	sess, err := m.Reorder(ctx, sess.ID, []string{c, a, b})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if sess.Chunks[0].Text != "c" || sess.Chunks[1].Text != "a" || sess.Chunks[2].Text != "b" {
		t.Fatalf("unexpected order: %v", sess.Chunks)
	}

	if _, err := m.Reorder(ctx, sess.ID, []string{a, b}); !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("partial reorder must fail, got %v", err)
	}
	if _, err := m.Reorder(ctx, sess.ID, []string{a, a, b}); !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("duplicate reorder must fail, got %v", err)
	}
}

func TestRemoveLastChunkAllowed(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "only")

	sess, err := m.Remove(context.Background(), sess.ID, sess.Chunks[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(sess.Chunks) != 0 {
		t.Fatalf("expected empty session, got %d chunks", len(sess.Chunks))
	}
}

func TestPreviewTransitionAndWarnings(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "fine", "   ")

	sess, warnings, err := m.Preview(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if sess.Status != StatusPreview {
		t.Fatalf("expected PREVIEW, got %s", sess.Status)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for the empty chunk, got %v", warnings)
	}

	// PREVIEW again is an invalid transition.
	if _, _, err := m.Preview(context.Background(), sess.ID); !errors.Is(err, &errs.Error{Kind: errs.KindInvalidState}) {
		t.Fatalf("expected invalid_state on double preview, got %v", err)
	}
}

func TestPreviewDuplicateIDsBlock(t *testing.T) {
	m := newTestMachine(t)
	sess := createWithChunks(t, m, "a")
	sess.Chunks = append(sess.Chunks, sess.Chunks[0])
	if err := m.Store().Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, _, err := m.Preview(context.Background(), sess.ID); !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("duplicate ids must block preview, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	sess := createWithChunks(t, m, "a")

	if err := m.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Store().Load(ctx, sess.ID); !errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
		t.Fatalf("expected session gone, got %v", err)
	}

	published, _ := m.Create(ctx, &Session{SourceType: "text", Status: StatusPublished})
	if err := m.Delete(ctx, published.ID); !errors.Is(err, &errs.Error{Kind: errs.KindInvalidState}) {
		t.Fatalf("published sessions must not be deletable, got %v", err)
	}
}

func TestMutationRejectedOnMissingSession(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.Update(context.Background(), "gone", "c", "text"); !errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
		t.Fatalf("expected not_found for missing session, got %v", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	first, _ := m.Create(ctx, &Session{SourceType: "text"})
	time.Sleep(5 * time.Millisecond)
	second, _ := m.Create(ctx, &Session{SourceType: "text"})
	time.Sleep(5 * time.Millisecond)
	// Touching the first session promotes it.
	first.Title = "touched"
	if err := m.Store().Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	sessions, err := m.Store().List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != first.ID || sessions[1].ID != second.ID {
		t.Fatalf("unexpected recency order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}
