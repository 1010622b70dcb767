package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"contractlens/pkg/domain"
	"contractlens/pkg/store"
)

func TestAddCommentRejectsWhitespaceBody(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the quick brown fox")

	if _, err := a.AddComment(context.Background(), owner, c.ID, "   \n\t ", nil); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("whitespace body error = %v, want ErrEmptyBody", err)
	}
}

func TestAddCommentRejectsInvalidRange(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the quick brown fox")

	cases := []domain.TextRange{
		{Start: 5, End: 3},
		{Start: -1, End: 4},
		{Start: 2, End: 2},
		{Start: 0, End: c.TextLen + 1},
	}
	for _, r := range cases {
		if _, err := a.AddComment(context.Background(), owner, c.ID, "note", &r); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("range %+v error = %v, want ErrInvalidRange", r, err)
		}
	}
}

func TestAddCommentResolvesHighlightFromCanonicalText(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the quick brown fox")

	sel := domain.TextRange{Start: 4, End: 9}
	got, err := a.AddComment(context.Background(), owner, c.ID, "about this word", &sel)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Fatalf("record not resolved: %+v", got)
	}
	if got.Highlight == nil || got.Highlight.Text != "quick" {
		t.Fatalf("highlight = %+v, want text quoted from the canonical text", got.Highlight)
	}
	if got.AuthorID != owner.ID || got.AuthorName != owner.Name {
		t.Fatalf("author binding wrong: %+v", got)
	}
}

func TestAddCommentStatusGuards(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")

	if _, err := a.AddComment(ctx, owner, "missing", "note", nil); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("missing contract error = %v, want ErrContractNotFound", err)
	}

	queued, err := a.UploadContract(ctx, owner, "late.txt", 4, "text/plain", strings.NewReader("text"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := a.AddComment(ctx, owner, queued.ID, "note", nil); !errors.Is(err, ErrContractNotReady) {
		t.Fatalf("queued contract error = %v, want ErrContractNotReady", err)
	}
}

func TestListCommentsOrderedByArrival(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	alice := signUpUser(t, a, "alice@example.com")
	bob := signUpUser(t, a, "bob@example.com")
	c := uploadReadyContract(t, a, jobs, alice, "the quick brown fox")

	authors := []domain.User{alice, bob, alice}
	bodies := []string{"first", "second", "third"}
	for i, body := range bodies {
		if _, err := a.AddComment(ctx, authors[i], c.ID, body, nil); err != nil {
			t.Fatalf("add %q: %v", body, err)
		}
	}

	got, err := a.ListComments(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d comments", len(got))
	}
	for i, body := range bodies {
		if got[i].Body != body {
			t.Fatalf("comment %d = %q, want %q", i, got[i].Body, body)
		}
	}
}

// failingStore wraps the memory store with an AppendComment that always
// fails, counting the attempts the retry loop makes.
type failingStore struct {
	store.Store
	attempts int
	err      error
}

func (f *failingStore) AppendComment(_ context.Context, _ domain.Comment) (domain.Comment, error) {
	f.attempts++
	return domain.Comment{}, f.err
}

func TestAddCommentWrapsStorageFailure(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the quick brown fox")

	failing := &failingStore{Store: a.store, err: errors.New("connection refused")}
	a.store = failing

	_, err := a.AddComment(ctx, owner, c.ID, "note", nil)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("error = %v, want ErrStorageUnavailable", err)
	}
	if failing.attempts != appendAttempts {
		t.Fatalf("attempts = %d, want %d", failing.attempts, appendAttempts)
	}
}

func TestAddCommentSurfacesTimeout(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the quick brown fox")

	a.store = &failingStore{Store: a.store, err: context.DeadlineExceeded}

	_, err := a.AddComment(ctx, owner, c.ID, "note", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestRenderContractRoundTrip(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")
	text := "the quick brown fox jumps"
	c := uploadReadyContract(t, a, jobs, owner, text)

	sel := domain.TextRange{Start: 4, End: 9}
	comment, err := a.AddComment(ctx, owner, c.ID, "flagged", &sel)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}

	segments, err := a.RenderContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var rebuilt strings.Builder
	var highlighted int
	for _, seg := range segments {
		rebuilt.WriteString(seg.Text)
		if seg.Highlighted {
			highlighted++
			if seg.CommentID != comment.ID || seg.Text != "quick" {
				t.Fatalf("unexpected highlighted segment: %+v", seg)
			}
		}
	}
	if rebuilt.String() != text {
		t.Fatalf("segments rebuild %q, want %q", rebuilt.String(), text)
	}
	if highlighted != 1 {
		t.Fatalf("highlighted segments = %d, want 1", highlighted)
	}
}
