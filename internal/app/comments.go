package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"contractlens/pkg/domain"
	"contractlens/pkg/render"
	"contractlens/pkg/textrange"
)

const (
	appendAttempts = 3
	appendBackoff  = 50 * time.Millisecond
)

// AddComment validates and persists one comment on a ready contract. The
// highlight selection is validated against the contract's canonical text and
// its quoted text is taken from that text, never from the client. The
// resolved record (ID, timestamp) is returned synchronously; broadcasting is
// the caller's job and happens only after a successful persist.
func (a *App) AddComment(ctx context.Context, author domain.User, contractID, body string, sel *domain.TextRange) (domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, ErrEmptyBody
	}

	contract, err := a.readyContract(ctx, contractID)
	if err != nil {
		return domain.Comment{}, err
	}

	var highlight *domain.Highlight
	if sel != nil {
		r := textrange.TextRange{Start: sel.Start, End: sel.End}
		if err := textrange.Validate(r, contract.TextLen); err != nil {
			return domain.Comment{}, err
		}
		highlight = &domain.Highlight{
			Text:  textrange.Slice(contract.Text, r),
			Range: *sel,
		}
	}

	comment := domain.Comment{
		ID:         uuid.NewString(),
		ContractID: contract.ID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Body:       body,
		Highlight:  highlight,
	}
	return a.appendWithRetry(ctx, comment)
}

// appendWithRetry persists the comment with a per-attempt timeout and a
// bounded backoff for transient storage failures.
func (a *App) appendWithRetry(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	var lastErr error
	backoff := appendBackoff
	for attempt := 0; attempt < appendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Comment{}, storageErr(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		opCtx, cancel := context.WithTimeout(ctx, a.cfg.StorageTimeout)
		saved, err := a.store.AppendComment(opCtx, c)
		cancel()
		if err == nil {
			return saved, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return domain.Comment{}, storageErr(lastErr)
}

// ListComments returns the full ordered comment log for a contract.
func (a *App) ListComments(ctx context.Context, contractID string) ([]domain.Comment, error) {
	if _, err := a.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	comments, err := a.store.ListComments(ctx, contractID)
	if err != nil {
		return nil, storageErr(err)
	}
	return comments, nil
}

// RenderContract merges the canonical text with every comment highlight into
// an ordered segment list.
func (a *App) RenderContract(ctx context.Context, contractID string) ([]render.Segment, error) {
	contract, err := a.readyContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	comments, err := a.store.ListComments(ctx, contractID)
	if err != nil {
		return nil, storageErr(err)
	}
	highlights := make([]render.Highlight, 0, len(comments))
	for _, c := range comments {
		if c.Highlight == nil {
			continue
		}
		highlights = append(highlights, render.Highlight{
			Start:     c.Highlight.Range.Start,
			End:       c.Highlight.Range.End,
			CommentID: c.ID,
			Label:     c.AuthorName,
		})
	}
	return render.Render(contract.Text, highlights), nil
}
