package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"contractlens/pkg/domain"
	"contractlens/pkg/queue"
	"contractlens/pkg/store"
)

type fakeObjects struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.JobStatus
}

func (q *fakeQueue) Enqueue(_ context.Context, contractID string) (queue.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := queue.JobStatus{ID: "job-" + contractID, ContractID: contractID, Status: queue.StatusQueued}
	q.jobs = append(q.jobs, job)
	return job, nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func newTestApp(t *testing.T) (*App, *fakeQueue, *fakeObjects) {
	t.Helper()
	sessions := store.NewJWTSessionStore("test-secret-test-secret", time.Hour)
	objects := newFakeObjects()
	jobs := &fakeQueue{}
	a := New(store.NewMemoryStore(), sessions, objects, jobs, stubGenerator{reply: "analysis result"}, Config{
		StorageTimeout: 100 * time.Millisecond,
	})
	return a, jobs, objects
}

func signUpUser(t *testing.T, a *App, email string) domain.User {
	t.Helper()
	user, _, err := a.SignUp(context.Background(), email, "", "longenough")
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return user
}

func uploadReadyContract(t *testing.T, a *App, jobs *fakeQueue, owner domain.User, text string) domain.Contract {
	t.Helper()
	ctx := context.Background()
	c, err := a.UploadContract(ctx, owner, "agreement.txt", int64(len(text)), "text/plain", strings.NewReader(text))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(jobs.jobs) == 0 {
		t.Fatal("no extraction job enqueued")
	}
	if err := a.ProcessExtraction(ctx, jobs.jobs[len(jobs.jobs)-1]); err != nil {
		t.Fatalf("extract: %v", err)
	}
	ready, err := a.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return ready
}

func TestSignUpFirstUserIsAdmin(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	first, token, err := a.SignUp(ctx, "alice@example.com", "Alice", "longenough")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if first.Role != domain.RoleAdmin {
		t.Fatalf("first user role = %q, want admin", first.Role)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	second := signUpUser(t, a, "bob@example.com")
	if second.Role != domain.RoleUser {
		t.Fatalf("second user role = %q, want user", second.Role)
	}
	if second.Name != "bob" {
		t.Fatalf("default name = %q, want email local part", second.Name)
	}

	if _, _, err := a.SignUp(ctx, "alice@example.com", "", "longenough"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email error = %v, want ErrEmailTaken", err)
	}
	if _, _, err := a.SignUp(ctx, "no-at-sign", "", "longenough"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := a.SignUp(ctx, "c@example.com", "", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password error = %v, want ErrInvalidInput", err)
	}
}

func TestLoginAndToken(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	signUpUser(t, a, "alice@example.com")

	user, token, err := a.Login(ctx, "ALICE@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resolved, err := a.UserFromToken(ctx, token)
	if err != nil {
		t.Fatalf("user from token: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("token resolved to %q, want %q", resolved.ID, user.ID)
	}

	if _, _, err := a.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.UserFromToken(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("garbage token error = %v, want ErrUnauthenticated", err)
	}
}

func TestUploadAndExtractFlow(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")

	text := "Clause 1. Payment terms.\r\n\r\nClause 2. Termination."
	c, err := a.UploadContract(ctx, owner, "nda.txt", int64(len(text)), "text/plain", strings.NewReader(text))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if c.Status != domain.StatusQueued {
		t.Fatalf("status after upload = %q, want queued", c.Status)
	}
	if c.Title != "nda" {
		t.Fatalf("title = %q", c.Title)
	}
	if _, err := a.ContractText(ctx, c.ID); !errors.Is(err, ErrContractNotReady) {
		t.Fatalf("text before extraction error = %v, want ErrContractNotReady", err)
	}

	if err := a.ProcessExtraction(ctx, jobs.jobs[0]); err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, err := a.ContractText(ctx, c.ID)
	if err != nil {
		t.Fatalf("contract text: %v", err)
	}
	want := "Clause 1. Payment terms.\n\nClause 2. Termination."
	if got != want {
		t.Fatalf("canonical text = %q, want %q", got, want)
	}

	ready, _ := a.GetContract(ctx, c.ID)
	if ready.Status != domain.StatusReady || ready.TextLen != len([]rune(want)) {
		t.Fatalf("contract after extraction: %+v", ready)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")

	if _, err := a.UploadContract(ctx, owner, "malware.exe", 10, "application/octet-stream", strings.NewReader("xxxxxxxxxx")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad extension error = %v, want ErrInvalidInput", err)
	}
	huge := int64(21 << 20)
	if _, err := a.UploadContract(ctx, owner, "big.pdf", huge, "application/pdf", strings.NewReader("")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized error = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteContractAuthorization(t *testing.T) {
	a, jobs, objects := newTestApp(t)
	ctx := context.Background()
	admin := signUpUser(t, a, "admin@example.com")
	owner := signUpUser(t, a, "owner@example.com")
	other := signUpUser(t, a, "other@example.com")

	c := uploadReadyContract(t, a, jobs, owner, "some contract text")

	if err := a.DeleteContract(ctx, other, c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger delete error = %v, want ErrForbidden", err)
	}
	if err := a.DeleteContract(ctx, admin, c.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := a.GetContract(ctx, c.ID); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("after delete error = %v, want ErrContractNotFound", err)
	}
	objects.mu.Lock()
	remaining := len(objects.blobs)
	objects.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected blob removed, %d left", remaining)
	}
}

func TestAnalyze(t *testing.T) {
	a, jobs, _ := newTestApp(t)
	ctx := context.Background()
	owner := signUpUser(t, a, "alice@example.com")
	c := uploadReadyContract(t, a, jobs, owner, "the contract text")

	if _, err := a.Analyze(ctx, c.ID, domain.AnalysisCustom, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("custom without prompt error = %v, want ErrInvalidInput", err)
	}
	if _, err := a.Analyze(ctx, c.ID, domain.AnalysisKind("weird"), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown kind error = %v, want ErrInvalidInput", err)
	}

	first, err := a.Analyze(ctx, c.ID, domain.AnalysisSummary, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.Result != "analysis result" || first.Kind != domain.AnalysisSummary {
		t.Fatalf("unexpected analysis: %+v", first)
	}

	second, err := a.Analyze(ctx, c.ID, domain.AnalysisClauses, "")
	if err != nil {
		t.Fatalf("analyze clauses: %v", err)
	}
	got, err := a.ListAnalyses(ctx, c.ID)
	if err != nil {
		t.Fatalf("list analyses: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID {
		t.Fatalf("analyses = %+v, want newest first", got)
	}

	if _, err := a.Analyze(ctx, "missing", domain.AnalysisSummary, ""); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("missing contract error = %v, want ErrContractNotFound", err)
	}
}
