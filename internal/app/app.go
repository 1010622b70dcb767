// Package app holds the application logic between the HTTP/WebSocket layer
// and the stores: auth, contract lifecycle, AI analyses, and the comment log.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"contractlens/pkg/ai"
	"contractlens/pkg/auth"
	"contractlens/pkg/domain"
	"contractlens/pkg/pdftext"
	"contractlens/pkg/queue"
	"contractlens/pkg/storage"
	"contractlens/pkg/store"
)

// Enqueuer pushes extraction jobs. Satisfied by queue.RedisJobQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, contractID string) (queue.JobStatus, error)
}

// Config tunes the application layer. Zero values get sane defaults.
type Config struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	StorageTimeout    time.Duration
	AITimeout         time.Duration
	PresignExpiry     time.Duration
	MaxPromptRunes    int
}

// App wires the stores, blob storage, job queue, and text generator together.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	jobs     Enqueuer
	gen      ai.TextGenerator
	cfg      Config
}

func New(st store.Store, sessions store.SessionStore, objects storage.ObjectStore, jobs Enqueuer, gen ai.TextGenerator, cfg Config) *App {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf", ".txt"}
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 2 * time.Second
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 90 * time.Second
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	if cfg.MaxPromptRunes <= 0 {
		cfg.MaxPromptRunes = 48000
	}
	return &App{store: st, sessions: sessions, objects: objects, jobs: jobs, gen: gen, cfg: cfg}
}

// SignUp registers a user and opens a session. The first registered user
// becomes admin.
func (a *App) SignUp(ctx context.Context, email, name, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, "", fmt.Errorf("%w: valid email required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return domain.User{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	taken, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", storageErr(err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}
	role := domain.RoleUser
	if count, err := a.store.UserCount(ctx); err != nil {
		return domain.User{}, "", storageErr(err)
	} else if count == 0 {
		role = domain.RoleAdmin
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, "", storageErr(err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and opens a session.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", storageErr(err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session token where the backend supports it.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a session token to its user.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrUnauthenticated
	}
	user, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, storageErr(err)
	}
	if !found {
		return domain.User{}, ErrUnauthenticated
	}
	return user, nil
}

// UploadContract stores the blob, records the contract as queued, and
// enqueues the extraction job.
func (a *App) UploadContract(ctx context.Context, owner domain.User, filename string, size int64, contentType string, r io.Reader) (domain.Contract, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !a.extensionAllowed(ext) {
		return domain.Contract{}, fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, ext)
	}
	if size <= 0 || size > a.cfg.MaxUploadBytes {
		return domain.Contract{}, fmt.Errorf("%w: file size %d out of bounds", ErrInvalidInput, size)
	}

	id := uuid.NewString()
	key := fmt.Sprintf("contracts/%s%s", id, ext)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Contract{}, fmt.Errorf("store blob: %w", err)
	}

	now := time.Now().UTC()
	c := domain.Contract{
		ID:               id,
		OwnerID:          owner.ID,
		Title:            strings.TrimSuffix(filepath.Base(filename), ext),
		OriginalFilename: filepath.Base(filename),
		StorageKey:       key,
		Status:           domain.StatusQueued,
		SizeBytes:        size,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.SaveContract(ctx, c); err != nil {
		return domain.Contract{}, storageErr(err)
	}
	if _, err := a.jobs.Enqueue(ctx, c.ID); err != nil {
		_ = a.store.SetContractStatus(ctx, c.ID, domain.StatusFailed, "failed to enqueue extraction")
		return domain.Contract{}, fmt.Errorf("enqueue extraction: %w", err)
	}
	return c, nil
}

func (a *App) extensionAllowed(ext string) bool {
	for _, allowed := range a.cfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ProcessExtraction is the queue handler: download the blob, extract the
// canonical text, and flip the contract to ready. Returning an error lets
// the queue retry with backoff.
func (a *App) ProcessExtraction(ctx context.Context, job queue.JobStatus) error {
	contract, ok, err := a.store.GetContract(ctx, job.ContractID)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	if !ok {
		slog.Warn("extraction job for unknown contract", "contract_id", job.ContractID)
		return nil
	}
	if contract.Status == domain.StatusReady {
		return nil
	}
	if err := a.store.SetContractStatus(ctx, contract.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	rc, err := a.objects.Get(ctx, contract.StorageKey)
	if err != nil {
		_ = a.store.SetContractStatus(ctx, contract.ID, domain.StatusFailed, "blob unavailable")
		return fmt.Errorf("fetch blob: %w", err)
	}
	defer rc.Close()

	text, err := pdftext.Extract(rc, contract.OriginalFilename)
	if err != nil {
		_ = a.store.SetContractStatus(ctx, contract.ID, domain.StatusFailed, err.Error())
		return fmt.Errorf("extract text: %w", err)
	}
	if err := a.store.SetContractText(ctx, contract.ID, text); err != nil {
		return fmt.Errorf("store text: %w", err)
	}
	slog.Info("contract text extracted", "contract_id", contract.ID, "runes", len([]rune(text)))
	return nil
}

// ListContracts returns every contract, or only the user's own when
// mineOnly is set.
func (a *App) ListContracts(ctx context.Context, user domain.User, mineOnly bool) ([]domain.Contract, error) {
	var (
		contracts []domain.Contract
		err       error
	)
	if mineOnly {
		contracts, err = a.store.ListContractsByOwner(ctx, user.ID)
	} else {
		contracts, err = a.store.ListContracts(ctx)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return contracts, nil
}

// GetContract loads one contract.
func (a *App) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	contract, ok, err := a.store.GetContract(ctx, id)
	if err != nil {
		return domain.Contract{}, storageErr(err)
	}
	if !ok {
		return domain.Contract{}, ErrContractNotFound
	}
	return contract, nil
}

// ContractText returns the canonical text once extraction has finished.
func (a *App) ContractText(ctx context.Context, id string) (string, error) {
	contract, err := a.readyContract(ctx, id)
	if err != nil {
		return "", err
	}
	return contract.Text, nil
}

// DownloadURL returns a presigned URL for the original blob.
func (a *App) DownloadURL(ctx context.Context, id string) (string, error) {
	contract, err := a.GetContract(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := a.objects.PresignGet(ctx, contract.StorageKey, a.cfg.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// DeleteContract removes a contract. Only the owner or an admin may delete.
func (a *App) DeleteContract(ctx context.Context, user domain.User, id string) error {
	contract, err := a.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if contract.OwnerID != user.ID && user.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if err := a.store.DeleteContract(ctx, id); err != nil {
		return storageErr(err)
	}
	if err := a.objects.Delete(ctx, contract.StorageKey); err != nil {
		slog.Warn("orphaned blob after contract delete", "contract_id", id, "error", err)
	}
	return nil
}

// Analyze runs the configured text generator over the canonical text and
// persists the result.
func (a *App) Analyze(ctx context.Context, contractID string, kind domain.AnalysisKind, customPrompt string) (domain.Analysis, error) {
	contract, err := a.readyContract(ctx, contractID)
	if err != nil {
		return domain.Analysis{}, err
	}
	systemPrompt, userPrompt, err := a.buildPrompts(kind, customPrompt, contract.Text)
	if err != nil {
		return domain.Analysis{}, err
	}

	genCtx, cancel := context.WithTimeout(ctx, a.cfg.AITimeout)
	defer cancel()
	result, err := a.gen.GenerateText(genCtx, systemPrompt, userPrompt)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("generate analysis: %w", err)
	}

	analysis := domain.Analysis{
		ID:         uuid.NewString(),
		ContractID: contract.ID,
		Kind:       kind,
		Prompt:     strings.TrimSpace(customPrompt),
		Result:     result,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.SaveAnalysis(ctx, analysis); err != nil {
		return domain.Analysis{}, storageErr(err)
	}
	return analysis, nil
}

// ListAnalyses returns stored analyses for a contract, newest first.
func (a *App) ListAnalyses(ctx context.Context, contractID string) ([]domain.Analysis, error) {
	if _, err := a.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	analyses, err := a.store.ListAnalyses(ctx, contractID)
	if err != nil {
		return nil, storageErr(err)
	}
	return analyses, nil
}

const analystSystemPrompt = "You are a careful contracts analyst. Answer based only on the contract text provided. Be concise and cite clause numbers where present."

func (a *App) buildPrompts(kind domain.AnalysisKind, customPrompt, text string) (string, string, error) {
	text = truncateRunes(text, a.cfg.MaxPromptRunes)
	switch kind {
	case domain.AnalysisSummary:
		return analystSystemPrompt,
			"Summarize the following contract: the parties, the subject matter, key obligations, term, and anything unusual.\n\n---\n\n" + text,
			nil
	case domain.AnalysisClauses:
		return analystSystemPrompt,
			"Extract the key clauses from the following contract as a bullet list. Cover parties, term, payment, termination, liability, and confidentiality. Quote the relevant sentence for each.\n\n---\n\n" + text,
			nil
	case domain.AnalysisCustom:
		if strings.TrimSpace(customPrompt) == "" {
			return "", "", fmt.Errorf("%w: custom analysis requires a prompt", ErrInvalidInput)
		}
		return analystSystemPrompt, customPrompt + "\n\n---\n\n" + text, nil
	default:
		return "", "", fmt.Errorf("%w: unknown analysis kind %q", ErrInvalidInput, kind)
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (a *App) readyContract(ctx context.Context, id string) (domain.Contract, error) {
	contract, err := a.GetContract(ctx, id)
	if err != nil {
		return domain.Contract{}, err
	}
	if contract.Status != domain.StatusReady {
		return domain.Contract{}, ErrContractNotReady
	}
	return contract, nil
}

func storageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
