package store

import (
	"context"

	"contractlens/pkg/domain"
)

// Store defines persistence operations for users, contracts, comments, and
// analyses. Comments are append-only: there is no update or delete.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	UserCount(ctx context.Context) (int, error)

	// contracts
	SaveContract(ctx context.Context, c domain.Contract) error
	SetContractStatus(ctx context.Context, id string, status domain.ContractStatus, errMsg string) error
	SetContractText(ctx context.Context, id string, text string) error
	ListContracts(ctx context.Context) ([]domain.Contract, error)
	ListContractsByOwner(ctx context.Context, ownerID string) ([]domain.Contract, error)
	GetContract(ctx context.Context, id string) (domain.Contract, bool, error)
	// DeleteContract removes the contract and its comments and analyses.
	DeleteContract(ctx context.Context, id string) error

	// comments
	// AppendComment assigns CreatedAt (monotonic per store) and Seq, then
	// returns the resolved record.
	AppendComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	// ListComments returns the full log ordered by (created_at, seq) asc.
	ListComments(ctx context.Context, contractID string) ([]domain.Comment, error)

	// analyses
	SaveAnalysis(ctx context.Context, a domain.Analysis) error
	ListAnalyses(ctx context.Context, contractID string) ([]domain.Analysis, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
