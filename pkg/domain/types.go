package domain

import "time"

type ContractStatus string

const (
	StatusQueued     ContractStatus = "queued"
	StatusProcessing ContractStatus = "processing"
	StatusReady      ContractStatus = "ready"
	StatusFailed     ContractStatus = "failed"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type AnalysisKind string

const (
	AnalysisSummary AnalysisKind = "summary"
	AnalysisClauses AnalysisKind = "clauses"
	AnalysisCustom  AnalysisKind = "custom"
)

// Contract is an uploaded document. Text is the canonical extracted text,
// set exactly once when extraction succeeds and immutable afterwards. All
// highlight offsets are computed against it, counted in runes.
type Contract struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"ownerId"`
	Title            string         `json:"title"`
	OriginalFilename string         `json:"originalFilename"`
	StorageKey       string         `json:"-"`
	Status           ContractStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	SizeBytes        int64          `json:"sizeBytes"`
	Text             string         `json:"-"`
	TextLen          int            `json:"textLen"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Comment is an append-only annotation on a contract. Comments are never
// edited or deleted; CreatedAt plus the store-assigned Seq gives the total
// order even when two appends land on the same timestamp.
type Comment struct {
	ID         string     `json:"id"`
	ContractID string     `json:"contractId"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Body       string     `json:"body"`
	Highlight  *Highlight `json:"highlight,omitempty"`
	Seq        int64      `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Highlight anchors a comment to a rune range of the canonical text.
type Highlight struct {
	Text  string    `json:"text"`
	Range TextRange `json:"range"`
}

// TextRange is a half-open [Start,End) rune offset pair.
type TextRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Analysis is a stored AI result for a contract.
type Analysis struct {
	ID         string       `json:"id"`
	ContractID string       `json:"contractId"`
	Kind       AnalysisKind `json:"kind"`
	Prompt     string       `json:"prompt,omitempty"`
	Result     string       `json:"result"`
	CreatedAt  time.Time    `json:"createdAt"`
}
