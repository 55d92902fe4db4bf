package model

import (
	"fmt"
	"time"
)

// Record types stored in the semantic collections.
const (
	RecallType    = "recall"
	KnowledgeType = "knowledge"
)

// Metadata keys shared by every semantic backend.
const (
	MetaUserID    = "user_id"
	MetaType      = "type"
	MetaTimestamp = "timestamp"
	MetaPath      = "path"
)

// CoreMemoryPath is the deterministic key of a user's single core record.
func CoreMemoryPath(userID string) string {
	return fmt.Sprintf("user/%s/core", userID)
}

// RecallMemoryPath locates one recall record.
func RecallMemoryPath(userID, id string) string {
	return fmt.Sprintf("user/%s/recall/%s", userID, id)
}

// CoreMemoryDocument is the JSON payload stored at CoreMemoryPath.
type CoreMemoryDocument struct {
	Memories  CoreMemories `json:"memories"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Record is one hit from a semantic store.
type Record struct {
	ID        string
	Content   string
	UserID    string
	Type      string
	CreatedAt time.Time
	Metadata  map[string]string
	Score     float32
}

// Filter is a conjunction of exact matches. Empty fields are unconstrained.
type Filter struct {
	UserID string
	Type   string
}

// Equals returns the non-empty fields as metadata matches.
func (f Filter) Equals() map[string]string {
	out := map[string]string{}
	if f.UserID != "" {
		out[MetaUserID] = f.UserID
	}
	if f.Type != "" {
		out[MetaType] = f.Type
	}
	return out
}
