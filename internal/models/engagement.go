package models

import (
	"fmt"
	"time"
)

// TargetType names the kind of entity that can be liked.
type TargetType string

const (
	TargetAnnouncement TargetType = "announcement"
	TargetPost         TargetType = "post"
)

// ParseTargetType validates a raw target type.
func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(s) {
	case TargetAnnouncement, TargetPost:
		return TargetType(s), nil
	default:
		return "", fmt.Errorf("unknown target type %q", s)
	}
}

// Target is a resolved engagement target.
//
// Records may be addressed by two identifier schemes: the generated UUID in
// ID, and the store-native sequence in NativeID. Older records can lack an
// ID entirely, so Ref falls back to NativeID. Likes are always keyed by Ref
// so both schemes converge on the same relation.
type Target struct {
	Type       TargetType `json:"type"`
	ID         string     `json:"id,omitempty"`
	NativeID   string     `json:"native_id"`
	LikesCount int        `json:"likes_count"`
}

// Ref returns the canonical reference used as the like relation key.
func (t *Target) Ref() string {
	return canonicalRef(t.ID, t.NativeID)
}

// LikeRelation records that an actor currently likes a target. Exactly zero
// or one relation exists per (ActorID, TargetType, TargetID).
type LikeRelation struct {
	ActorID    string     `json:"actor_id"`
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToggleResult is the outcome of a like toggle.
type ToggleResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func canonicalRef(id, nativeID string) string {
	if id != "" {
		return id
	}
	return nativeID
}
