package storage

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"staffhub/internal/models"
)

func TestSeqFromRef(t *testing.T) {
	tests := []struct {
		ref    string
		want   int64
		wantOK bool
	}{
		{"1", 1, true},
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"", 0, false},
		{"6f1c2a0e-8d4b-4f57-9a57-0d8cfb1c3f11", 0, false},
		{"12abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := seqFromRef(tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalRefFor(t *testing.T) {
	id := "abc"
	empty := ""
	assert.Equal(t, "abc", canonicalRefFor(&id, 7))
	assert.Equal(t, "7", canonicalRefFor(nil, 7))
	assert.Equal(t, "7", canonicalRefFor(&empty, 7))

	// Matches the model's notion of a canonical ref.
	target := &models.Target{NativeID: "7"}
	assert.Equal(t, target.Ref(), canonicalRefFor(nil, 7))
}

func TestNullableID(t *testing.T) {
	assert.Nil(t, nullableID(""))
	if got := nullableID("x"); assert.NotNil(t, got) {
		assert.Equal(t, "x", *got)
	}
}

func TestUnixNanoRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 891011121, time.FixedZone("X", 3600))
	got := fromUnixNano(toUnixNano(now))
	assert.True(t, got.Equal(now))
	assert.Equal(t, time.UTC, got.Location())
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows, "post", "1"), ErrNotFound)
	assert.ErrorIs(t, notFound(ErrNotFound, "post", "1"), ErrNotFound)

	boom := errors.New("boom")
	err := notFound(boom, "post", "1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestTableFor(t *testing.T) {
	table, err := tableFor(models.TargetAnnouncement)
	assert.NoError(t, err)
	assert.Equal(t, "announcements", table)

	table, err = tableFor(models.TargetPost)
	assert.NoError(t, err)
	assert.Equal(t, "posts", table)

	_, err = tableFor("video")
	assert.ErrorIs(t, err, ErrNotFound)
}
