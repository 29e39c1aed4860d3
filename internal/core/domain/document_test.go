package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStatus_Valid(t *testing.T) {
	valid := []DocumentStatus{StatusPending, StatusProcessing, StatusProcessed, StatusFailed}
	for _, s := range valid {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}

	assert.False(t, DocumentStatus("").Valid())
	assert.False(t, DocumentStatus("done").Valid())
}

func TestChunkKey_RoundTrip(t *testing.T) {
	tests := []struct {
		docID int64
		index int
		want  string
	}{
		{1, 0, "1_0"},
		{42, 7, "42_7"},
		{9007199254740993, 120, "9007199254740993_120"},
	}

	for _, tt := range tests {
		key := ChunkKey(tt.docID, tt.index)
		assert.Equal(t, tt.want, key)

		docID, index, err := ParseChunkKey(key)
		require.NoError(t, err)
		assert.Equal(t, tt.docID, docID)
		assert.Equal(t, tt.index, index)
	}
}

func TestChunk_Key(t *testing.T) {
	c := Chunk{DocumentID: 12, ChunkIndex: 3}
	assert.Equal(t, "12_3", c.Key())
}

func TestParseChunkKey_Malformed(t *testing.T) {
	malformed := []string{"", "12", "_3", "12_", "abc_3", "12_xyz", "12_-1"}
	for _, key := range malformed {
		_, _, err := ParseChunkKey(key)
		assert.ErrorIs(t, err, ErrInvalidInput, "key %q should be rejected", key)
	}
}
