package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)
	id := "eval_abc123"

	encoded := Encode(ts, id)
	assert.NotEmpty(t, encoded)

	cursor, err := Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, ts, cursor.CreatedAt)
	assert.Equal(t, id, cursor.ID)
}

func TestDecode_Empty(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestDecode_MalformedPayload(t *testing.T) {
	// Valid base64 but no | separator
	_, err := Decode("bm9waXBl") // "nopipe"
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestDecode_IDContainsSeparator(t *testing.T) {
	// Only the first | splits; the rest belongs to the id.
	ts := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)
	cursor, err := Decode(Encode(ts, "eval|odd|id"))
	require.NoError(t, err)
	assert.Equal(t, "eval|odd|id", cursor.ID)
}

func TestComputePage_NoMore(t *testing.T) {
	items := []string{"eval_a", "eval_b", "eval_c"}
	result, cursor, hasMore := ComputePage(items, 5, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Equal(t, 3, len(result))
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}

func TestComputePage_HasMore(t *testing.T) {
	items := []string{"eval_a", "eval_b", "eval_c", "eval_d"}
	result, cursor, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s
	})
	assert.Equal(t, 3, len(result))
	assert.NotEmpty(t, cursor)
	assert.True(t, hasMore)

	// The cursor must point at the last record the page kept.
	c, err := Decode(cursor)
	require.NoError(t, err)
	assert.Equal(t, "eval_c", c.ID)
}

func TestComputePage_ExactLimit(t *testing.T) {
	items := []string{"eval_a", "eval_b", "eval_c"}
	result, cursor, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Equal(t, 3, len(result))
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}
