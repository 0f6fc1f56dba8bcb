package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternKeyString(t *testing.T) {
	key := PatternKey{ToolName: "configure", Category: CategoryTypeMismatch}
	assert.Equal(t, "configure:type_mismatch", key.String())
}

func TestPatternBookUpsert(t *testing.T) {
	book := newPatternBook()
	key := PatternKey{ToolName: "configure", Category: CategoryTypeMismatch}

	_, known := book.lookup(key)
	assert.False(t, known)

	first := book.upsert(key, "json_string_conversion", 100)
	assert.Equal(t, 1, first.SuccessCount)
	assert.Equal(t, int64(100), first.AverageRecoveryTimeMs)
	assert.Equal(t, "json_string_conversion", first.SuccessfulStrategy)
	assert.False(t, first.LastUsed.IsZero())

	// recovery time blends by pairwise averaging
	second := book.upsert(key, "json_string_conversion", 200)
	assert.Equal(t, 2, second.SuccessCount)
	assert.Equal(t, int64(150), second.AverageRecoveryTimeMs)

	third := book.upsert(key, "type_mismatch", 50)
	assert.Equal(t, 3, third.SuccessCount)
	assert.Equal(t, int64(100), third.AverageRecoveryTimeMs)
	assert.Equal(t, "type_mismatch", third.SuccessfulStrategy) // latest strategy wins

	pattern, known := book.lookup(key)
	require.True(t, known)
	assert.Equal(t, 3, pattern.SuccessCount)
}

func TestPatternBookSnapshot(t *testing.T) {
	book := newPatternBook()
	book.upsert(PatternKey{ToolName: "a", Category: CategoryTimeout}, "none", 10)
	book.upsert(PatternKey{ToolName: "b", Category: CategoryOther}, "none", 20)

	assert.Equal(t, 2, book.count())
	snap := book.snapshot()
	require.Len(t, snap, 2)
	assert.Contains(t, snap, "a:timeout")
	assert.Contains(t, snap, "b:other")

	// snapshot is a copy, mutating it does not touch the book
	entry := snap["a:timeout"]
	entry.SuccessCount = 99
	snap["a:timeout"] = entry
	pattern, _ := book.lookup(PatternKey{ToolName: "a", Category: CategoryTimeout})
	assert.Equal(t, 1, pattern.SuccessCount)
}
