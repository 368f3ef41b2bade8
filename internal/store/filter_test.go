package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/errors"
)

func sampleMetadata() *Metadata {
	return &Metadata{
		Category:     "code",
		Language:     "python",
		Depth:        2,
		SizeCategory: "medium",
		HasFnDef:     true,
		Complexity:   5,
		WordCount:    340,
		Path:         "src/auth/login.py",
		StartLine:    10,
		EndLine:      52,
	}
}

func TestFilterOperators(t *testing.T) {
	m := sampleMetadata()

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq match", Filter{"language": {"$eq": "python"}}, true},
		{"eq miss", Filter{"language": {"$eq": "go"}}, false},
		{"eq numeric coercion", Filter{"depth": {"$eq": float64(2)}}, true},
		{"eq bool", Filter{"hasFnDef": {"$eq": true}}, true},
		{"in match", Filter{"category": {"$in": []any{"code", "test"}}}, true},
		{"in typed slice", Filter{"category": {"$in": []string{"docs", "code"}}}, true},
		{"in miss", Filter{"category": {"$in": []any{"docs", "config"}}}, false},
		{"lte boundary", Filter{"depth": {"$lte": 2}}, true},
		{"lte miss", Filter{"depth": {"$lte": 1}}, false},
		{"gte boundary", Filter{"complexity": {"$gte": 5}}, true},
		{"lt strict", Filter{"depth": {"$lt": 2}}, false},
		{"gt strict", Filter{"wordCount": {"$gt": 300}}, true},
		{"conjunction", Filter{"language": {"$eq": "python"}, "depth": {"$lte": 2}}, true},
		{"conjunction one fails", Filter{"language": {"$eq": "python"}, "depth": {"$lt": 2}}, false},
		{"range on one field", Filter{"complexity": {"$gte": 3, "$lte": 7}}, true},
		{"empty filter passes", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(m, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterErrors(t *testing.T) {
	m := sampleMetadata()

	_, err := Match(m, Filter{"nope": {"$eq": 1}})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFilter))

	_, err = Match(m, Filter{"depth": {"$near": 1}})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFilter))

	_, err = Match(m, Filter{"language": {"$lte": "python"}})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFilter))
}

func TestMergeFilters(t *testing.T) {
	merged := Merge(Eq("language", "python"), Eq("category", "code"))
	require.Len(t, merged, 2)

	got, err := Match(sampleMetadata(), merged)
	require.NoError(t, err)
	assert.True(t, got)

	assert.Nil(t, Merge())
}

func TestIsIndexed(t *testing.T) {
	assert.True(t, IsIndexed("category"))
	assert.True(t, IsIndexed("language"))
	assert.True(t, IsIndexed("depth"))
	assert.True(t, IsIndexed("sizeCategory"))
	assert.False(t, IsIndexed("hasFnDef"))
	assert.False(t, IsIndexed("complexity"))
}
