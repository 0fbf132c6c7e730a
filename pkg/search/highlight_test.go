package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopportal/coopsearch/pkg/rbac"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  []Segment
	}{
		{
			name:  "prefix",
			text:  "Nyeri Dairy Farmers",
			query: "nyeri",
			want:  []Segment{{Text: "Nyeri", Match: true}, {Text: " Dairy Farmers"}},
		},
		{
			name:  "middle keeps original case",
			text:  "Nyeri Dairy Farmers",
			query: "DAIRY",
			want:  []Segment{{Text: "Nyeri "}, {Text: "Dairy", Match: true}, {Text: " Farmers"}},
		},
		{
			name:  "every occurrence",
			text:  "Wanjiru wanjiru",
			query: "wanjiru",
			want:  []Segment{{Text: "Wanjiru", Match: true}, {Text: " "}, {Text: "wanjiru", Match: true}},
		},
		{
			name:  "query is trimmed",
			text:  "CMP-1001",
			query: "  1001 ",
			want:  []Segment{{Text: "CMP-"}, {Text: "1001", Match: true}},
		},
		{
			name:  "no match",
			text:  "John Kamau",
			query: "xyz",
			want:  []Segment{{Text: "John Kamau"}},
		},
		{
			name:  "empty query",
			text:  "John Kamau",
			query: "   ",
			want:  []Segment{{Text: "John Kamau"}},
		},
		{
			name:  "non-overlapping",
			text:  "aaa",
			query: "aa",
			want:  []Segment{{Text: "aa", Match: true}, {Text: "a"}},
		},
		{
			name:  "multibyte",
			text:  "Ushirika wa Kahawa Ñyeri",
			query: "ñye",
			want:  []Segment{{Text: "Ushirika wa Kahawa "}, {Text: "Ñye", Match: true}, {Text: "ri"}},
		},
		{
			name:  "query longer than text",
			text:  "Ny",
			query: "Nyeri",
			want:  []Segment{{Text: "Ny"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query))
		})
	}

	assert.Nil(t, Highlight("", "x"))
}

func TestLabelAndIcon(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range rbac.Categories() {
		assert.NotEqual(t, string(c), Label(c), "category %s has a display label", c)
		assert.NotEqual(t, "circle", Icon(c), "category %s has an icon", c)
		seen[Label(c)] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, "Official Searches", Label(rbac.CategoryOfficialSearch))
	assert.Equal(t, "mystery", Label("mystery"))
	assert.Equal(t, "circle", Icon("mystery"))
}

func TestCategorizedResults_JSONShape(t *testing.T) {
	res := NewCategorizedResults()
	res.Set(rbac.CategoryOfficialSearch, []Result{{ID: "os-1", Type: rbac.CategoryOfficialSearch}})

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var shape map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &shape))
	assert.Len(t, shape, 8)
	for _, key := range []string{"cooperatives", "applications", "users", "complaints", "amendments", "auditors", "trainers", "official_searches"} {
		assert.Contains(t, shape, key)
		assert.NotNil(t, shape[key], key)
	}
	assert.Equal(t, "official_search", shape["official_searches"][0]["type"])
	assert.Equal(t, 1, res.Total())
	assert.Nil(t, res.Get("mystery"))
}
