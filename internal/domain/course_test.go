package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentNodeVariants(t *testing.T) {
	nodes := []ContentNode{
		&Course{Base: Base{OldID: 1}},
		&Unit{Base: Base{OldID: 2}},
		&Quiz{Base: Base{OldID: 3}},
		&Question{Base: Base{OldID: 4}},
		&Assignment{Base: Base{OldID: 5}},
		&Certificate{Base: Base{OldID: 6}},
	}

	for i, n := range nodes {
		assert.Equal(t, ContentKinds[i], n.Kind())
		assert.Equal(t, int64(i+1), n.Header().OldID)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds("courses, lesson,quiz,units")
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindCourse, KindUnit, KindQuiz}, kinds)

	all, err := ParseKinds("all")
	require.NoError(t, err)
	assert.Equal(t, ContentKinds, all)

	_, err = ParseKinds("course,widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entity kind "widgets"`)
	assert.Contains(t, fmt.Sprintf("%+v", err), "kinds.go")
}

func TestParseExportMode(t *testing.T) {
	m, err := ParseExportMode("Discover_Related")
	require.NoError(t, err)
	assert.Equal(t, ModeDiscoverRelated, m)

	m, err = ParseExportMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	_, err = ParseExportMode("everything")
	assert.Error(t, err)
}

func TestScopeJSON(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		json  string
	}{
		{"all", AllScope(), `"all"`},
		{"ids", Scope{IDs: []int64{7, 12}}, `[7,12]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.scope)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(b))

			var back Scope
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.scope, back)
		})
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope(" 7, 12 ,")
	require.NoError(t, err)
	assert.False(t, s.All)
	assert.True(t, s.Contains(12))
	assert.False(t, s.Contains(13))
	assert.Equal(t, "7,12", s.String())

	s, err = ParseScope("ALL")
	require.NoError(t, err)
	assert.True(t, s.Contains(99))

	_, err = ParseScope("7,abc")
	assert.Error(t, err)
}

func TestCommerceSellable(t *testing.T) {
	publish := StatusPublish
	draft := StatusDraft
	price := 49.0

	assert.True(t, CommerceInfo{HasProduct: true, ProductStatus: &publish, CatalogVisibility: VisibilityVisible, Price: &price}.Sellable())
	assert.False(t, CommerceInfo{HasProduct: true, ProductStatus: &draft, CatalogVisibility: VisibilityVisible, Price: &price}.Sellable())
	assert.False(t, CommerceInfo{HasProduct: true, ProductStatus: &publish, CatalogVisibility: VisibilityHidden, Price: &price}.Sellable())
	assert.False(t, CommerceInfo{HasProduct: true, ProductStatus: &publish, CatalogVisibility: VisibilityVisible}.Sellable())
}

func TestCommercePublished(t *testing.T) {
	publish := StatusPublish
	price := 49.0

	assert.True(t, CommerceInfo{HasProduct: true, ProductStatus: &publish, CatalogVisibility: VisibilityHidden, Price: &price}.Published())
	assert.False(t, CommerceInfo{HasProduct: true, ProductStatus: &publish, CatalogVisibility: VisibilityVisible}.Published())
	assert.False(t, CommerceInfo{ProductStatus: &publish, Price: &price}.Published())
}
