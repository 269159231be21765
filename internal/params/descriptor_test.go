package params

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorImmutability(t *testing.T) {
	base := Descriptor{}.WithFilters(map[string]any{"author_id": 7}).WithScope("published")
	before := base.Values().Encode()

	_ = base.WithFilters(map[string]any{"author_id": 9, "status": "draft"})
	_ = base.WithScope("edited")
	_ = base.WithLimit(5)
	_ = base.WithOrder(OrderString("title"))

	assert.Equal(t, before, base.Values().Encode())
}

func TestScopeDedup(t *testing.T) {
	d := Descriptor{}.WithScope("published").WithScope("edited").WithScope("published")
	assert.Equal(t, []string{"published", "edited"}, d.Scopes)
}

func TestFilterMergeNewKeysWin(t *testing.T) {
	d := Descriptor{}.
		WithFilters(map[string]any{"author_id": 7, "status": "draft"}).
		WithFilters(map[string]any{"status": "published"})

	assert.Equal(t, 7, d.Filters["author_id"])
	assert.Equal(t, "published", d.Filters["status"])
}

func TestValuesEncoding(t *testing.T) {
	d := Descriptor{}.
		WithScope("published").
		WithFilters(map[string]any{"author_id": 7}).
		WithOrder(OrderString("published_at")).
		WithLimit(2).
		WithOffset(1)

	values := d.Values()
	assert.Equal(t, []string{"published"}, values["scopes[]"])
	assert.Equal(t, "7", values.Get("filters[author_id]"))
	assert.Equal(t, "published_at", values.Get("order"))
	assert.Equal(t, "2", values.Get("limit"))
	assert.Equal(t, "1", values.Get("offset"))
}

func TestValuesEncodesOrderColumns(t *testing.T) {
	d := Descriptor{}.WithOrder(OrderColumns(
		OrderColumn{Name: "published_at", Direction: "desc"},
		OrderColumn{Name: "title"},
	))

	values := d.Values()
	assert.Equal(t, "desc", values.Get("order[published_at]"))
	assert.Equal(t, "asc", values.Get("order[title]"))
}

func TestDecodeRoundTrip(t *testing.T) {
	d := Descriptor{}.
		WithScope("published").
		WithScope("edited").
		WithFilters(map[string]any{"author_id": "7"}).
		WithOrder(OrderString("published_at desc")).
		WithLimit(10).
		WithOffset(5)

	decoded, err := Decode(d.Values())
	require.NoError(t, err)

	assert.Equal(t, []string{"published", "edited"}, decoded.Scopes)
	assert.Equal(t, "7", decoded.Filters["author_id"])
	assert.Equal(t, []string{"published_at"}, decoded.Order.ColumnNames())
	require.NotNil(t, decoded.Limit)
	assert.Equal(t, 10, *decoded.Limit)
	require.NotNil(t, decoded.Offset)
	assert.Equal(t, 5, *decoded.Offset)
}

func TestDecodeRejectsBadPagination(t *testing.T) {
	_, err := Decode(url.Values{"limit": {"nope"}})
	assert.Error(t, err)

	_, err = Decode(url.Values{"offset": {"-1"}})
	assert.Error(t, err)

	_, err = Decode(url.Values{"order[title]": {"sideways"}})
	assert.Error(t, err)
}

func TestOrderingTerms(t *testing.T) {
	o := OrderString("published_at desc, title")
	assert.Equal(t, []OrderColumn{
		{Name: "published_at", Direction: "desc"},
		{Name: "title"},
	}, o.Terms())
	assert.Equal(t, []string{"published_at", "title"}, o.ColumnNames())
}

func TestProxyKeysDerivedFromDescriptor(t *testing.T) {
	assert.ElementsMatch(t, []string{"scopes", "filters", "order", "limit", "offset"}, ProxyKeys())
}

func TestKnownAttributes(t *testing.T) {
	d := Descriptor{}.
		WithFilters(map[string]any{"author_id": 7}).
		WithScope("published").
		WithLimit(1).
		WithOrder(OrderString("title"))

	attrs := d.KnownAttributes()
	assert.Equal(t, map[string]any{"author_id": 7}, attrs)

	attrs["author_id"] = 9
	assert.Equal(t, 7, d.Filters["author_id"])
}

func TestMetaRoundTrip(t *testing.T) {
	meta := Meta{
		ReadOnly:        map[string][]string{"post": {"slug", "word_count"}},
		WhereValues:     map[string]any{"author_id": float64(7)},
		NestedResources: map[string][]string{"post": {"comments"}},
		NaturalKey:      map[string]string{"post": "slug"},
	}

	raw, err := json.Marshal(meta)
	require.NoError(t, err)

	var decoded Meta
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, meta, decoded)

	md := decoded.For("post")
	assert.Equal(t, []string{"slug", "word_count"}, md.ReadOnly)
	assert.Equal(t, map[string]any{"author_id": float64(7)}, md.WhereValues)
	assert.Equal(t, []string{"comments"}, md.NestedResources)
	assert.Equal(t, "slug", md.NaturalKey)
	assert.True(t, md.ReadOnlyAttr("slug"))
	assert.False(t, md.ReadOnlyAttr("title"))
}

func TestMetaForUnknownResource(t *testing.T) {
	md := Meta{}.For("post")
	assert.True(t, md.IsZero())
}
