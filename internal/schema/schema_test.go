package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPost(t *testing.T) *Resource {
	t.Helper()
	post, err := New("post").
		Attributes("id", "title", "author_id", "published_at", "slug").
		Scope("published", "edited").
		BelongsTo("author", Target("user")).
		HasMany("comments").
		Remote("top_comment", Target("comment")).
		ReadOnly("slug").
		NestedResources("comments").
		NaturalKey("slug").
		Build()
	require.NoError(t, err)
	return post
}

func TestBuilderFreezesDeclarations(t *testing.T) {
	post := buildPost(t)

	assert.Equal(t, "post", post.Name())
	assert.Equal(t, "posts", post.CollectionName())
	assert.Equal(t, []string{"published", "edited"}, post.RegisteredScopes())
	assert.Equal(t, []string{"published", "edited"}, post.WhitelistedScopes())
	assert.Equal(t, []string{"author", "comments", "top_comment"}, post.ReflectionNames())
	assert.Equal(t, "slug", post.NaturalKey())
	assert.Equal(t, []string{"slug"}, post.ReadOnly())
	assert.True(t, post.Remoted("top_comment"))
	assert.False(t, post.Remoted("comments"))
}

func TestBuilderDerivesForeignKeys(t *testing.T) {
	post := buildPost(t)

	// belongs_to keys follow the association name even when the target
	// type differs, so a retargeted association still reads its own column.
	author := post.Reflection("author")
	require.NotNil(t, author)
	assert.Equal(t, BelongsTo, author.Kind)
	assert.Equal(t, "user", author.Target)
	assert.Equal(t, "author_id", author.ForeignKey)

	comments := post.Reflection("comments")
	require.NotNil(t, comments)
	assert.Equal(t, HasMany, comments.Kind)
	assert.Equal(t, "comment", comments.Target)
	assert.Equal(t, "post_id", comments.ForeignKey)
	assert.Equal(t, "comments_attributes", comments.NestedAttributesKey())
}

func TestBuilderForeignKeyOverride(t *testing.T) {
	invite, err := New("invite").
		Attributes("id", "sender_ref").
		BelongsTo("sender", Target("user"), ForeignKey("sender_ref")).
		Build()
	require.NoError(t, err)

	sender := invite.Reflection("sender")
	require.NotNil(t, sender)
	assert.Equal(t, "user", sender.Target)
	assert.Equal(t, "sender_ref", sender.ForeignKey)
}

func TestAccessorsReturnCopies(t *testing.T) {
	post := buildPost(t)

	scopes := post.RegisteredScopes()
	scopes[0] = "mutated"
	assert.Equal(t, []string{"published", "edited"}, post.RegisteredScopes())
}

func TestWhitelistNarrowsScopes(t *testing.T) {
	post, err := New("post").
		Attributes("id").
		Scope("published", "edited", "internal").
		WhitelistScopes("published", "edited").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"published", "edited"}, post.WhitelistedScopes())
	assert.Equal(t, []string{"published", "edited", "internal"}, post.RegisteredScopes())
}

func TestBuildRejectsUnknownWhitelist(t *testing.T) {
	_, err := New("post").Scope("published").WhitelistScopes("liked").Build()
	assert.ErrorContains(t, err, "liked")
}

func TestBuildRejectsBadThrough(t *testing.T) {
	_, err := New("key_pair").
		Attributes("id", "identity_id").
		BelongsTo("user", Via("identity")).
		Build()
	assert.ErrorContains(t, err, "identity")

	_, err = New("key_pair").
		Attributes("id").
		HasMany("identities").
		BelongsTo("user", Via("identities")).
		Build()
	assert.ErrorContains(t, err, "belongs_to")
}

func TestBuildRejectsBadMetadataNames(t *testing.T) {
	_, err := New("post").Attributes("id").NaturalKey("slug").Build()
	assert.ErrorContains(t, err, "slug")

	_, err = New("post").Attributes("id").ReadOnly("slug").Build()
	assert.ErrorContains(t, err, "slug")

	_, err = New("post").Attributes("id").NestedResources("comments").Build()
	assert.ErrorContains(t, err, "comments")
}

func TestPluralization(t *testing.T) {
	cases := map[string]string{
		"post":    "posts",
		"company": "companies",
		"box":     "boxes",
		"branch":  "branches",
	}
	for singular, plural := range cases {
		r, err := New(singular).Build()
		require.NoError(t, err)
		assert.Equal(t, plural, r.CollectionName())
	}
}

func TestRegistryLookup(t *testing.T) {
	post := buildPost(t)
	user, err := New("user").Attributes("id", "name").Build()
	require.NoError(t, err)

	reg, err := NewRegistry(post, user)
	require.NoError(t, err)

	got, ok := reg.Get("post")
	assert.True(t, ok)
	assert.Same(t, post, got)

	got, ok = reg.GetByCollection("users")
	assert.True(t, ok)
	assert.Same(t, user, got)

	_, ok = reg.Get("comment")
	assert.False(t, ok)

	assert.Equal(t, []string{"post", "user"}, reg.List())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	post := buildPost(t)
	_, err := NewRegistry(post, post)
	assert.ErrorContains(t, err, "already registered")
}
