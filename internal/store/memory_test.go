package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

func blogSchemas(t *testing.T) (*schema.Resource, *schema.Resource) {
	t.Helper()
	post, err := schema.New("post").
		Attributes("id", "title", "author_id", "slug").
		HasMany("comments").
		ReadOnly("slug").
		NaturalKey("slug").
		NestedResources("comments").
		Build()
	require.NoError(t, err)

	comment, err := schema.New("comment").
		Attributes("id", "post_id", "content").
		Build()
	require.NoError(t, err)
	return post, comment
}

func blogStores(t *testing.T) (*Memory, *Memory) {
	t.Helper()
	post, comment := blogSchemas(t)
	set := NewSet()
	return set.NewMemory(post), set.NewMemory(comment)
}

func TestMemoryFindByIDAndNaturalKey(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Insert(refine.Record{"id": 1, "title": "hello", "slug": "hello-world"})

	rec, err := posts.Find(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec["title"])

	rec, err = posts.Find(context.Background(), "hello-world")
	require.NoError(t, err)
	assert.Equal(t, 1, rec["id"])

	_, err = posts.Find(context.Background(), "missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMemoryCollectionOrderingAndPagination(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Insert(refine.Record{"id": 1, "title": "c"})
	posts.Insert(refine.Record{"id": 2, "title": "a"})
	posts.Insert(refine.Record{"id": 3, "title": "b"})

	recs, err := posts.Collection().
		Order([]params.OrderColumn{{Name: "title"}}).
		Offset(1).
		Limit(1).
		Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0]["title"])
}

func TestMemoryCollectionIsImmutablePerStep(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Insert(refine.Record{"id": 1, "author_id": 1})
	posts.Insert(refine.Record{"id": 2, "author_id": 2})

	base := posts.Collection()
	narrowed := base.Where("author_id", 1)

	all, err := base.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := narrowed.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestMemoryCreateRejectsUnpermitted(t *testing.T) {
	posts, _ := blogStores(t)

	_, err := posts.Create(context.Background(), refine.Record{"title": "ok", "hacker": true})
	var unpermitted *UnpermittedParameterError
	require.ErrorAs(t, err, &unpermitted)
	assert.Equal(t, []string{"hacker"}, unpermitted.Names)
	assert.Equal(t, map[string][]string{"hacker": {"unpermitted parameter"}}, unpermitted.FieldErrors())
}

func TestMemoryCreateRejectsReadOnly(t *testing.T) {
	posts, _ := blogStores(t)

	_, err := posts.Create(context.Background(), refine.Record{"title": "ok", "slug": "sneaky"})
	var unpermitted *UnpermittedParameterError
	assert.ErrorAs(t, err, &unpermitted)
}

func TestMemoryCreateRunsValidation(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Validate(func(rec refine.Record) map[string][]string {
		if rec["title"] == nil || rec["title"] == "" {
			return map[string][]string{"title": {"can't be blank"}}
		}
		return nil
	})

	_, err := posts.Create(context.Background(), refine.Record{"author_id": 1})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"can't be blank"}, invalid.Fields["title"])

	rec, err := posts.Create(context.Background(), refine.Record{"title": "ok"})
	require.NoError(t, err)
	assert.NotNil(t, rec["id"])
}

func TestMemoryCreateAppliesNestedAttributes(t *testing.T) {
	posts, comments := blogStores(t)

	rec, err := posts.Create(context.Background(), refine.Record{
		"title": "with comments",
		"comments_attributes": []any{
			map[string]any{"content": "first"},
			map[string]any{"content": "second"},
		},
	})
	require.NoError(t, err)

	children, err := comments.Collection().Where("post_id", rec["id"]).Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestMemoryUpdateMergesAttributes(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Insert(refine.Record{"id": 1, "title": "old", "author_id": 1})

	rec, err := posts.Update(context.Background(), "1", refine.Record{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", rec["title"])
	assert.Equal(t, 1, rec["author_id"])
}

func TestMemoryDelete(t *testing.T) {
	posts, _ := blogStores(t)
	posts.Insert(refine.Record{"id": 1, "title": "bye"})

	require.NoError(t, posts.Delete(context.Background(), "1"))

	var notFound *NotFoundError
	assert.ErrorAs(t, posts.Delete(context.Background(), "1"), &notFound)
}

func TestMemoryAssociationThrough(t *testing.T) {
	// key_pair belongs_to identity; user resolved through identity.
	user, err := schema.New("user").Attributes("id", "name").Build()
	require.NoError(t, err)
	identity, err := schema.New("identity").Attributes("id", "user_id").Build()
	require.NoError(t, err)
	keyPair, err := schema.New("key_pair").
		Attributes("id", "identity_id").
		BelongsTo("identity").
		BelongsTo("user", schema.Via("identity")).
		Build()
	require.NoError(t, err)

	set := NewSet()
	users := set.NewMemory(user)
	identities := set.NewMemory(identity)
	keyPairs := set.NewMemory(keyPair)

	users.Insert(refine.Record{"id": 3, "name": "buckaroo"})
	identities.Insert(refine.Record{"id": 2, "user_id": 3})
	keyPairs.Insert(refine.Record{"id": 1, "identity_id": 2})

	rec, err := keyPairs.Find(context.Background(), "1")
	require.NoError(t, err)

	c, err := keyPairs.Association(context.Background(), rec, keyPair.Reflection("user"))
	require.NoError(t, err)

	recs, err := c.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "buckaroo", recs[0]["name"])
}

func TestLooseEqual(t *testing.T) {
	assert.True(t, looseEqual(7, "7"))
	assert.True(t, looseEqual(7.0, "7"))
	assert.True(t, looseEqual("abc", "abc"))
	assert.True(t, looseEqual(false, "false"))
	assert.False(t, looseEqual(7, "8"))
	assert.True(t, looseEqual(nil, nil))
	assert.False(t, looseEqual(nil, "x"))
}
