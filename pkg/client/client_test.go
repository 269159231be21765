package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
	"github.com/lumen-api/lumen/internal/server"
	"github.com/lumen-api/lumen/internal/store"
	"github.com/lumen-api/lumen/pkg/client"
)

// testBackend runs the real resource router over seeded memory stores,
// counting requests so tests can assert exactly how many round trips a
// client operation costs.
type testBackend struct {
	server   *httptest.Server
	registry *schema.Registry
	requests int64
}

func (b *testBackend) count() int { return int(atomic.LoadInt64(&b.requests)) }

func (b *testBackend) client(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		Endpoint:          b.server.URL,
		Timeout:           5 * time.Second,
		ClientID:          "test-suite",
		RequestRootInJSON: true,
	}, b.registry)
	require.NoError(t, err)
	return c
}

func newBlogBackend(t *testing.T) *testBackend {
	t.Helper()

	post := schema.New("post").
		Attributes("id", "title", "author_id", "published", "edited", "published_at", "slug").
		Scope("published", "edited").
		BelongsTo("author", schema.Target("user"), schema.ForeignKey("author_id")).
		HasMany("comments").
		Remote("top_comment").
		ReadOnly("slug").
		NestedResources("comments").
		NaturalKey("slug").
		MustBuild()
	comment := schema.New("comment").
		Attributes("id", "post_id", "content", "spam").
		MustBuild()
	user := schema.New("user").
		Attributes("id", "name").
		MustBuild()

	registry := schema.MustNewRegistry(post, comment, user)

	set := store.NewSet()
	posts := set.NewMemory(post)
	comments := set.NewMemory(comment)
	users := set.NewMemory(user)

	posts.RegisterScope("published", func(rec refine.Record) bool {
		v, _ := rec["published"].(bool)
		return v
	})
	posts.RegisterScope("edited", func(rec refine.Record) bool {
		v, _ := rec["edited"].(bool)
		return v
	})
	posts.RegisterRemote("top_comment", func(ctx context.Context, rec refine.Record) (any, error) {
		return map[string]any{"id": 1, "content": "nice"}, nil
	})

	// Five posts by author 7 ranked by published_at, plus one by author 9.
	posts.Insert(refine.Record{"id": 1, "title": "one", "author_id": 7, "published": true, "edited": true, "published_at": "2026-01-01", "slug": "one"})
	posts.Insert(refine.Record{"id": 2, "title": "two", "author_id": 7, "published": true, "edited": false, "published_at": "2026-01-02", "slug": "two"})
	posts.Insert(refine.Record{"id": 3, "title": "three", "author_id": 7, "published": false, "edited": false, "published_at": "2026-01-03", "slug": "three"})
	posts.Insert(refine.Record{"id": 4, "title": "four", "author_id": 7, "published": false, "edited": false, "published_at": "2026-01-04", "slug": "four"})
	posts.Insert(refine.Record{"id": 5, "title": "five", "author_id": 7, "published": false, "edited": false, "published_at": "2026-01-05", "slug": "five"})
	posts.Insert(refine.Record{"id": 6, "title": "six", "author_id": 9, "published": true, "edited": true, "published_at": "2026-01-06", "slug": "six"})
	comments.Insert(refine.Record{"id": 1, "post_id": 1, "content": "nice", "spam": false})
	comments.Insert(refine.Record{"id": 2, "post_id": 1, "content": "buy pills", "spam": true})
	users.Insert(refine.Record{"id": 7, "name": "reno"})

	backend := &testBackend{registry: registry}
	router := server.NewRouter(server.RouterConfig{
		Registry: registry,
		Sources: map[string]refine.Source{
			"post":    posts,
			"comment": comments,
			"user":    users,
		},
	})
	backend.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&backend.requests, 1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(backend.server.Close)
	return backend
}

func TestNewRejectsUnsupportedVersion(t *testing.T) {
	registry := schema.MustNewRegistry(schema.New("post").Attributes("id").MustBuild())

	_, err := client.New(client.Config{
		Endpoint: "http://localhost:1",
		Versions: []string{"v1", "v2"},
		Version:  "v9",
	}, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v9")
}

func TestNewRequiresAbsoluteEndpoint(t *testing.T) {
	registry := schema.MustNewRegistry(schema.New("post").Attributes("id").MustBuild())

	_, err := client.New(client.Config{Endpoint: "/relative"}, registry)
	assert.Error(t, err)
}

func TestResourceUnknownName(t *testing.T) {
	b := newBlogBackend(t)
	c := b.client(t)

	_, err := c.Resource("widget")
	assert.Error(t, err)
}

func TestFindByIDAndNaturalKey(t *testing.T) {
	b := newBlogBackend(t)
	posts := b.client(t).MustResource("post")

	rec, err := posts.Find(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "one", rec.Attr("title"))
	assert.True(t, rec.Persisted())

	rec, err = posts.Find(context.Background(), "two")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec.Attr("id"))
}

func TestFindNotFound(t *testing.T) {
	b := newBlogBackend(t)
	posts := b.client(t).MustResource("post")

	_, err := posts.Find(context.Background(), "99")
	var notFound *client.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NotEmpty(t, notFound.RequestID)
}

func TestMetadataRoundTrip(t *testing.T) {
	b := newBlogBackend(t)
	posts := b.client(t).MustResource("post")

	rec, err := posts.Find(context.Background(), "1")
	require.NoError(t, err)

	md := rec.Metadata()
	assert.Equal(t, []string{"slug"}, md.ReadOnly)
	assert.Equal(t, []string{"comments"}, md.NestedResources)
	assert.Equal(t, "slug", md.NaturalKey)
}

func TestErrorSummaryFormat(t *testing.T) {
	err := &client.ValidationError{
		Fields:    map[string][]string{"title": {"can't be blank"}},
		RequestID: "abc-123/cli",
	}
	assert.Equal(t,
		"record invalid.  Root Cause = title can't be blank.  Request-Id = abc-123/cli.",
		err.Error())

	transport := &client.TransportError{Status: 503, Messages: []string{"down", "retry later"}}
	assert.Equal(t,
		"request failed with status 503.  Root Cause = down, retry later.",
		transport.Error())
}
