package cache

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler(hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"posts":[],"serve":` + strconv.Itoa(*hits) + `}`))
	})
}

func TestResponsesCachesRepeatGET(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	handler := Responses(DefaultMiddlewareConfig(m))(countingHandler(&hits))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/posts.json?limit=2", nil))
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/posts.json?limit=2", nil))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	assert.Equal(t, 1, hits)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestResponsesVariesOnQuery(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	handler := Responses(DefaultMiddlewareConfig(m))(countingHandler(&hits))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json?limit=1", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json?limit=2", nil))

	assert.Equal(t, 2, hits)
}

func TestResponsesWriteInvalidatesCollection(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	mux := http.NewServeMux()
	mux.Handle("/posts.json", countingHandler(&hits))
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := Responses(DefaultMiddlewareConfig(m))(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))
	require.Equal(t, 1, hits)

	post := httptest.NewRecorder()
	handler.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/posts", nil))
	require.Equal(t, http.StatusCreated, post.Code)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))
	assert.Equal(t, 2, hits)
}

func TestResponsesFailedWriteKeepsCache(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	mux := http.NewServeMux()
	mux.Handle("/posts.json", countingHandler(&hits))
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	handler := Responses(DefaultMiddlewareConfig(m))(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/posts", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))

	assert.Equal(t, 1, hits)
}

func TestResponsesSkipPaths(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	config := DefaultMiddlewareConfig(m)
	config.SkipPaths = []string{"/posts.json"}
	handler := Responses(config)(countingHandler(&hits))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts.json", nil))

	assert.Equal(t, 2, hits)
}

func TestResponsesDoesNotCacheErrors(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var hits int
	handler := Responses(DefaultMiddlewareConfig(m))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/9.json", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/9.json", nil))

	assert.Equal(t, 2, hits)
}

func TestCollectionSegment(t *testing.T) {
	assert.Equal(t, "posts", collectionSegment("/posts.json"))
	assert.Equal(t, "posts", collectionSegment("/posts/1.json"))
	assert.Equal(t, "posts", collectionSegment("/posts/1/comments.json"))
	assert.Equal(t, "", collectionSegment("/"))
}

func TestMiddlewareConfigTTL(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	config := DefaultMiddlewareConfig(m)
	assert.Equal(t, 5*time.Minute, config.TTL)
}
