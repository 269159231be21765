package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lumen-api/lumen/internal/cli/config"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
	"github.com/lumen-api/lumen/internal/store"
)

// blogRegistry declares the demo blog resources served out of the box.
// Swap this out for your own schemas when embedding the server.
func blogRegistry() *schema.Registry {
	post := schema.New("post").
		Attributes("id", "title", "body", "author_id", "published", "published_at", "slug").
		Scope("published", "recent").
		BelongsTo("author", schema.Target("user")).
		HasMany("comments").
		Remote("top_comment").
		ReadOnly("slug").
		NestedResources("comments").
		NaturalKey("slug").
		MustBuild()

	comment := schema.New("comment").
		Attributes("id", "post_id", "content", "spam").
		Scope("ham").
		BelongsTo("post").
		MustBuild()

	user := schema.New("user").
		Attributes("id", "name", "username").
		HasMany("posts", schema.Target("post"), schema.ForeignKey("author_id")).
		NaturalKey("username").
		MustBuild()

	return schema.MustNewRegistry(post, comment, user)
}

func buildSources(cfg config.DatabaseConfig, registry *schema.Registry) (map[string]refine.Source, error) {
	if cfg.Driver == "memory" {
		return memorySources(registry), nil
	}
	return sqlSources(cfg, registry)
}

// memorySources seeds an in-process backend so the server is usable
// without a database.
func memorySources(registry *schema.Registry) map[string]refine.Source {
	post, _ := registry.Get("post")
	comment, _ := registry.Get("comment")
	user, _ := registry.Get("user")

	set := store.NewSet()
	posts := set.NewMemory(post)
	comments := set.NewMemory(comment)
	users := set.NewMemory(user)

	posts.RegisterScope("published", func(rec refine.Record) bool {
		v, _ := rec["published"].(bool)
		return v
	})
	posts.RegisterScope("recent", func(rec refine.Record) bool {
		at, _ := rec["published_at"].(string)
		return at >= time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	})
	posts.RegisterRemote("top_comment", func(ctx context.Context, rec refine.Record) (any, error) {
		best := refine.Record(nil)
		all, err := comments.Collection().Where("post_id", rec["id"]).Records(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if spam, _ := c["spam"].(bool); !spam {
				best = c
				break
			}
		}
		return best, nil
	})
	posts.Validate(func(rec refine.Record) map[string][]string {
		if rec["title"] == nil || rec["title"] == "" {
			return map[string][]string{"title": {"can't be blank"}}
		}
		return nil
	})

	comments.RegisterScope("ham", func(rec refine.Record) bool {
		v, _ := rec["spam"].(bool)
		return !v
	})

	users.Insert(refine.Record{"id": 1, "name": "Ada", "username": "ada"})
	users.Insert(refine.Record{"id": 2, "name": "Lin", "username": "lin"})
	posts.Insert(refine.Record{"id": 1, "title": "First light", "body": "hello", "author_id": 1,
		"published": true, "published_at": "2026-08-01", "slug": "first-light"})
	posts.Insert(refine.Record{"id": 2, "title": "Drafts", "body": "wip", "author_id": 1,
		"published": false, "published_at": "2026-08-10", "slug": "drafts"})
	posts.Insert(refine.Record{"id": 3, "title": "Archive", "body": "old", "author_id": 2,
		"published": true, "published_at": "2025-01-01", "slug": "archive"})
	comments.Insert(refine.Record{"id": 1, "post_id": 1, "content": "welcome", "spam": false})
	comments.Insert(refine.Record{"id": 2, "post_id": 1, "content": "buy pills", "spam": true})

	return map[string]refine.Source{
		"post":    posts,
		"comment": comments,
		"user":    users,
	}
}

// sqlSources serves the same resources from a SQL database. Tables are
// expected to exist already, named after each resource collection.
func sqlSources(cfg config.DatabaseConfig, registry *schema.Registry) (map[string]refine.Source, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	placeholder := store.Question
	if cfg.Driver == "postgres" {
		placeholder = store.Dollar
	}

	post, _ := registry.Get("post")
	comment, _ := registry.Get("comment")
	user, _ := registry.Get("user")

	set := store.NewSQLSet()
	posts := set.NewSQL(post, db, placeholder)
	comments := set.NewSQL(comment, db, placeholder)
	users := set.NewSQL(user, db, placeholder)

	posts.RegisterScope("published", "published = TRUE")
	if cfg.Driver == "postgres" {
		posts.RegisterScope("recent", "published_at >= now() - interval '1 month'")
	} else {
		posts.RegisterScope("recent", "published_at >= date('now', '-1 month')")
	}
	comments.RegisterScope("ham", "spam = FALSE")

	return map[string]refine.Source{
		"post":    posts,
		"comment": comments,
		"user":    users,
	}, nil
}
