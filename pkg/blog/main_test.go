package blog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// setupTestStore creates a fresh on-disk sqlite database and a Store.
func setupTestStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "blog.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	return context.Background(), NewStore(db)
}

// makePost prepares and inserts a published post with the given title.
func makePost(t *testing.T, ctx context.Context, s *Store, title, status string) *Post {
	t.Helper()
	p := &Post{
		Title:    title,
		Content:  "Some **markdown** content for " + title + ".",
		AuthorID: 1,
		Status:   status,
	}
	if err := s.PrepareForSave(p, time.Now()); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("CreatePost(%q) error = %v", title, err)
	}
	return p
}
