package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const blogSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id                        INTEGER PRIMARY KEY,
    title                     TEXT    NOT NULL,
    slug                      TEXT    NOT NULL UNIQUE,
    content                   TEXT    NOT NULL,
    excerpt                   TEXT    NOT NULL DEFAULT '',
    featured_image            TEXT    NOT NULL DEFAULT '',
    og_image                  TEXT    NOT NULL DEFAULT '',
    full_width_image          INTEGER NOT NULL DEFAULT 1,
    hero_background_type      TEXT    NOT NULL DEFAULT '',
    hero_background_opacity   REAL    NOT NULL DEFAULT 0.6,
    hero_background_scope     TEXT    NOT NULL DEFAULT 'hero',
    hero_background_size      TEXT    NOT NULL DEFAULT 'cover',
    hero_background_tile_size INTEGER NOT NULL DEFAULT 800,
    author_id                 INTEGER NOT NULL,
    author_name               TEXT    NOT NULL DEFAULT '',
    status                    TEXT    NOT NULL DEFAULT 'draft',
    publish_date              INTEGER,
    meta_title                TEXT    NOT NULL DEFAULT '',
    meta_description          TEXT    NOT NULL DEFAULT '',
    meta_keywords             TEXT    NOT NULL DEFAULT '',
    focus_keyword             TEXT    NOT NULL DEFAULT '',
    canonical_url             TEXT    NOT NULL DEFAULT '',
    reading_time              INTEGER NOT NULL DEFAULT 1,
    view_count                INTEGER NOT NULL DEFAULT 0,
    featured                  INTEGER NOT NULL DEFAULT 0,
    allow_comments            INTEGER NOT NULL DEFAULT 1,
    created_at                INTEGER NOT NULL,
    updated_at                INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_status_publish ON posts (status, publish_date);
CREATE INDEX IF NOT EXISTS idx_posts_publish_date ON posts (publish_date DESC);

CREATE TABLE IF NOT EXISTS categories (
    id          INTEGER PRIMARY KEY,
    name        TEXT    NOT NULL UNIQUE,
    slug        TEXT    NOT NULL UNIQUE,
    description TEXT    NOT NULL DEFAULT '',
    parent_id   INTEGER REFERENCES categories (id) ON DELETE SET NULL,
    ord         INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
    id         INTEGER PRIMARY KEY,
    name       TEXT    NOT NULL UNIQUE,
    slug       TEXT    NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS post_categories (
    post_id     INTEGER NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
    category_id INTEGER NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, category_id)
);

CREATE TABLE IF NOT EXISTS post_tags (
    post_id INTEGER NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
    tag_id  INTEGER NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
    PRIMARY KEY (post_id, tag_id)
);

CREATE TABLE IF NOT EXISTS blog_images (
    id          INTEGER PRIMARY KEY,
    url         TEXT    NOT NULL UNIQUE,
    alt_text    TEXT    NOT NULL DEFAULT '',
    filename    TEXT    NOT NULL,
    size        INTEGER NOT NULL,
    uploaded_by INTEGER,
    created_at  INTEGER NOT NULL
);
`

// ErrNotFound is returned when a post, category, or tag does not exist.
var ErrNotFound = errors.New("blog: not found")

// ErrSlugTaken is returned when a slug collides with an existing row.
var ErrSlugTaken = errors.New("blog: slug already in use")

// Post status values. A scheduled post becomes publicly visible on its own
// once its publish date passes; no background job flips the status.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusScheduled = "scheduled"
	StatusArchived  = "archived"
)

// publicPredicate matches the posts anonymous visitors may see: published
// posts, plus scheduled posts whose publish date has arrived. Takes one
// argument, the current unix time.
const publicPredicate = `(p.status='published' OR p.status='scheduled')
	AND p.publish_date IS NOT NULL AND p.publish_date<=?`

// ValidStatus reports whether s is a known post status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusScheduled, StatusArchived:
		return true
	}
	return false
}

// Post is a blog post row plus its taxonomy.
type Post struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt"`

	FeaturedImage          string  `json:"featured_image"`
	OGImage                string  `json:"og_image"`
	FullWidthImage         bool    `json:"full_width_image"`
	HeroBackgroundType     string  `json:"hero_background_type"`
	HeroBackgroundOpacity  float64 `json:"hero_background_opacity"`
	HeroBackgroundScope    string  `json:"hero_background_scope"`
	HeroBackgroundSize     string  `json:"hero_background_size"`
	HeroBackgroundTileSize int     `json:"hero_background_tile_size"`

	AuthorID    int64      `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	Status      string     `json:"status"`
	PublishDate *time.Time `json:"publish_date,omitempty"`

	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
	MetaKeywords    string `json:"meta_keywords"`
	FocusKeyword    string `json:"focus_keyword"`
	CanonicalURL    string `json:"canonical_url"`

	ReadingTime   int  `json:"reading_time"`
	ViewCount     int  `json:"view_count"`
	Featured      bool `json:"featured"`
	AllowComments bool `json:"allow_comments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Categories []Category `json:"categories"`
	Tags       []Tag      `json:"tags"`
}

// Category is a hierarchical post grouping.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag is a flat post label.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is an uploaded blog image record.
type Image struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	AltText    string    `json:"alt_text"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedBy *int64    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows and orders a post listing.
type Filter struct {
	// IncludeUnpublished lifts the published-and-due restriction (staff).
	IncludeUnpublished bool
	CategorySlug       string
	TagSlug            string
	FeaturedOnly       bool
	Status             string
	AuthorID           int64
	Search             string
	OrderBy            string // publish_date, view_count, created_at, updated_at
	Descending         bool
	Limit              int
}

// Store provides access to blog data. All methods are safe for concurrent
// use; the underlying *sql.DB does the pooling.
type Store struct {
	db *sql.DB
}

// SetupSchema creates the blog tables if they do not exist.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(blogSchema)
	return err
}

// NewStore returns a store over db. SetupSchema must have run.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PrepareForSave fills a post's derived fields: slug from title, excerpt and
// reading time from rendered content, and the first-publish date.
func (s *Store) PrepareForSave(p *Post, now time.Time) error {
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if p.Slug == "" {
		return fmt.Errorf("blog: post %q produces an empty slug", p.Title)
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if !ValidStatus(p.Status) {
		return fmt.Errorf("blog: invalid status %q", p.Status)
	}

	rendered, err := RenderMarkdown(p.Content)
	if err != nil {
		return err
	}
	plain := PlainText(rendered.HTML)
	p.ReadingTime = ReadingTime(plain)
	if p.Excerpt == "" {
		p.Excerpt = Excerpt(plain, 300)
	}
	if p.Status == StatusPublished && p.PublishDate == nil {
		p.PublishDate = &now
	}
	return nil
}

const postColumns = `p.id, p.title, p.slug, p.content, p.excerpt,
	p.featured_image, p.og_image, p.full_width_image,
	p.hero_background_type, p.hero_background_opacity, p.hero_background_scope,
	p.hero_background_size, p.hero_background_tile_size,
	p.author_id, p.author_name, p.status, p.publish_date,
	p.meta_title, p.meta_description, p.meta_keywords, p.focus_keyword, p.canonical_url,
	p.reading_time, p.view_count, p.featured, p.allow_comments,
	p.created_at, p.updated_at`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var publishDate sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt,
		&p.FeaturedImage, &p.OGImage, &p.FullWidthImage,
		&p.HeroBackgroundType, &p.HeroBackgroundOpacity, &p.HeroBackgroundScope,
		&p.HeroBackgroundSize, &p.HeroBackgroundTileSize,
		&p.AuthorID, &p.AuthorName, &p.Status, &publishDate,
		&p.MetaTitle, &p.MetaDescription, &p.MetaKeywords, &p.FocusKeyword, &p.CanonicalURL,
		&p.ReadingTime, &p.ViewCount, &p.Featured, &p.AllowComments,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if publishDate.Valid {
		t := time.Unix(publishDate.Int64, 0).UTC()
		p.PublishDate = &t
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// CreatePost inserts a post and its taxonomy links. The post must have been
// passed through PrepareForSave.
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().Unix()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO posts (title, slug, content, excerpt,
			featured_image, og_image, full_width_image,
			hero_background_type, hero_background_opacity, hero_background_scope,
			hero_background_size, hero_background_tile_size,
			author_id, author_name, status, publish_date,
			meta_title, meta_description, meta_keywords, focus_keyword, canonical_url,
			reading_time, featured, allow_comments, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`,
		p.Title, p.Slug, p.Content, p.Excerpt,
		p.FeaturedImage, p.OGImage, p.FullWidthImage,
		p.HeroBackgroundType, p.HeroBackgroundOpacity, p.HeroBackgroundScope,
		p.HeroBackgroundSize, p.HeroBackgroundTileSize,
		p.AuthorID, p.AuthorName, p.Status, nullTime(p.PublishDate),
		p.MetaTitle, p.MetaDescription, p.MetaKeywords, p.FocusKeyword, p.CanonicalURL,
		p.ReadingTime, p.Featured, p.AllowComments, now, now,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}

	if err = s.linkTaxonomy(ctx, tx, p); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	p.CreatedAt = time.Unix(now, 0).UTC()
	p.UpdatedAt = p.CreatedAt
	return nil
}

// UpdatePost rewrites a post identified by ID and replaces its taxonomy
// links.
func (s *Store) UpdatePost(ctx context.Context, p *Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		UPDATE posts SET title=?, slug=?, content=?, excerpt=?,
			featured_image=?, og_image=?, full_width_image=?,
			hero_background_type=?, hero_background_opacity=?, hero_background_scope=?,
			hero_background_size=?, hero_background_tile_size=?,
			author_name=?, status=?, publish_date=?,
			meta_title=?, meta_description=?, meta_keywords=?, focus_keyword=?, canonical_url=?,
			reading_time=?, featured=?, allow_comments=?, updated_at=?
		WHERE id=?`,
		p.Title, p.Slug, p.Content, p.Excerpt,
		p.FeaturedImage, p.OGImage, p.FullWidthImage,
		p.HeroBackgroundType, p.HeroBackgroundOpacity, p.HeroBackgroundScope,
		p.HeroBackgroundSize, p.HeroBackgroundTileSize,
		p.AuthorName, p.Status, nullTime(p.PublishDate),
		p.MetaTitle, p.MetaDescription, p.MetaKeywords, p.FocusKeyword, p.CanonicalURL,
		p.ReadingTime, p.Featured, p.AllowComments, now, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM post_categories WHERE post_id=?`, p.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id=?`, p.ID); err != nil {
		return err
	}
	if err = s.linkTaxonomy(ctx, tx, p); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	p.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

func (s *Store) linkTaxonomy(ctx context.Context, tx *sql.Tx, p *Post) error {
	for _, c := range p.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_categories (post_id, category_id) VALUES (?, ?)`,
			p.ID, c.ID); err != nil {
			return err
		}
	}
	for _, t := range p.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)`,
			p.ID, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeletePost removes a post by slug.
func (s *Store) DeletePost(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE slug=?`, slug)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPost fetches a post by slug with its taxonomy. When publicOnly is set
// only a publicly visible (published, or scheduled and due) post is
// returned.
func (s *Store) GetPost(ctx context.Context, slug string, publicOnly bool) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.slug=?`
	args := []any{slug}
	if publicOnly {
		query += ` AND ` + publicPredicate
		args = append(args, time.Now().Unix())
	}
	p, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err = s.attachTaxonomy(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosts returns posts matching the filter, newest first by default.
func (s *Store) ListPosts(ctx context.Context, f Filter) ([]*Post, error) {
	var where []string
	var args []any

	if !f.IncludeUnpublished {
		where = append(where, publicPredicate)
		args = append(args, time.Now().Unix())
	}
	if f.Status != "" {
		where = append(where, `p.status=?`)
		args = append(args, f.Status)
	}
	if f.AuthorID != 0 {
		where = append(where, `p.author_id=?`)
		args = append(args, f.AuthorID)
	}
	if f.FeaturedOnly {
		where = append(where, `p.featured=1`)
	}
	if f.CategorySlug != "" {
		where = append(where, `p.id IN (SELECT pc.post_id FROM post_categories pc
			JOIN categories c ON c.id=pc.category_id WHERE c.slug=?)`)
		args = append(args, f.CategorySlug)
	}
	if f.TagSlug != "" {
		where = append(where, `p.id IN (SELECT pt.post_id FROM post_tags pt
			JOIN tags t ON t.id=pt.tag_id WHERE t.slug=?)`)
		args = append(args, f.TagSlug)
	}
	if f.Search != "" {
		where = append(where, `(p.title LIKE ? ESCAPE '\' OR p.content LIKE ? ESCAPE '\' OR p.excerpt LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(f.Search) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + postColumns + ` FROM posts p`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + orderClause(f)
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range posts {
		if err = s.attachTaxonomy(ctx, p); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// orderClause whitelists the sortable columns; anything else falls back to
// creation order.
func orderClause(f Filter) string {
	col := "p.created_at"
	switch f.OrderBy {
	case "publish_date":
		col = "p.publish_date"
	case "view_count":
		col = "p.view_count"
	case "updated_at":
		col = "p.updated_at"
	case "created_at", "":
	}
	dir := "ASC"
	if f.Descending || f.OrderBy == "" {
		dir = "DESC"
	}
	return col + " " + dir
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RelatedPosts returns up to limit publicly visible posts sharing a category
// or tag with the given post.
func (s *Store) RelatedPosts(ctx context.Context, postID int64, limit int) ([]*Post, error) {
	query := `SELECT DISTINCT ` + postColumns + ` FROM posts p
		WHERE p.id != ?
		  AND ` + publicPredicate + `
		  AND (p.id IN (SELECT pc2.post_id FROM post_categories pc2 WHERE pc2.category_id IN
		        (SELECT category_id FROM post_categories WHERE post_id = ?))
		    OR p.id IN (SELECT pt2.post_id FROM post_tags pt2 WHERE pt2.tag_id IN
		        (SELECT tag_id FROM post_tags WHERE post_id = ?)))
		ORDER BY p.publish_date DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query,
		postID, time.Now().Unix(), postID, postID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range posts {
		if err = s.attachTaxonomy(ctx, p); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// IncrementViews bumps a post's view counter and returns the new value.
func (s *Store) IncrementViews(ctx context.Context, slug string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE slug=? RETURNING view_count`,
		slug).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

func (s *Store) attachTaxonomy(ctx context.Context, p *Post) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.parent_id, c.ord, c.created_at
		FROM categories c JOIN post_categories pc ON pc.category_id = c.id
		WHERE pc.post_id = ? ORDER BY c.ord, c.name`, p.ID)
	if err != nil {
		return err
	}
	p.Categories, err = collectCategories(rows)
	if err != nil {
		return err
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.created_at
		FROM tags t JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = ? ORDER BY t.name`, p.ID)
	if err != nil {
		return err
	}
	p.Tags, err = collectTags(tagRows)
	return err
}

// isUniqueViolation detects a UNIQUE constraint failure from either sqlite
// driver without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
