package blog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateCategory inserts a category, slugifying the name when no slug is
// given.
func (s *Store) CreateCategory(ctx context.Context, c *Category) error {
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	now := time.Now().Unix()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, slug, description, parent_id, ord, created_at)
		 VALUES (?,?,?,?,?,?) RETURNING id`,
		c.Name, c.Slug, c.Description, nullID(c.ParentID), c.Order, now).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	c.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// UpdateCategory rewrites a category by ID.
func (s *Store) UpdateCategory(ctx context.Context, c *Category) error {
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name=?, slug=?, description=?, parent_id=?, ord=? WHERE id=?`,
		c.Name, c.Slug, c.Description, nullID(c.ParentID), c.Order, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category by ID.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCategory fetches a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, parent_id, ord, created_at FROM categories WHERE id=?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCategories returns all categories in display order.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, description, parent_id, ord, created_at FROM categories ORDER BY ord, name`)
	if err != nil {
		return nil, err
	}
	return collectCategories(rows)
}

// CreateTag inserts a tag, slugifying the name when no slug is given.
func (s *Store) CreateTag(ctx context.Context, t *Tag) error {
	if t.Slug == "" {
		t.Slug = Slugify(t.Name)
	}
	now := time.Now().Unix()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tags (name, slug, created_at) VALUES (?,?,?) RETURNING id`,
		t.Name, t.Slug, now).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	t.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// UpdateTag rewrites a tag by ID.
func (s *Store) UpdateTag(ctx context.Context, t *Tag) error {
	if t.Slug == "" {
		t.Slug = Slugify(t.Name)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET name=?, slug=? WHERE id=?`, t.Name, t.Slug, t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTag removes a tag by ID.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTag fetches a tag by ID.
func (s *Store) GetTag(ctx context.Context, id int64) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, slug, created_at FROM tags WHERE id=?`, id)
	var t Tag
	var createdAt int64
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}

// ListTags returns all tags alphabetically.
func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectTags(rows)
}

// AddImage records an uploaded image.
func (s *Store) AddImage(ctx context.Context, img *Image) error {
	now := time.Now().Unix()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO blog_images (url, alt_text, filename, size, uploaded_by, created_at)
		 VALUES (?,?,?,?,?,?) RETURNING id`,
		img.URL, img.AltText, img.Filename, img.Size, nullID(img.UploadedBy), now).Scan(&img.ID)
	if err != nil {
		return err
	}
	img.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// ListImages returns uploaded images, newest first.
func (s *Store) ListImages(ctx context.Context) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, alt_text, filename, size, uploaded_by, created_at
		 FROM blog_images ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var images []Image
	for rows.Next() {
		var img Image
		var uploadedBy sql.NullInt64
		var createdAt int64
		if err = rows.Scan(&img.ID, &img.URL, &img.AltText, &img.Filename, &img.Size, &uploadedBy, &createdAt); err != nil {
			return nil, err
		}
		if uploadedBy.Valid {
			img.UploadedBy = &uploadedBy.Int64
		}
		img.CreatedAt = time.Unix(createdAt, 0).UTC()
		images = append(images, img)
	}
	return images, rows.Err()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func scanCategory(row interface{ Scan(...any) error }) (*Category, error) {
	var c Category
	var parent sql.NullInt64
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &parent, &c.Order, &createdAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

func collectCategories(rows *sql.Rows) ([]Category, error) {
	defer func() {
		_ = rows.Close()
	}()
	var categories []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func collectTags(rows *sql.Rows) ([]Tag, error) {
	defer func() {
		_ = rows.Close()
	}()
	var tags []Tag
	for rows.Next() {
		var t Tag
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
