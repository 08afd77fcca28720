package themes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const themesSchema = `
CREATE TABLE IF NOT EXISTS themes (
    id           INTEGER PRIMARY KEY,
    name         TEXT    NOT NULL UNIQUE,
    display_name TEXT    NOT NULL,
    description  TEXT    NOT NULL DEFAULT '',
    css_vars     TEXT    NOT NULL,
    is_system    INTEGER NOT NULL DEFAULT 0,
    is_active    INTEGER NOT NULL DEFAULT 1,
    version      TEXT    NOT NULL DEFAULT '1.0.0',
    created_by   INTEGER,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS theme_settings (
    id                INTEGER PRIMARY KEY CHECK (id = 1),
    current_theme_id  INTEGER NOT NULL REFERENCES themes (id),
    fallback_theme_id INTEGER NOT NULL REFERENCES themes (id),
    updated_at        INTEGER NOT NULL,
    updated_by        INTEGER
);
`

// ErrNotFound is returned when a theme does not exist or is inactive.
var ErrNotFound = errors.New("themes: not found")

// ErrNameTaken is returned when a theme name collides.
var ErrNameTaken = errors.New("themes: name already in use")

// ErrNoThemes is returned when no active theme exists at all.
var ErrNoThemes = errors.New("themes: no active themes")

// Setting is the singleton current/fallback theme selection.
type Setting struct {
	CurrentTheme  string    `json:"current_theme"`
	FallbackTheme string    `json:"fallback_theme"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     *int64    `json:"updated_by,omitempty"`
}

// Store provides access to themes. Methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// SetupSchema creates the theme tables if they do not exist.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(themesSchema)
	return err
}

// NewStore returns a store over db. SetupSchema must have run.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create validates and inserts a theme.
func (s *Store) Create(ctx context.Context, t *Theme) error {
	if err := t.Validate(); err != nil {
		return err
	}
	vars, err := json.Marshal(t.CSSVars)
	if err != nil {
		return err
	}
	if t.Version == "" {
		t.Version = "1.0.0"
	}
	now := time.Now().Unix()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO themes (name, display_name, description, css_vars, is_system, is_active, version, created_by, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		t.Name, t.DisplayName, t.Description, string(vars), t.IsSystem, t.IsActive, t.Version,
		nullID(t.CreatedBy), now, now).Scan(&t.ID)
	if err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "UNIQUE") {
			return ErrNameTaken
		}
		return err
	}
	t.CreatedAt = time.Unix(now, 0).UTC()
	t.UpdatedAt = t.CreatedAt
	return nil
}

// Update validates and rewrites a theme identified by name.
func (s *Store) Update(ctx context.Context, t *Theme) error {
	if err := t.Validate(); err != nil {
		return err
	}
	vars, err := json.Marshal(t.CSSVars)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE themes SET display_name=?, description=?, css_vars=?, is_system=?, is_active=?, version=?, updated_at=?
		WHERE name=?`,
		t.DisplayName, t.Description, string(vars), t.IsSystem, t.IsActive, t.Version, now, t.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	t.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

// Delete removes a theme by name. The currently selected or fallback theme
// cannot be deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	setting, err := s.GetSetting(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if setting != nil && (setting.CurrentTheme == name || setting.FallbackTheme == name) {
		return fmt.Errorf("themes: %q is selected as current or fallback and cannot be deleted", name)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM themes WHERE name=?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const themeColumns = `id, name, display_name, description, css_vars, is_system, is_active, version, created_by, created_at, updated_at`

func scanTheme(row interface{ Scan(...any) error }) (*Theme, error) {
	var t Theme
	var vars string
	var createdBy sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &vars,
		&t.IsSystem, &t.IsActive, &t.Version, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(vars), &t.CSSVars); err != nil {
		return nil, fmt.Errorf("themes: corrupt css_vars for %q: %w", t.Name, err)
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}

// Get fetches an active theme by name.
func (s *Store) Get(ctx context.Context, name string) (*Theme, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+themeColumns+` FROM themes WHERE name=? AND is_active=1`, name)
	t, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns all active themes ordered by display name.
func (s *Store) List(ctx context.Context) ([]*Theme, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+themeColumns+` FROM themes WHERE is_active=1 ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var themes []*Theme
	for rows.Next() {
		t, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// SetSetting selects the current and fallback themes. Both must exist, be
// active, and differ.
func (s *Store) SetSetting(ctx context.Context, current, fallback string, updatedBy *int64) error {
	if current == fallback {
		return fmt.Errorf("themes: current and fallback themes must differ")
	}
	cur, err := s.Get(ctx, current)
	if err != nil {
		return fmt.Errorf("themes: current theme %q: %w", current, err)
	}
	fb, err := s.Get(ctx, fallback)
	if err != nil {
		return fmt.Errorf("themes: fallback theme %q: %w", fallback, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO theme_settings (id, current_theme_id, fallback_theme_id, updated_at, updated_by)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			current_theme_id=excluded.current_theme_id,
			fallback_theme_id=excluded.fallback_theme_id,
			updated_at=excluded.updated_at,
			updated_by=excluded.updated_by`,
		cur.ID, fb.ID, time.Now().Unix(), nullID(updatedBy))
	return err
}

// GetSetting returns the singleton setting, or ErrNotFound before any
// selection has been made.
func (s *Store) GetSetting(ctx context.Context) (*Setting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.name, f.name, st.updated_at, st.updated_by
		FROM theme_settings st
		JOIN themes c ON c.id = st.current_theme_id
		JOIN themes f ON f.id = st.fallback_theme_id
		WHERE st.id = 1`)
	var setting Setting
	var updatedAt int64
	var updatedBy sql.NullInt64
	err := row.Scan(&setting.CurrentTheme, &setting.FallbackTheme, &updatedAt, &updatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	setting.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if updatedBy.Valid {
		setting.UpdatedBy = &updatedBy.Int64
	}
	return &setting, nil
}

// Current resolves the theme to serve: the selected current theme, then the
// fallback, then any active theme, then ErrNoThemes.
func (s *Store) Current(ctx context.Context) (*Theme, error) {
	setting, err := s.GetSetting(ctx)
	if err == nil {
		if t, err := s.Get(ctx, setting.CurrentTheme); err == nil {
			return t, nil
		}
		if t, err := s.Get(ctx, setting.FallbackTheme); err == nil {
			return t, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+themeColumns+` FROM themes WHERE is_active=1 ORDER BY display_name LIMIT 1`)
	t, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoThemes
	}
	return t, err
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
