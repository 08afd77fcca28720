package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT    NOT NULL UNIQUE,
    email         TEXT    NOT NULL UNIQUE,
    password_hash TEXT    NOT NULL,
    first_name    TEXT    NOT NULL DEFAULT '',
    last_name     TEXT    NOT NULL DEFAULT '',
    is_staff      INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY,
    token_hash TEXT    NOT NULL UNIQUE,
    user_id    INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at);
`

var (
	// ErrInvalidCredentials is returned for a bad username or password.
	// Callers must not distinguish the two cases.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidSession is returned for a missing or expired session.
	ErrInvalidSession = errors.New("auth: invalid session")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("auth: user not found")
)

// DefaultSessionTTL is how long a session lives without renewal.
const DefaultSessionTTL = 14 * 24 * time.Hour

// User is an account row; the password hash never leaves the package.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

// Signup carries the fields for account creation.
type Signup struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Validate checks the signup fields.
func (s *Signup) Validate() error {
	if s.FirstName == "" || s.LastName == "" || s.Email == "" || s.Password == "" {
		return fmt.Errorf("auth: all fields are required")
	}
	if !strings.Contains(s.Email, "@") || !strings.Contains(s.Email, ".") {
		return fmt.Errorf("auth: invalid email format")
	}
	if len(s.Password) < 8 {
		return fmt.Errorf("auth: password must be at least 8 characters")
	}
	return nil
}

// Store provides access to users and sessions.
type Store struct {
	db *sql.DB
}

// SetupSchema creates the auth tables if they do not exist.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

// NewStore returns a store over db. SetupSchema must have run.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser registers an account. The email doubles as the username. The
// very first account becomes staff so a fresh deployment can bootstrap an
// editor without shell access.
func (s *Store) CreateUser(ctx context.Context, signup Signup) (*User, error) {
	if err := signup.Validate(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(signup.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(signup.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var userCount int
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&userCount); err != nil {
		return nil, err
	}

	user := &User{
		Username:  email,
		Email:     email,
		FirstName: strings.TrimSpace(signup.FirstName),
		LastName:  strings.TrimSpace(signup.LastName),
		IsStaff:   userCount == 0,
	}
	now := time.Now().Unix()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff, created_at)
		VALUES (?,?,?,?,?,?,?) RETURNING id`,
		user.Username, user.Email, string(hash), user.FirstName, user.LastName, user.IsStaff, now).Scan(&user.ID)
	if err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "UNIQUE") {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	user.CreatedAt = time.Unix(now, 0).UTC()
	return user, nil
}

// Authenticate checks a username (email) and password.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name, is_staff, created_at
		FROM users WHERE username = ?`, strings.ToLower(strings.TrimSpace(username)))

	var user User
	var hash string
	var createdAt int64
	err := row.Scan(&user.ID, &user.Username, &user.Email, &hash,
		&user.FirstName, &user.LastName, &user.IsStaff, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &user, nil
}

// GetUser fetches an account by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, first_name, last_name, is_staff, created_at
		FROM users WHERE id = ?`, id)
	var user User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Username, &user.Email,
		&user.FirstName, &user.LastName, &user.IsStaff, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &user, nil
}

// CreateSession issues a session token for the user. Only the sha256 of the
// token is stored.
func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	token, err := randomToken("ghs_")
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at, created_at) VALUES (?,?,?,?)`,
		hashToken(token), userID, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetSession resolves a session token to its user, rejecting expired
// sessions.
func (s *Store) GetSession(ctx context.Context, token string) (*User, error) {
	var userID int64
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token_hash = ?`,
		hashToken(token)).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() >= expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hashToken(token))
		return nil, ErrInvalidSession
	}
	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidSession
	}
	return user, err
}

// DeleteSession logs a session out. Unknown tokens are a no-op.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hashToken(token))
	return err
}

// PruneSessions removes expired sessions and returns how many were removed.
func (s *Store) PruneSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NewCSRFToken returns a fresh random token for the double-submit cookie.
func NewCSRFToken() (string, error) {
	return randomToken("")
}

func randomToken(prefix string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: reading random bytes: %w", err)
	}
	return prefix + hex.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
