// Package auth manages user accounts and browser sessions: bcrypt-hashed
// credentials, random session tokens stored only as sha256 hashes, and the
// CSRF tokens the frontend echoes back on state-changing requests.
package auth
