// Package blog provides the sqlite-backed store for posts, categories,
// tags, and uploaded images, along with markdown rendering (GFM plus the
// site's {{type:data}} component syntax) and the derived-field helpers
// (slugs, excerpts, reading time) the editor relies on.
package blog
