// Package assets implements the static asset server for the built frontend.
//
// Assets are loaded from a dist directory into a two-tier store: files at or
// below a configurable size limit are held in memory with a precomputed
// strong ETag and, where it pays off, a precomputed gzip body; larger files
// stay on disk and are streamed on demand. Requests for paths that do not
// match any asset fall through to the SPA shell, an html/template rendering
// of the index page with the active theme's CSS variables and entrypoint
// names injected server-side.
package assets
