// Package themes stores the site's design-token themes and turns them into
// CSS. A theme is a named set of CSS variables split into a mode-independent
// "theme" section plus "light" and "dark" modes; the active theme is
// rendered into :root/.dark rule blocks and injected into the SPA shell at
// request time. A singleton setting tracks the current and fallback themes.
package themes
