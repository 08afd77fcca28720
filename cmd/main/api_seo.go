package main

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagglehome/gagglehome/pkg/blog"
)

// SeoAPI serves the crawler-facing XML endpoints: the sitemap and the RSS
// feed. Both list published posts only.
type SeoAPI struct {
	store   *blog.Store
	logger  *slog.Logger
	siteURL string
}

func NewSeoAPI(store *blog.Store, logger *slog.Logger, siteURL string) *SeoAPI {
	return &SeoAPI{
		store:   store,
		logger:  logger,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// RegisterRoutes sets up the routing for the SEO endpoints.
func (a *SeoAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/blog/sitemap.xml", a.handleSitemap)
	mux.HandleFunc("/blog/feed.xml", a.handleFeed)
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (a *SeoAPI) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	posts, err := a.store.ListPosts(r.Context(), blog.Filter{
		OrderBy: "publish_date", Descending: true,
	})
	if err != nil {
		a.logger.Error("Failed to list posts for sitemap", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to build sitemap")
		return
	}

	set := sitemapURLSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: a.siteURL + "/", ChangeFreq: "weekly", Priority: "1.0"},
			{Loc: a.siteURL + "/blog", ChangeFreq: "daily", Priority: "0.9"},
		},
	}
	for _, p := range posts {
		u := sitemapURL{
			Loc:        a.siteURL + "/blog/" + p.Slug,
			LastMod:    p.UpdatedAt.UTC().Format("2006-01-02"),
			ChangeFreq: "monthly",
			Priority:   "0.7",
		}
		set.URLs = append(set.URLs, u)
	}

	a.writeXML(w, set)
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language"`
	PubDate     string    `xml:"pubDate,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	Author      string `xml:"author,omitempty"`
	PubDate     string `xml:"pubDate"`
}

func (a *SeoAPI) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	posts, err := a.store.ListPosts(r.Context(), blog.Filter{
		OrderBy: "publish_date", Descending: true, Limit: 50,
	})
	if err != nil {
		a.logger.Error("Failed to list posts for feed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to build feed")
		return
	}

	channel := rssChannel{
		Title:       "GaggleHome Blog",
		Link:        a.siteURL + "/blog",
		Description: "Latest posts from the GaggleHome blog",
		Language:    "en-us",
	}
	for _, p := range posts {
		pubDate := p.CreatedAt
		if p.PublishDate != nil {
			pubDate = *p.PublishDate
		}
		channel.Items = append(channel.Items, rssItem{
			Title:       p.Title,
			Link:        a.siteURL + "/blog/" + p.Slug,
			GUID:        a.siteURL + "/blog/" + p.Slug,
			Description: p.Excerpt,
			Author:      p.AuthorName,
			PubDate:     pubDate.UTC().Format(time.RFC1123Z),
		})
	}
	if len(channel.Items) > 0 {
		channel.PubDate = channel.Items[0].PubDate
	}

	a.writeXML(w, rssFeed{Version: "2.0", Channel: channel})
}

func (a *SeoAPI) writeXML(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(payload); err != nil {
		a.logger.Error("Failed to encode XML response", "error", err)
	}
}
