package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagglehome/gagglehome/pkg/blog"
)

// BlogAPI holds the dependencies for the blog API handlers.
type BlogAPI struct {
	store  *blog.Store
	auth   *AuthAPI
	logger *slog.Logger
}

func NewBlogAPI(store *blog.Store, auth *AuthAPI, logger *slog.Logger) *BlogAPI {
	return &BlogAPI{
		store:  store,
		auth:   auth,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/v1/blog endpoints.
func (a *BlogAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/blog/posts", a.handlePosts)
	mux.HandleFunc("/api/v1/blog/posts/", a.handlePostBySlug)
	mux.HandleFunc("/api/v1/blog/drafts", a.handleDrafts)
	mux.HandleFunc("/api/v1/blog/all_posts", a.handleAllPosts)
	mux.HandleFunc("/api/v1/blog/categories", a.handleCategories)
	mux.HandleFunc("/api/v1/blog/categories/", a.handleCategoryByID)
	mux.HandleFunc("/api/v1/blog/tags", a.handleTags)
	mux.HandleFunc("/api/v1/blog/tags/", a.handleTagByID)
	mux.HandleFunc("/api/v1/blog/images", a.handleImages)
}

func (a *BlogAPI) handlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPosts(w, r, false)
	case http.MethodPost:
		a.createPost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// listPosts serves the public listing. Staff may additionally filter by
// status; everyone else only ever sees published-and-due posts.
func (a *BlogAPI) listPosts(w http.ResponseWriter, r *http.Request, includeUnpublished bool) {
	q := r.URL.Query()
	filter := blog.Filter{
		IncludeUnpublished: includeUnpublished,
		CategorySlug:       q.Get("category"),
		TagSlug:            q.Get("tag"),
		FeaturedOnly:       q.Get("featured") == "true",
		Search:             q.Get("search"),
		OrderBy:            q.Get("order_by"),
		Descending:         q.Get("order") != "asc",
	}
	if includeUnpublished {
		filter.Status = q.Get("status")
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	posts, err := a.store.ListPosts(r.Context(), filter)
	if err != nil {
		a.logger.Error("Failed to list posts", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list posts")
		return
	}
	respondWithJSON(w, http.StatusOK, posts)
}

func (a *BlogAPI) createPost(w http.ResponseWriter, r *http.Request) {
	user := a.auth.RequireStaff(w, r)
	if user == nil {
		return
	}

	var post blog.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	post.AuthorID = user.ID
	post.AuthorName = strings.TrimSpace(user.FirstName + " " + user.LastName)

	if err := a.store.PrepareForSave(&post, time.Now()); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.CreatePost(r.Context(), &post); err != nil {
		if errors.Is(err, blog.ErrSlugTaken) {
			respondWithError(w, http.StatusConflict, "A post with this slug already exists")
			return
		}
		a.logger.Error("Failed to create post", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}
	a.logger.Info("Post created", "slug", post.Slug, "author", post.AuthorName)
	respondWithJSON(w, http.StatusCreated, &post)
}

// handlePostBySlug routes /api/v1/blog/posts/{slug}[/view|/related].
func (a *BlogAPI) handlePostBySlug(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/blog/posts/"), "/")
	slug, action, _ := strings.Cut(rest, "/")
	if slug == "" {
		respondWithError(w, http.StatusBadRequest, "Missing post slug in URL")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getPost(w, r, slug)
		case http.MethodPut:
			a.updatePost(w, r, slug)
		case http.MethodDelete:
			a.deletePost(w, r, slug)
		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "view":
		a.incrementViews(w, r, slug)
	case "related":
		a.relatedPosts(w, r, slug)
	default:
		respondWithError(w, http.StatusNotFound, "Unknown post action")
	}
}

func (a *BlogAPI) getPost(w http.ResponseWriter, r *http.Request, slug string) {
	user := a.auth.CurrentUser(r)
	publicOnly := user == nil || !user.IsStaff
	post, err := a.store.GetPost(r.Context(), slug, publicOnly)
	if errors.Is(err, blog.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to get post", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get post")
		return
	}

	rendered, err := blog.RenderMarkdown(post.Content)
	if err != nil {
		a.logger.Error("Failed to render post", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to render post")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"post":       post,
		"html":       rendered.HTML,
		"components": rendered.Components,
	})
}

func (a *BlogAPI) updatePost(w http.ResponseWriter, r *http.Request, slug string) {
	if a.auth.RequireStaff(w, r) == nil {
		return
	}

	existing, err := a.store.GetPost(r.Context(), slug, false)
	if errors.Is(err, blog.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to load post for update", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update post")
		return
	}

	post := *existing
	if err = json.NewDecoder(r.Body).Decode(&post); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	post.ID = existing.ID
	post.AuthorID = existing.AuthorID

	// Recompute the excerpt when the content changed and the caller did not
	// pin one explicitly.
	if post.Content != existing.Content && post.Excerpt == existing.Excerpt {
		post.Excerpt = ""
	}
	if err = a.store.PrepareForSave(&post, time.Now()); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err = a.store.UpdatePost(r.Context(), &post); err != nil {
		if errors.Is(err, blog.ErrSlugTaken) {
			respondWithError(w, http.StatusConflict, "A post with this slug already exists")
			return
		}
		a.logger.Error("Failed to update post", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update post")
		return
	}
	respondWithJSON(w, http.StatusOK, &post)
}

func (a *BlogAPI) deletePost(w http.ResponseWriter, r *http.Request, slug string) {
	if a.auth.RequireStaff(w, r) == nil {
		return
	}

	err := a.store.DeletePost(r.Context(), slug)
	if errors.Is(err, blog.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to delete post", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *BlogAPI) incrementViews(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	count, err := a.store.IncrementViews(r.Context(), slug)
	if errors.Is(err, blog.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to increment views", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to record view")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"view_count": count})
}

func (a *BlogAPI) relatedPosts(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	post, err := a.store.GetPost(r.Context(), slug, true)
	if errors.Is(err, blog.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to get post for related lookup", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to find related posts")
		return
	}

	related, err := a.store.RelatedPosts(r.Context(), post.ID, 6)
	if err != nil {
		a.logger.Error("Failed to find related posts", "slug", slug, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to find related posts")
		return
	}
	respondWithJSON(w, http.StatusOK, related)
}

// handleDrafts lists the requesting staff user's own drafts.
func (a *BlogAPI) handleDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user := a.auth.RequireStaff(w, r)
	if user == nil {
		return
	}

	posts, err := a.store.ListPosts(r.Context(), blog.Filter{
		IncludeUnpublished: true,
		Status:             blog.StatusDraft,
		AuthorID:           user.ID,
		OrderBy:            "updated_at",
		Descending:         true,
	})
	if err != nil {
		a.logger.Error("Failed to list drafts", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list drafts")
		return
	}
	respondWithJSON(w, http.StatusOK, posts)
}

// handleAllPosts is the staff listing: every post regardless of status.
func (a *BlogAPI) handleAllPosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.auth.RequireStaff(w, r) == nil {
		return
	}
	a.listPosts(w, r, true)
}

func (a *BlogAPI) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.store.ListCategories(r.Context())
		if err != nil {
			a.logger.Error("Failed to list categories", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list categories")
			return
		}
		respondWithJSON(w, http.StatusOK, categories)
	case http.MethodPost:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var category blog.Category
		if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err := a.store.CreateCategory(r.Context(), &category); err != nil {
			if errors.Is(err, blog.ErrSlugTaken) {
				respondWithError(w, http.StatusConflict, "A category with this slug already exists")
				return
			}
			a.logger.Error("Failed to create category", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create category")
			return
		}
		respondWithJSON(w, http.StatusCreated, &category)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *BlogAPI) handleCategoryByID(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r.URL.Path, "/api/v1/blog/categories/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		category, err := a.store.GetCategory(r.Context(), id)
		if errors.Is(err, blog.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Category not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to get category", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to get category")
			return
		}
		respondWithJSON(w, http.StatusOK, category)
	case http.MethodPut:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var category blog.Category
		if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		category.ID = id
		if err := a.store.UpdateCategory(r.Context(), &category); err != nil {
			if errors.Is(err, blog.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Category not found")
				return
			}
			a.logger.Error("Failed to update category", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update category")
			return
		}
		respondWithJSON(w, http.StatusOK, &category)
	case http.MethodDelete:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		if err := a.store.DeleteCategory(r.Context(), id); err != nil {
			if errors.Is(err, blog.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Category not found")
				return
			}
			a.logger.Error("Failed to delete category", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete category")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *BlogAPI) handleTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tags, err := a.store.ListTags(r.Context())
		if err != nil {
			a.logger.Error("Failed to list tags", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list tags")
			return
		}
		respondWithJSON(w, http.StatusOK, tags)
	case http.MethodPost:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var tag blog.Tag
		if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err := a.store.CreateTag(r.Context(), &tag); err != nil {
			if errors.Is(err, blog.ErrSlugTaken) {
				respondWithError(w, http.StatusConflict, "A tag with this slug already exists")
				return
			}
			a.logger.Error("Failed to create tag", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create tag")
			return
		}
		respondWithJSON(w, http.StatusCreated, &tag)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *BlogAPI) handleTagByID(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r.URL.Path, "/api/v1/blog/tags/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		tag, err := a.store.GetTag(r.Context(), id)
		if errors.Is(err, blog.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Tag not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to get tag", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to get tag")
			return
		}
		respondWithJSON(w, http.StatusOK, tag)
	case http.MethodPut:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		var tag blog.Tag
		if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		tag.ID = id
		if err := a.store.UpdateTag(r.Context(), &tag); err != nil {
			if errors.Is(err, blog.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Tag not found")
				return
			}
			a.logger.Error("Failed to update tag", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update tag")
			return
		}
		respondWithJSON(w, http.StatusOK, &tag)
	case http.MethodDelete:
		if a.auth.RequireStaff(w, r) == nil {
			return
		}
		if err := a.store.DeleteTag(r.Context(), id); err != nil {
			if errors.Is(err, blog.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Tag not found")
				return
			}
			a.logger.Error("Failed to delete tag", "id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete tag")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *BlogAPI) handleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.auth.RequireStaff(w, r) == nil {
		return
	}

	images, err := a.store.ListImages(r.Context())
	if err != nil {
		a.logger.Error("Failed to list blog images", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}
	respondWithJSON(w, http.StatusOK, images)
}

// idFromPath parses the numeric ID segment after prefix, writing a 400 on
// malformed input.
func idFromPath(w http.ResponseWriter, urlPath, prefix string) (int64, bool) {
	idStr := strings.TrimSuffix(strings.TrimPrefix(urlPath, prefix), "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID format in URL")
		return 0, false
	}
	return id, true
}
