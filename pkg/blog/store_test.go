package blog

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPrepareForSaveDerivedFields(t *testing.T) {
	_, s := setupTestStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	p := &Post{
		Title:    "Hello, World! A First Post",
		Content:  strings.Repeat("word ", 500),
		AuthorID: 1,
		Status:   StatusPublished,
	}
	if err := s.PrepareForSave(p, now); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}

	if p.Slug != "hello-world-a-first-post" {
		t.Errorf("slug = %q", p.Slug)
	}
	if p.Excerpt == "" {
		t.Error("excerpt not auto-generated")
	}
	// 500 words at 228 wpm rounds to 2 minutes.
	if p.ReadingTime != 2 {
		t.Errorf("reading time = %d, want 2", p.ReadingTime)
	}
	if p.PublishDate == nil || !p.PublishDate.Equal(now) {
		t.Errorf("publish date = %v, want %v", p.PublishDate, now)
	}

	// A draft gets no publish date.
	draft := &Post{Title: "Draft", Content: "x", AuthorID: 1}
	if err := s.PrepareForSave(draft, now); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}
	if draft.Status != StatusDraft {
		t.Errorf("status = %q, want draft", draft.Status)
	}
	if draft.PublishDate != nil {
		t.Error("draft should not get a publish date")
	}
}

func TestPrepareForSaveRejectsBadStatus(t *testing.T) {
	_, s := setupTestStore(t)
	p := &Post{Title: "x", Content: "y", Status: "bogus"}
	if err := s.PrepareForSave(p, time.Now()); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestPostCRUD(t *testing.T) {
	ctx, s := setupTestStore(t)
	p := makePost(t, ctx, s, "CRUD Post", StatusPublished)

	got, err := s.GetPost(ctx, p.Slug, false)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if got.Title != "CRUD Post" || got.ID != p.ID {
		t.Errorf("GetPost() = %+v", got)
	}

	got.Title = "CRUD Post v2"
	got.Content = "updated"
	if err = s.UpdatePost(ctx, got); err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	updated, err := s.GetPost(ctx, p.Slug, false)
	if err != nil {
		t.Fatalf("GetPost() after update error = %v", err)
	}
	if updated.Title != "CRUD Post v2" {
		t.Errorf("title after update = %q", updated.Title)
	}

	if err = s.DeletePost(ctx, p.Slug); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	if _, err = s.GetPost(ctx, p.Slug, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPost() after delete error = %v, want ErrNotFound", err)
	}
	if err = s.DeletePost(ctx, p.Slug); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePost() error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateSlug(t *testing.T) {
	ctx, s := setupTestStore(t)
	makePost(t, ctx, s, "Same Title", StatusDraft)

	dup := &Post{Title: "Same Title", Content: "x", AuthorID: 1}
	if err := s.PrepareForSave(dup, time.Now()); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}
	if err := s.CreatePost(ctx, dup); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("CreatePost() error = %v, want ErrSlugTaken", err)
	}
}

func TestAuthorNamePersists(t *testing.T) {
	ctx, s := setupTestStore(t)

	p := &Post{
		Title: "Bylined Post", Content: "x",
		AuthorID: 1, AuthorName: "Jane Goose",
		Status: StatusPublished,
	}
	if err := s.PrepareForSave(p, time.Now()); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("CreatePost() error = %v", err)
	}

	got, err := s.GetPost(ctx, p.Slug, true)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if got.AuthorName != "Jane Goose" {
		t.Errorf("author name = %q, want %q", got.AuthorName, "Jane Goose")
	}

	got.Title = "Bylined Post v2"
	if err = s.UpdatePost(ctx, got); err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	list, err := s.ListPosts(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(list) != 1 || list[0].AuthorName != "Jane Goose" {
		t.Errorf("listed author name = %+v", list)
	}
}

func TestPublicVisibility(t *testing.T) {
	ctx, s := setupTestStore(t)
	published := makePost(t, ctx, s, "Published Post", StatusPublished)
	draft := makePost(t, ctx, s, "Draft Post", StatusDraft)

	// A scheduled post with a future date stays hidden from the public.
	future := time.Now().Add(24 * time.Hour)
	scheduled := &Post{
		Title: "Scheduled Post", Content: "x", AuthorID: 1,
		Status: StatusScheduled, PublishDate: &future,
	}
	if err := s.PrepareForSave(scheduled, time.Now()); err != nil {
		t.Fatalf("PrepareForSave() error = %v", err)
	}
	if err := s.CreatePost(ctx, scheduled); err != nil {
		t.Fatalf("CreatePost() error = %v", err)
	}

	public, err := s.ListPosts(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(public) != 1 || public[0].Slug != published.Slug {
		t.Errorf("public list = %d posts, want only %q", len(public), published.Slug)
	}

	all, err := s.ListPosts(ctx, Filter{IncludeUnpublished: true})
	if err != nil {
		t.Fatalf("ListPosts(all) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("staff list = %d posts, want 3", len(all))
	}

	if _, err = s.GetPost(ctx, draft.Slug, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("public GetPost(draft) error = %v, want ErrNotFound", err)
	}
	if _, err = s.GetPost(ctx, draft.Slug, false); err != nil {
		t.Errorf("staff GetPost(draft) error = %v", err)
	}

	// A scheduled post whose date has passed becomes publicly visible
	// without any status flip.
	past := time.Now().Add(-time.Hour)
	scheduled.PublishDate = &past
	if err = s.UpdatePost(ctx, scheduled); err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	public, err = s.ListPosts(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(public) != 2 {
		t.Errorf("public list after due date = %d posts, want 2", len(public))
	}
	due, err := s.GetPost(ctx, scheduled.Slug, true)
	if err != nil {
		t.Fatalf("public GetPost(due scheduled) error = %v", err)
	}
	if due.Status != StatusScheduled {
		t.Errorf("status = %q, want %q", due.Status, StatusScheduled)
	}
}

func TestListFilters(t *testing.T) {
	ctx, s := setupTestStore(t)

	golang := Category{Name: "Go"}
	if err := s.CreateCategory(ctx, &golang); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	tips := Tag{Name: "tips"}
	if err := s.CreateTag(ctx, &tips); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	a := makePost(t, ctx, s, "Alpha Go Guide", StatusPublished)
	a.Categories = []Category{golang}
	a.Tags = []Tag{tips}
	a.Featured = true
	if err := s.UpdatePost(ctx, a); err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	makePost(t, ctx, s, "Beta Unrelated", StatusPublished)

	byCategory, err := s.ListPosts(ctx, Filter{CategorySlug: "go"})
	if err != nil {
		t.Fatalf("ListPosts(category) error = %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].Slug != a.Slug {
		t.Errorf("category filter returned %d posts", len(byCategory))
	}
	if len(byCategory) == 1 && len(byCategory[0].Categories) != 1 {
		t.Error("taxonomy not attached to listed post")
	}

	byTag, err := s.ListPosts(ctx, Filter{TagSlug: "tips"})
	if err != nil {
		t.Fatalf("ListPosts(tag) error = %v", err)
	}
	if len(byTag) != 1 {
		t.Errorf("tag filter returned %d posts", len(byTag))
	}

	featured, err := s.ListPosts(ctx, Filter{FeaturedOnly: true})
	if err != nil {
		t.Fatalf("ListPosts(featured) error = %v", err)
	}
	if len(featured) != 1 {
		t.Errorf("featured filter returned %d posts", len(featured))
	}

	search, err := s.ListPosts(ctx, Filter{Search: "Alpha"})
	if err != nil {
		t.Fatalf("ListPosts(search) error = %v", err)
	}
	if len(search) != 1 || search[0].Slug != a.Slug {
		t.Errorf("search returned %d posts", len(search))
	}

	// LIKE metacharacters in the search term must not act as wildcards.
	wild, err := s.ListPosts(ctx, Filter{Search: "%"})
	if err != nil {
		t.Fatalf("ListPosts(wildcard) error = %v", err)
	}
	if len(wild) != 0 {
		t.Errorf("wildcard search returned %d posts, want 0", len(wild))
	}
}

func TestRelatedPosts(t *testing.T) {
	ctx, s := setupTestStore(t)

	shared := Category{Name: "Shared"}
	if err := s.CreateCategory(ctx, &shared); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	base := makePost(t, ctx, s, "Base", StatusPublished)
	sibling := makePost(t, ctx, s, "Sibling", StatusPublished)
	hidden := makePost(t, ctx, s, "Hidden Sibling", StatusDraft)
	makePost(t, ctx, s, "Stranger", StatusPublished)

	for _, p := range []*Post{base, sibling, hidden} {
		p.Categories = []Category{shared}
		if err := s.UpdatePost(ctx, p); err != nil {
			t.Fatalf("UpdatePost() error = %v", err)
		}
	}

	related, err := s.RelatedPosts(ctx, base.ID, 6)
	if err != nil {
		t.Fatalf("RelatedPosts() error = %v", err)
	}
	if len(related) != 1 || related[0].Slug != sibling.Slug {
		t.Errorf("related = %d posts, want only the published sibling", len(related))
	}
}

func TestIncrementViews(t *testing.T) {
	ctx, s := setupTestStore(t)
	p := makePost(t, ctx, s, "Counted", StatusPublished)

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementViews(ctx, p.Slug)
		if err != nil {
			t.Fatalf("IncrementViews() error = %v", err)
		}
		if got != want {
			t.Errorf("view count = %d, want %d", got, want)
		}
	}

	if _, err := s.IncrementViews(ctx, "no-such-post"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementViews(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCategoryAndTagCRUD(t *testing.T) {
	ctx, s := setupTestStore(t)

	c := Category{Name: "News & Updates", Description: "site news"}
	if err := s.CreateCategory(ctx, &c); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if c.Slug != "news-updates" {
		t.Errorf("category slug = %q", c.Slug)
	}

	child := Category{Name: "Releases", ParentID: &c.ID, Order: 2}
	if err := s.CreateCategory(ctx, &child); err != nil {
		t.Fatalf("CreateCategory(child) error = %v", err)
	}

	list, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListCategories() = %d, want 2", len(list))
	}

	child.Name = "Release Notes"
	if err = s.UpdateCategory(ctx, &child); err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}
	got, err := s.GetCategory(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if got.Name != "Release Notes" || got.ParentID == nil || *got.ParentID != c.ID {
		t.Errorf("GetCategory() = %+v", got)
	}

	if err = s.DeleteCategory(ctx, child.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	if _, err = s.GetCategory(ctx, child.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCategory(deleted) error = %v, want ErrNotFound", err)
	}

	tag := Tag{Name: "Go Tips"}
	if err = s.CreateTag(ctx, &tag); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if tag.Slug != "go-tips" {
		t.Errorf("tag slug = %q", tag.Slug)
	}
	dup := Tag{Name: "Go Tips"}
	if err = s.CreateTag(ctx, &dup); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("CreateTag(dup) error = %v, want ErrSlugTaken", err)
	}
	tags, err := s.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 {
		t.Errorf("ListTags() = %d, want 1", len(tags))
	}
	if err = s.DeleteTag(ctx, tag.ID); err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
}

func TestImages(t *testing.T) {
	ctx, s := setupTestStore(t)
	uploader := int64(7)

	first := Image{URL: "/media/blog/uploads/2026/08/a.png", Filename: "a.png", Size: 1234, UploadedBy: &uploader}
	if err := s.AddImage(ctx, &first); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	second := Image{URL: "/media/blog/uploads/2026/08/b.png", AltText: "diagram", Filename: "b.png", Size: 99}
	if err := s.AddImage(ctx, &second); err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}

	images, err := s.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("ListImages() = %d, want 2", len(images))
	}
	// Newest first.
	if images[0].Filename != "b.png" {
		t.Errorf("first image = %q, want b.png", images[0].Filename)
	}
	if images[1].UploadedBy == nil || *images[1].UploadedBy != uploader {
		t.Errorf("uploader not persisted: %+v", images[1])
	}
}
