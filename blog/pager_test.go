package blog

import (
	"testing"
)

func makePosts(n int) []Post {
	posts := make([]Post, n)
	for i := range posts {
		posts[i] = Post{ID: int64(i + 1)}
	}
	return posts
}

func TestPaginateFirstPage(t *testing.T) {
	page := Paginate(makePosts(13), "1", 10)
	if len(page.Items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(page.Items))
	}
	if page.Count != 13 {
		t.Errorf("expected count 13, got %d", page.Count)
	}
	if page.TotalPages != 2 {
		t.Errorf("expected 2 pages, got %d", page.TotalPages)
	}
	if !page.HasNext || page.HasPrev {
		t.Errorf("expected HasNext and not HasPrev, got next=%v prev=%v", page.HasNext, page.HasPrev)
	}
}

func TestPaginateSecondPage(t *testing.T) {
	page := Paginate(makePosts(13), "2", 10)
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.Items[0].ID != 11 {
		t.Errorf("expected page 2 to start at item 11, got %d", page.Items[0].ID)
	}
	if page.HasNext || !page.HasPrev {
		t.Errorf("expected HasPrev and not HasNext")
	}
}

func TestPaginateClampsBeyondLastPage(t *testing.T) {
	page := Paginate(makePosts(13), "99", 10)
	if page.CurrentPage != 2 {
		t.Fatalf("expected clamp to page 2, got %d", page.CurrentPage)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected the last page's 3 items, got %d", len(page.Items))
	}
}

func TestPaginateDefaultsOnBadInput(t *testing.T) {
	for _, param := range []string{"", "abc", "-1", "0", "1.5"} {
		page := Paginate(makePosts(13), param, 10)
		if page.CurrentPage != 1 {
			t.Errorf("param %q: expected page 1, got %d", param, page.CurrentPage)
		}
		if len(page.Items) != 10 {
			t.Errorf("param %q: expected 10 items, got %d", param, len(page.Items))
		}
	}
}

func TestPaginateEmptyListing(t *testing.T) {
	page := Paginate(nil, "5", 10)
	if page.CurrentPage != 1 || page.TotalPages != 1 {
		t.Fatalf("expected a single empty page, got page %d of %d", page.CurrentPage, page.TotalPages)
	}
	if len(page.Items) != 0 || page.Count != 0 {
		t.Errorf("expected no items")
	}
	if page.HasNext || page.HasPrev {
		t.Errorf("expected no prev/next on the only page")
	}
}

func TestPaginateExactMultiple(t *testing.T) {
	page := Paginate(makePosts(20), "2", 10)
	if page.TotalPages != 2 {
		t.Fatalf("expected 2 pages for 20 items, got %d", page.TotalPages)
	}
	if len(page.Items) != 10 {
		t.Errorf("expected 10 items on the last page, got %d", len(page.Items))
	}
}
