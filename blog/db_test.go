package blog

import (
	"strings"
	"testing"
)

func TestBuildListQueryDefaults(t *testing.T) {
	query, args := buildListQuery(PostQuery{})
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	if strings.Contains(query, "\nWHERE ") {
		t.Errorf("unfiltered query should have no outer WHERE clause:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY p.created_at DESC") {
		t.Errorf("expected newest-first default order:\n%s", query)
	}
	// the five statistics ride along as correlated subqueries
	for _, alias := range []string{"author_post_count", "group_post_count", "rating_avg", "rating_count", "comment_count"} {
		if !strings.Contains(query, alias) {
			t.Errorf("expected %s in select list", alias)
		}
	}
}

func TestBuildListQueryFilters(t *testing.T) {
	gid := int64(7)
	query, args := buildListQuery(PostQuery{
		AuthorID: "a1",
		GroupID:  &gid,
		Rating:   4,
		Sort:     SortTopRated,
	})
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
	if args[0] != "a1" || args[1] != gid || args[2] != 4 {
		t.Errorf("unexpected args: %v", args)
	}
	if !strings.Contains(query, "p.author_id = $1") {
		t.Errorf("expected author filter:\n%s", query)
	}
	if !strings.Contains(query, "p.group_id = $2") {
		t.Errorf("expected group filter:\n%s", query)
	}
	// the rating facet matches on the half-up rounded average
	if !strings.Contains(query, "FLOOR((SELECT AVG(r.value) FROM ratings r WHERE r.post_id = p.id) + 0.5) = $3") {
		t.Errorf("expected rounded rating predicate:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY rating_avg DESC NULLS LAST") {
		t.Errorf("expected top-rated order:\n%s", query)
	}
}

func TestBuildListQueryFollowFeed(t *testing.T) {
	query, args := buildListQuery(PostQuery{FollowedBy: "u9", Sort: SortOldest})
	if len(args) != 1 || args[0] != "u9" {
		t.Fatalf("unexpected args: %v", args)
	}
	if !strings.Contains(query, "SELECT f.followed_id FROM follows f WHERE f.follower_id = $1") {
		t.Errorf("expected follow subquery:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY p.created_at ASC") {
		t.Errorf("expected oldest-first order:\n%s", query)
	}
}

// The statistics subqueries must not reference the outer query's filters:
// each one scans its own table keyed only by the post row.
func TestBuildListQueryStatsIndependentOfFilters(t *testing.T) {
	filtered, _ := buildListQuery(PostQuery{AuthorID: "a1", Rating: 3})
	unfiltered, _ := buildListQuery(PostQuery{})

	head := func(q string) string {
		i := strings.Index(q, "\nFROM posts p")
		if i < 0 {
			t.Fatalf("malformed query:\n%s", q)
		}
		return q[:i]
	}
	if head(filtered) != head(unfiltered) {
		t.Errorf("select list changed under filtering:\n%s\nvs\n%s", head(filtered), head(unfiltered))
	}
}
