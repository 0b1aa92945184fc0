// blog/models.go
package blog

import (
	"time"
)

// Rating values run 1..5 and render as filled stars in templates.
var RatingChoices = []Choice{
	{Value: "1", Label: "★☆☆☆☆"},
	{Value: "2", Label: "★★☆☆☆"},
	{Value: "3", Label: "★★★☆☆"},
	{Value: "4", Label: "★★★★☆"},
	{Value: "5", Label: "★★★★★"},
}

// Group collects posts under a unique, URL-safe slug.
type Group struct {
	ID          int64  `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Slug        string `json:"slug" db:"slug"`
	Description string `json:"description" db:"description"`
}

// PostStats carries the per-post derived statistics. Each value is computed
// against the unfiltered tables, so author/group/rating filters on a listing
// never change what a row reports.
type PostStats struct {
	AuthorPostCount int      `json:"author_post_count"`
	GroupPostCount  int      `json:"group_post_count"`
	RatingAvg       *float64 `json:"rating_avg"` // nil when the post has no ratings
	RatingCount     int      `json:"rating_count"`
	CommentCount    int      `json:"comment_count"`
}

// AvgOrZero is for display code that needs a plain number; everywhere else
// the nil pointer is what distinguishes "unrated" from "rated zero".
func (s PostStats) AvgOrZero() float64 {
	if s.RatingAvg == nil {
		return 0
	}
	return *s.RatingAvg
}

// Post is the central entity. Author is always resolved on reads; Group only
// when the post belongs to one. CreatedAt is set on insert and never updated.
type Post struct {
	ID        int64     `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	GroupID   *int64    `json:"group_id" db:"group_id"`
	Image     string    `json:"image" db:"image"` // media-relative path, empty if none

	Author *Author `json:"author,omitempty"`
	Group  *Group  `json:"group,omitempty"`
	Stats  PostStats
}

// Comment belongs to a post and is removed with it.
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Author *Author `json:"author,omitempty"`
}

// Follow links a follower to a followed author. At most one row per pair,
// and an author never follows themselves.
type Follow struct {
	FollowerID string    `json:"follower_id" db:"follower_id"`
	FollowedID string    `json:"followed_id" db:"followed_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Rating is one author's 1..5 score on one post. Unique per (author, post);
// rating again replaces the stored value.
type Rating struct {
	AuthorID string `json:"author_id" db:"author_id"`
	PostID   int64  `json:"post_id" db:"post_id"`
	Value    int    `json:"value" db:"value"`
}
