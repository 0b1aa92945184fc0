// blog/store.go
package blog

import (
	"context"
	"errors"
	"math"
)

// ErrNotFound is returned when a requested author, group, post, or comment
// does not exist. Handlers translate it into a 404 page.
var ErrNotFound = errors.New("not found")

// SortKey names one of the supported listing orders.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortOldest    SortKey = "oldest"
	SortTopRated  SortKey = "rated"
	SortCommented SortKey = "commented"
)

// SortChoices is the ordered option set for the sorting facet. The first
// entry is the default order for every listing.
var SortChoices = []Choice{
	{Value: string(SortNewest), Label: "Newest first"},
	{Value: string(SortOldest), Label: "Oldest first"},
	{Value: string(SortTopRated), Label: "Highest rated"},
	{Value: string(SortCommented), Label: "Most commented"},
}

// PostQuery describes one listing: which posts to keep and in what order.
// The zero value selects every post, newest first. Narrowing a query never
// changes the statistics attached to the rows; those always describe the
// unfiltered universe.
type PostQuery struct {
	AuthorID   string  // exact match on the post's author
	GroupID    *int64  // exact match on the post's group
	Rating     int     // 1..5: rounded average must equal this; 0 means off
	FollowedBy string  // only posts by authors this user follows
	Sort       SortKey // empty means SortNewest
}

// Store is the persistence boundary. The production implementation is DB
// (pgx against Postgres); MockStore provides the same semantics in memory.
type Store interface {
	// Authors
	CreateAuthor(ctx context.Context, a *Author) error
	GetAuthorByID(ctx context.Context, id string) (*Author, error)
	GetAuthorByUsername(ctx context.Context, username string) (*Author, error)
	UpdateAuthorPassword(ctx context.Context, id string, hash []byte) error
	// AuthorsWithPosts returns authors having at least one post, ordered by
	// username, for the author facet.
	AuthorsWithPosts(ctx context.Context) ([]Author, error)

	// Groups
	CreateGroup(ctx context.Context, g *Group) error
	GetGroupBySlug(ctx context.Context, slug string) (*Group, error)
	// ListGroups returns every group ordered by title, for the post form's
	// group select.
	ListGroups(ctx context.Context) ([]Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	// GroupsWithPosts returns groups having at least one post, ordered by
	// title, for the group facet.
	GroupsWithPosts(ctx context.Context) ([]Group, error)

	// Posts. ListPosts materializes the full ordered result of q with the
	// per-post statistics and author/group relations attached; GetPost does
	// the same for a single post.
	ListPosts(ctx context.Context, q PostQuery) ([]Post, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	CreatePost(ctx context.Context, p *Post) error
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id int64) error

	// Comments
	ListComments(ctx context.Context, postID int64) ([]Comment, error)
	CreateComment(ctx context.Context, c *Comment) error

	// Follows. CreateFollow is create-if-absent: a duplicate pair is a
	// silent no-op, a self-follow is rejected without error. DeleteFollow
	// of a missing row is a no-op.
	CreateFollow(ctx context.Context, followerID, followedID string) error
	DeleteFollow(ctx context.Context, followerID, followedID string) error
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)

	// Ratings. UpsertRating replaces any existing value for the pair; the
	// last write wins under concurrent submissions.
	UpsertRating(ctx context.Context, authorID string, postID int64, value int) error

	Close()
}

// RoundRating maps an average onto the 1..5 facet scale, rounding half-up:
// 3.5 rounds to 4, 2.49 to 2. The rating facet matches on this value.
func RoundRating(avg float64) int {
	return int(math.Floor(avg + 0.5))
}
