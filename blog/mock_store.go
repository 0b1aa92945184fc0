// blog/mock_store.go
package blog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockStore simulates the Postgres store for testing. It implements the
// same listing semantics: statistics computed per post against everything
// it holds, independent of the filters in the query.
type MockStore struct {
	mu         sync.Mutex
	authors    map[string]Author
	groups     map[int64]Group
	posts      map[int64]Post
	comments   map[int64]Comment
	follows    map[string]map[string]bool // follower -> followed
	ratings    map[string]map[int64]int   // author -> post -> value
	nextID     int64
	ShouldFail bool // flag to simulate store failures
}

// NewMock initializes a new mock store.
func NewMock() *MockStore {
	return &MockStore{
		authors:  make(map[string]Author),
		groups:   make(map[int64]Group),
		posts:    make(map[int64]Post),
		comments: make(map[int64]Comment),
		follows:  make(map[string]map[string]bool),
		ratings:  make(map[string]map[int64]int),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) fail() error {
	if m.ShouldFail {
		return errors.New("mock: store unavailable")
	}
	return nil
}

func (m *MockStore) nextSerial() int64 {
	m.nextID++
	return m.nextID
}

// --- Authors ---

func (m *MockStore) CreateAuthor(ctx context.Context, a *Author) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.authors {
		if existing.Username == a.Username {
			return errors.New("mock: username taken")
		}
	}
	m.authors[a.ID] = *a
	return nil
}

func (m *MockStore) GetAuthorByID(ctx context.Context, id string) (*Author, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.authors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MockStore) GetAuthorByUsername(ctx context.Context, username string) (*Author, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.authors {
		if a.Username == username {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) UpdateAuthorPassword(ctx context.Context, id string, hash []byte) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.authors[id]
	if !ok {
		return ErrNotFound
	}
	a.Hash = hash
	m.authors[id] = a
	return nil
}

func (m *MockStore) AuthorsWithPosts(ctx context.Context) ([]Author, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, p := range m.posts {
		counts[p.AuthorID]++
	}
	var authors []Author
	for id, a := range m.authors {
		if counts[id] > 0 {
			authors = append(authors, a)
		}
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].Username < authors[j].Username })
	return authors, nil
}

// --- Groups ---

func (m *MockStore) CreateGroup(ctx context.Context, g *Group) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.nextSerial()
	m.groups[g.ID] = *g
	return nil
}

func (m *MockStore) GetGroupBySlug(ctx context.Context, slug string) (*Group, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.Slug == slug {
			g := g
			return &g, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) ListGroups(ctx context.Context) ([]Group, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var groups []Group
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Title < groups[j].Title })
	return groups, nil
}

// DeleteGroup mirrors ON DELETE SET NULL: posts survive and lose the
// group reference.
func (m *MockStore) DeleteGroup(ctx context.Context, id int64) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return ErrNotFound
	}
	delete(m.groups, id)
	for pid, p := range m.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
			m.posts[pid] = p
		}
	}
	return nil
}

func (m *MockStore) GroupsWithPosts(ctx context.Context) ([]Group, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[int64]int)
	for _, p := range m.posts {
		if p.GroupID != nil {
			counts[*p.GroupID]++
		}
	}
	var groups []Group
	for id, g := range m.groups {
		if counts[id] > 0 {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Title < groups[j].Title })
	return groups, nil
}

// --- Posts ---

// statsFor recomputes the five statistics from the full contents of the
// store, matching the correlated subqueries in the SQL store. Callers hold
// the lock.
func (m *MockStore) statsFor(p Post) PostStats {
	var s PostStats
	for _, other := range m.posts {
		if other.AuthorID == p.AuthorID {
			s.AuthorPostCount++
		}
		if p.GroupID != nil && other.GroupID != nil && *other.GroupID == *p.GroupID {
			s.GroupPostCount++
		}
	}
	var sum, n int
	for _, perPost := range m.ratings {
		if v, ok := perPost[p.ID]; ok {
			sum += v
			n++
		}
	}
	if n > 0 {
		avg := float64(sum) / float64(n)
		s.RatingAvg = &avg
		s.RatingCount = n
	}
	for _, c := range m.comments {
		if c.PostID == p.ID {
			s.CommentCount++
		}
	}
	return s
}

// decorate resolves relations and statistics onto a copy of the post.
func (m *MockStore) decorate(p Post) Post {
	if a, ok := m.authors[p.AuthorID]; ok {
		a := a
		p.Author = &a
	}
	if p.GroupID != nil {
		if g, ok := m.groups[*p.GroupID]; ok {
			g := g
			p.Group = &g
		}
	}
	p.Stats = m.statsFor(p)
	return p
}

func (m *MockStore) matches(p Post, q PostQuery) bool {
	if q.AuthorID != "" && p.AuthorID != q.AuthorID {
		return false
	}
	if q.GroupID != nil && (p.GroupID == nil || *p.GroupID != *q.GroupID) {
		return false
	}
	if q.Rating != 0 {
		if p.Stats.RatingAvg == nil || RoundRating(*p.Stats.RatingAvg) != q.Rating {
			return false
		}
	}
	if q.FollowedBy != "" && !m.follows[q.FollowedBy][p.AuthorID] {
		return false
	}
	return true
}

func (m *MockStore) ListPosts(ctx context.Context, q PostQuery) ([]Post, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var posts []Post
	for _, p := range m.posts {
		decorated := m.decorate(p)
		if m.matches(decorated, q) {
			posts = append(posts, decorated)
		}
	}
	sortPosts(posts, q.Sort)
	return posts, nil
}

func sortPosts(posts []Post, key SortKey) {
	newer := func(a, b Post) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		switch key {
		case SortOldest:
			return newer(b, a)
		case SortTopRated:
			av, bv := a.Stats.RatingAvg, b.Stats.RatingAvg
			switch {
			case av != nil && bv == nil:
				return true
			case av == nil && bv != nil:
				return false
			case av != nil && bv != nil && *av != *bv:
				return *av > *bv
			}
			return newer(a, b)
		case SortCommented:
			if a.Stats.CommentCount != b.Stats.CommentCount {
				return a.Stats.CommentCount > b.Stats.CommentCount
			}
			return newer(a, b)
		default:
			return newer(a, b)
		}
	})
}

func (m *MockStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	decorated := m.decorate(p)
	return &decorated, nil
}

func (m *MockStore) CreatePost(ctx context.Context, p *Post) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextSerial()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := *p
	stored.Author, stored.Group = nil, nil
	m.posts[p.ID] = stored
	return nil
}

func (m *MockStore) UpdatePost(ctx context.Context, p *Post) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.posts[p.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Text = p.Text
	stored.GroupID = p.GroupID
	stored.Image = p.Image
	m.posts[p.ID] = stored
	return nil
}

// DeletePost cascades to comments and ratings, like the foreign keys do.
func (m *MockStore) DeletePost(ctx context.Context, id int64) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	for _, perPost := range m.ratings {
		delete(perPost, id)
	}
	return nil
}

// --- Comments ---

func (m *MockStore) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var comments []Comment
	for _, c := range m.comments {
		if c.PostID != postID {
			continue
		}
		if a, ok := m.authors[c.AuthorID]; ok {
			a := a
			c.Author = &a
		}
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})
	return comments, nil
}

func (m *MockStore) CreateComment(ctx context.Context, c *Comment) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return ErrNotFound
	}
	c.ID = m.nextSerial()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	stored := *c
	stored.Author = nil
	m.comments[c.ID] = stored
	return nil
}

// --- Follows ---

func (m *MockStore) CreateFollow(ctx context.Context, followerID, followedID string) error {
	if err := m.fail(); err != nil {
		return err
	}
	if followerID == followedID {
		return nil // self-follow is a silent no-op
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.follows[followerID] == nil {
		m.follows[followerID] = make(map[string]bool)
	}
	m.follows[followerID][followedID] = true
	return nil
}

func (m *MockStore) DeleteFollow(ctx context.Context, followerID, followedID string) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.follows[followerID], followedID)
	return nil
}

func (m *MockStore) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	if err := m.fail(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.follows[followerID][followedID], nil
}

// FollowCount reports how many rows exist for the pair; always 0 or 1.
func (m *MockStore) FollowCount(followerID, followedID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.follows[followerID][followedID] {
		return 1
	}
	return 0
}

// --- Ratings ---

func (m *MockStore) UpsertRating(ctx context.Context, authorID string, postID int64, value int) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return ErrNotFound
	}
	if m.ratings[authorID] == nil {
		m.ratings[authorID] = make(map[int64]int)
	}
	m.ratings[authorID][postID] = value
	return nil
}

// RatingCount reports the stored rows for a post, across all authors.
func (m *MockStore) RatingCount(postID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, perPost := range m.ratings {
		if _, ok := perPost[postID]; ok {
			n++
		}
	}
	return n
}
