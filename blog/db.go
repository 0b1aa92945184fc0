// blog/db.go
package blog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the Postgres-backed Store.
type DB struct {
	pool *pgxpool.Pool
}

func NewDB(ctx context.Context, connectionString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() {
	d.pool.Close()
}

// Migrate applies the SQL migrations in migrationsDir. The pgx5 scheme
// routes golang-migrate through the same driver family as the pool.
func Migrate(connectionString, migrationsDir string) error {
	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations dir: %w", err)
	}
	dbURL := strings.Replace(connectionString, "postgres://", "pgx5://", 1)
	m, err := migrate.New("file://"+abs, dbURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// --- Author functions ---

func (d *DB) CreateAuthor(ctx context.Context, a *Author) error {
	query := `INSERT INTO authors (id, username, display_name, hash, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := d.pool.Exec(ctx, query, a.ID, a.Username, a.DisplayName, a.Hash, a.Created)
	return err
}

const authorColumns = `id, username, display_name, hash, created_at`

func (d *DB) scanAuthor(row pgx.Row) (*Author, error) {
	var a Author
	err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Hash, &a.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) GetAuthorByID(ctx context.Context, id string) (*Author, error) {
	query := `SELECT ` + authorColumns + ` FROM authors WHERE id = $1`
	return d.scanAuthor(d.pool.QueryRow(ctx, query, id))
}

func (d *DB) GetAuthorByUsername(ctx context.Context, username string) (*Author, error) {
	query := `SELECT ` + authorColumns + ` FROM authors WHERE username = $1`
	return d.scanAuthor(d.pool.QueryRow(ctx, query, username))
}

func (d *DB) UpdateAuthorPassword(ctx context.Context, id string, hash []byte) error {
	tag, err := d.pool.Exec(ctx, `UPDATE authors SET hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AuthorsWithPosts feeds the author facet: only authors who currently have
// at least one post, so the filter UI never offers a dead option.
func (d *DB) AuthorsWithPosts(ctx context.Context) ([]Author, error) {
	query := `SELECT a.id, a.username, a.display_name, a.created_at
	          FROM authors a
	          WHERE EXISTS (SELECT 1 FROM posts p WHERE p.author_id = a.id)
	          ORDER BY a.username`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Created); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// --- Group functions ---

func (d *DB) CreateGroup(ctx context.Context, g *Group) error {
	query := `INSERT INTO post_groups (title, slug, description) VALUES ($1, $2, $3) RETURNING id`
	return d.pool.QueryRow(ctx, query, g.Title, g.Slug, g.Description).Scan(&g.ID)
}

func (d *DB) GetGroupBySlug(ctx context.Context, slug string) (*Group, error) {
	var g Group
	query := `SELECT id, title, slug, description FROM post_groups WHERE slug = $1`
	err := d.pool.QueryRow(ctx, query, slug).Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *DB) ListGroups(ctx context.Context) ([]Group, error) {
	query := `SELECT id, title, slug, description FROM post_groups ORDER BY title`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes a group; posts referencing it keep existing with a
// null group (ON DELETE SET NULL on the foreign key).
func (d *DB) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM post_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) GroupsWithPosts(ctx context.Context) ([]Group, error) {
	query := `SELECT g.id, g.title, g.slug, g.description
	          FROM post_groups g
	          WHERE EXISTS (SELECT 1 FROM posts p WHERE p.group_id = g.id)
	          ORDER BY g.title`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// --- Post functions ---

// postSelect attaches the five per-post statistics as independent correlated
// subqueries keyed by the post's id. Each one runs against the whole table,
// so WHERE clauses on the outer query cannot distort the numbers, and no
// join fan-out ever duplicates a row. Author and group come along in the
// same round-trip.
const postSelect = `
SELECT p.id, p.text, p.created_at, p.author_id, p.group_id, p.image,
       a.username, a.display_name, a.created_at,
       g.title, g.slug, g.description,
       (SELECT COUNT(*) FROM posts x WHERE x.author_id = p.author_id) AS author_post_count,
       (SELECT COUNT(*) FROM posts x WHERE x.group_id = p.group_id)   AS group_post_count,
       (SELECT AVG(r.value)::float8 FROM ratings r WHERE r.post_id = p.id) AS rating_avg,
       (SELECT COUNT(*) FROM ratings r WHERE r.post_id = p.id)        AS rating_count,
       (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)       AS comment_count
FROM posts p
JOIN authors a ON a.id = p.author_id
LEFT JOIN post_groups g ON g.id = p.group_id`

// ratingAvgExpr is repeated in the rating facet's WHERE clause; half-up
// rounding via floor(avg + 0.5) matches RoundRating.
const ratingAvgExpr = `(SELECT AVG(r.value) FROM ratings r WHERE r.post_id = p.id)`

// buildListQuery turns a PostQuery into SQL plus its arguments. Kept
// separate from execution so the clause construction is testable.
func buildListQuery(q PostQuery) (string, []interface{}) {
	query := postSelect
	args := []interface{}{}
	conds := []string{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.AuthorID != "" {
		conds = append(conds, "p.author_id = "+arg(q.AuthorID))
	}
	if q.GroupID != nil {
		conds = append(conds, "p.group_id = "+arg(*q.GroupID))
	}
	if q.Rating != 0 {
		conds = append(conds, "FLOOR("+ratingAvgExpr+" + 0.5) = "+arg(q.Rating))
	}
	if q.FollowedBy != "" {
		conds = append(conds, "p.author_id IN (SELECT f.followed_id FROM follows f WHERE f.follower_id = "+arg(q.FollowedBy)+")")
	}
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}

	switch q.Sort {
	case SortOldest:
		query += "\nORDER BY p.created_at ASC, p.id ASC"
	case SortTopRated:
		query += "\nORDER BY rating_avg DESC NULLS LAST, p.created_at DESC, p.id DESC"
	case SortCommented:
		query += "\nORDER BY comment_count DESC, p.created_at DESC, p.id DESC"
	default:
		query += "\nORDER BY p.created_at DESC, p.id DESC"
	}
	return query, args
}

func scanPostRow(rows pgx.Row) (*Post, error) {
	var p Post
	var a Author
	var gTitle, gSlug, gDesc *string
	err := rows.Scan(
		&p.ID, &p.Text, &p.CreatedAt, &p.AuthorID, &p.GroupID, &p.Image,
		&a.Username, &a.DisplayName, &a.Created,
		&gTitle, &gSlug, &gDesc,
		&p.Stats.AuthorPostCount, &p.Stats.GroupPostCount,
		&p.Stats.RatingAvg, &p.Stats.RatingCount, &p.Stats.CommentCount,
	)
	if err != nil {
		return nil, err
	}
	a.ID = p.AuthorID
	p.Author = &a
	if p.GroupID != nil && gTitle != nil {
		p.Group = &Group{ID: *p.GroupID, Title: *gTitle, Slug: *gSlug, Description: *gDesc}
	}
	return &p, nil
}

// ListPosts materializes the full ordered listing for q, statistics and
// relations attached. Paging happens on the materialized slice, after the
// ordering is final.
func (d *DB) ListPosts(ctx context.Context, q PostQuery) ([]Post, error) {
	query, args := buildListQuery(q)
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPostRow(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (d *DB) GetPost(ctx context.Context, id int64) (*Post, error) {
	query := postSelect + "\nWHERE p.id = $1"
	p, err := scanPostRow(d.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DB) CreatePost(ctx context.Context, p *Post) error {
	query := `INSERT INTO posts (text, author_id, group_id, image)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	return d.pool.QueryRow(ctx, query, p.Text, p.AuthorID, p.GroupID, p.Image).
		Scan(&p.ID, &p.CreatedAt)
}

// UpdatePost changes text, group, and image; created_at stays immutable.
func (d *DB) UpdatePost(ctx context.Context, p *Post) error {
	query := `UPDATE posts SET text = $2, group_id = $3, image = $4 WHERE id = $1`
	tag, err := d.pool.Exec(ctx, query, p.ID, p.Text, p.GroupID, p.Image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes the post; comments and ratings go with it via the
// foreign keys. The caller is responsible for the image file.
func (d *DB) DeletePost(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Comment functions ---

func (d *DB) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	query := `SELECT c.id, c.post_id, c.author_id, c.text, c.created_at,
	                 a.username, a.display_name, a.created_at
	          FROM comments c
	          JOIN authors a ON a.id = c.author_id
	          WHERE c.post_id = $1
	          ORDER BY c.created_at DESC, c.id DESC`
	rows, err := d.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		var a Author
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.CreatedAt,
			&a.Username, &a.DisplayName, &a.Created); err != nil {
			return nil, err
		}
		a.ID = c.AuthorID
		c.Author = &a
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (d *DB) CreateComment(ctx context.Context, c *Comment) error {
	query := `INSERT INTO comments (post_id, author_id, text)
	          VALUES ($1, $2, $3) RETURNING id, created_at`
	return d.pool.QueryRow(ctx, query, c.PostID, c.AuthorID, c.Text).
		Scan(&c.ID, &c.CreatedAt)
}

// --- Follow functions ---

// CreateFollow inserts the pair if absent. A racing duplicate hits the
// unique constraint and lands on DO NOTHING; a self-follow is filtered out
// before it can trip the check constraint. Both are silent no-ops.
func (d *DB) CreateFollow(ctx context.Context, followerID, followedID string) error {
	query := `INSERT INTO follows (follower_id, followed_id)
	          SELECT $1::uuid, $2::uuid WHERE $1 <> $2
	          ON CONFLICT (follower_id, followed_id) DO NOTHING`
	_, err := d.pool.Exec(ctx, query, followerID, followedID)
	return err
}

func (d *DB) DeleteFollow(ctx context.Context, followerID, followedID string) error {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`
	_, err := d.pool.Exec(ctx, query, followerID, followedID)
	return err
}

func (d *DB) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var following bool
	query := `SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)`
	err := d.pool.QueryRow(ctx, query, followerID, followedID).Scan(&following)
	return following, err
}

// --- Rating functions ---

// UpsertRating is atomic against the (author, post) unique constraint:
// concurrent submissions never produce two rows, the last write wins.
func (d *DB) UpsertRating(ctx context.Context, authorID string, postID int64, value int) error {
	query := `INSERT INTO ratings (author_id, post_id, value)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (author_id, post_id) DO UPDATE SET value = EXCLUDED.value`
	_, err := d.pool.Exec(ctx, query, authorID, postID, value)
	return err
}
