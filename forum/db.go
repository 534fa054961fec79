// forum/db.go
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS category_custom_fields (
    category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (category_id, name)
);
CREATE TABLE IF NOT EXISTS groups (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS group_users (
    group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    PRIMARY KEY (group_id, user_id)
);
CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    author_id TEXT NOT NULL,
    category_id BIGINT NOT NULL REFERENCES categories(id)
);
CREATE TABLE IF NOT EXISTS topic_custom_fields (
    topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (topic_id, name)
);
CREATE TABLE IF NOT EXISTS posts (
    id BIGSERIAL PRIMARY KEY,
    topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    post_number INTEGER NOT NULL,
    author TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    author_id TEXT NOT NULL,
    parent_post_id BIGINT,
    UNIQUE (topic_id, post_number)
);
CREATE TABLE IF NOT EXISTS post_custom_fields (
    post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (post_id, name)
);
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    handle TEXT NOT NULL,
    hash BYTEA,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    notifications JSONB NOT NULL DEFAULT '[]',
    admin BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_posts_on_topic_id ON posts(topic_id);
CREATE INDEX IF NOT EXISTS idx_post_custom_fields_on_name_value ON post_custom_fields(name, value);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(ctx context.Context, connectionString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{pool: pool}, nil
}

func (d *Database) Close() {
	d.pool.Close()
}

func (d *Database) CreateTables(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return err
}

// InTopic runs fn in a transaction that holds a row lock on the topic, so
// concurrent approvals in one topic apply their field updates one at a time.
func (d *Database) InTopic(ctx context.Context, topicID string, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM topics WHERE id = $1 FOR UPDATE`, topicID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock topic %s: %w", topicID, err)
	}
	if err := fn(ctx, dbRepo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Category and group functions ---

func (d *Database) CreateCategory(ctx context.Context, category *Category) error {
	query := `INSERT INTO categories (name) VALUES ($1) RETURNING id`
	if err := d.pool.QueryRow(ctx, query, category.Name).Scan(&category.ID); err != nil {
		return err
	}
	return d.SaveCategoryFields(ctx, category)
}

func (d *Database) SaveCategoryFields(ctx context.Context, category *Category) error {
	return saveFields(ctx, d.pool, `
        INSERT INTO category_custom_fields (category_id, name, value) VALUES ($1, $2, $3)
        ON CONFLICT (category_id, name) DO UPDATE SET value = EXCLUDED.value`,
		category.ID, category.Fields)
}

func (d *Database) CreateGroup(ctx context.Context, group *Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO groups (name) VALUES ($1) RETURNING id`
	return d.pool.QueryRow(ctx, query, group.Name).Scan(&group.ID)
}

func (d *Database) GroupByName(ctx context.Context, name string) (*Group, error) {
	var g Group
	err := d.pool.QueryRow(ctx, `SELECT id, name FROM groups WHERE name = $1`, name).Scan(&g.ID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *Database) AddGroupMember(ctx context.Context, groupID int64, userID string) error {
	query := `INSERT INTO group_users (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := d.pool.Exec(ctx, query, groupID, userID)
	return err
}

// --- Topic functions ---

func (d *Database) CreateTopic(ctx context.Context, topic *Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	query := `INSERT INTO topics (id, title, tags, author_id, category_id) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	tags := topic.Tags
	if tags == nil {
		tags = []string{}
	}
	return d.pool.QueryRow(ctx, query, topic.ID, topic.Title, tags, topic.AuthorID, topic.CategoryID).Scan(&topic.CreatedAt)
}

// dbRepo implements Repository on a transaction opened by InTopic.
type dbRepo struct {
	q querier
}

func (r dbRepo) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := r.q.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Fields, err = loadFields(ctx, r.q, `SELECT name, value FROM category_custom_fields WHERE category_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r dbRepo) GetTopic(ctx context.Context, id string) (*Topic, error) {
	var t Topic
	query := `SELECT id, title, tags, created_at, author_id, category_id FROM topics WHERE id = $1`
	err := r.q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Title, &t.Tags, &t.CreatedAt, &t.AuthorID, &t.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Fields, err = loadFields(ctx, r.q, `SELECT name, value FROM topic_custom_fields WHERE topic_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const postColumns = `id, topic_id, post_number, author, body, created_at, author_id, parent_post_id`

func scanPost(row pgx.Row, p *Post) error {
	return row.Scan(&p.ID, &p.TopicID, &p.PostNumber, &p.Author, &p.Body, &p.CreatedAt, &p.AuthorID, &p.ParentPostID)
}

func (r dbRepo) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	err := scanPost(r.q.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Fields, err = loadFields(ctx, r.q, `SELECT name, value FROM post_custom_fields WHERE post_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r dbRepo) GetPostsByTopic(ctx context.Context, topicID string) ([]Post, error) {
	rows, err := r.q.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE topic_id = $1 ORDER BY post_number ASC`, topicID)
	if err != nil {
		return nil, err
	}
	var posts []Post
	index := map[int64]int{}
	for rows.Next() {
		var p Post
		if err := scanPost(rows, &p); err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(posts)
		posts = append(posts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fieldRows, err := r.q.Query(ctx, `
        SELECT f.post_id, f.name, f.value FROM post_custom_fields f
        JOIN posts p ON p.id = f.post_id
        WHERE p.topic_id = $1`, topicID)
	if err != nil {
		return nil, err
	}
	defer fieldRows.Close()
	for fieldRows.Next() {
		var (
			postID      int64
			name, value string
		)
		if err := fieldRows.Scan(&postID, &name, &value); err != nil {
			return nil, err
		}
		if i, ok := index[postID]; ok {
			posts[i].Fields = posts[i].Fields.SetString(name, value)
		}
	}
	return posts, fieldRows.Err()
}

func (r dbRepo) GroupByID(ctx context.Context, id int64) (*Group, error) {
	var g Group
	err := r.q.QueryRow(ctx, `SELECT id, name FROM groups WHERE id = $1`, id).Scan(&g.ID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r dbRepo) IsGroupMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM group_users WHERE group_id = $1 AND user_id = $2)`
	err := r.q.QueryRow(ctx, query, groupID, userID).Scan(&ok)
	return ok, err
}

func (r dbRepo) AnyPostPending(ctx context.Context, topicID string, exceptPostID int64) (bool, error) {
	var ok bool
	query := `
        SELECT EXISTS (
            SELECT 1 FROM post_custom_fields f
            JOIN posts p ON p.id = f.post_id
            WHERE p.topic_id = $1 AND p.id <> $2 AND f.name = $3 AND f.value = 'true'
        )`
	err := r.q.QueryRow(ctx, query, topicID, exceptPostID, PostPendingExpertApproval).Scan(&ok)
	return ok, err
}

func (r dbRepo) CreatePost(ctx context.Context, post *Post) error {
	query := `
        INSERT INTO posts (topic_id, post_number, author, body, author_id, parent_post_id)
        VALUES ($1, (SELECT COALESCE(MAX(post_number), 0) + 1 FROM posts WHERE topic_id = $1), $2, $3, $4, $5)
        RETURNING id, post_number, created_at`
	err := r.q.QueryRow(ctx, query, post.TopicID, post.Author, post.Body, post.AuthorID, post.ParentPostID).
		Scan(&post.ID, &post.PostNumber, &post.CreatedAt)
	if err != nil {
		return err
	}
	return r.SavePostFields(ctx, post)
}

func (r dbRepo) SavePostFields(ctx context.Context, post *Post) error {
	return saveFields(ctx, r.q, `
        INSERT INTO post_custom_fields (post_id, name, value) VALUES ($1, $2, $3)
        ON CONFLICT (post_id, name) DO UPDATE SET value = EXCLUDED.value`,
		post.ID, post.Fields)
}

func (r dbRepo) SaveTopicFields(ctx context.Context, topic *Topic) error {
	return saveFields(ctx, r.q, `
        INSERT INTO topic_custom_fields (topic_id, name, value) VALUES ($1, $2, $3)
        ON CONFLICT (topic_id, name) DO UPDATE SET value = EXCLUDED.value`,
		topic.ID, topic.Fields)
}

func (r dbRepo) AddNotification(ctx context.Context, n Notification) error {
	payload, err := json.Marshal([]Notification{n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	tag, err := r.q.Exec(ctx, `UPDATE users SET notifications = notifications || $2::jsonb WHERE id = $1`, n.UserID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func loadFields(ctx context.Context, q querier, query string, owner any) (Fields, error) {
	rows, err := q.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fields Fields
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		fields = fields.SetString(name, value)
	}
	return fields, rows.Err()
}

// saveFields upserts every key of fields for one owner in a single batch.
func saveFields(ctx context.Context, q querier, upsert string, owner any, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, value := range fields {
		batch.Queue(upsert, owner, name, value)
	}
	return q.SendBatch(ctx, batch).Close()
}

// --- User functions ---

// SaveUser inserts the user or updates the account with the same email.
// user.ID is set to the stored id, which differs from the one passed in when
// the email was already registered.
func (d *Database) SaveUser(ctx context.Context, user *User) error {
	notificationsJSON, err := json.Marshal(user.Notifications)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}
	query := `
        INSERT INTO users (id, email, handle, hash, created_at, updated_at, admin, notifications)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (email) DO UPDATE SET
            handle = EXCLUDED.handle,
            hash = EXCLUDED.hash,
            updated_at = EXCLUDED.updated_at,
            admin = EXCLUDED.admin,
            notifications = EXCLUDED.notifications
        RETURNING id`
	return d.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Handle,
		user.Hash,
		user.Created,
		user.Updated,
		user.Admin,
		notificationsJSON,
	).Scan(&user.ID)
}

const userColumns = `id, email, handle, hash, created_at, updated_at, admin, notifications`

func (d *Database) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var user User
	var notificationsJSON []byte
	row := d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Handle,
		&user.Hash,
		&user.Created,
		&user.Updated,
		&user.Admin,
		&notificationsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(notificationsJSON, &user.Notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}
	return &user, nil
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.getUser(ctx, "email", email)
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	return d.getUser(ctx, "id", id)
}

var _ Store = (*Database)(nil)
var _ UserStore = (*Database)(nil)
var _ Directory = (*Database)(nil)
var _ Repository = dbRepo{}
