package forum

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the forum in process. It backs the server when no
// database is configured and is the fixture for tests.
type MemoryStore struct {
	mu sync.Mutex

	categories    map[int64]Category
	groups        map[int64]Group
	members       map[int64]map[string]struct{}
	topics        map[string]Topic
	posts         map[int64]Post
	users         map[string]User
	notifications map[string][]Notification
	sequence      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:    map[int64]Category{},
		groups:        map[int64]Group{},
		members:       map[int64]map[string]struct{}{},
		topics:        map[string]Topic{},
		posts:         map[int64]Post{},
		users:         map[string]User{},
		notifications: map[string][]Notification{},
	}
}

// InTopic holds the store lock for the whole of fn. Writes made by fn are
// rolled back if it fails.
func (s *MemoryStore) InTopic(ctx context.Context, topicID string, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topicID]; !ok {
		return ErrNotFound
	}
	snap := s.snapshot()
	if err := fn(ctx, memoryRepo{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	topics        map[string]Topic
	posts         map[int64]Post
	notifications map[string][]Notification
	sequence      int64
}

// snapshot copies the maps a unit of work can write. Stored values own
// their Fields maps, so a shallow copy is enough.
func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		topics:        make(map[string]Topic, len(s.topics)),
		posts:         make(map[int64]Post, len(s.posts)),
		notifications: make(map[string][]Notification, len(s.notifications)),
		sequence:      s.sequence,
	}
	for k, v := range s.topics {
		snap.topics[k] = v
	}
	for k, v := range s.posts {
		snap.posts[k] = v
	}
	for k, v := range s.notifications {
		snap.notifications[k] = append([]Notification(nil), v...)
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.topics = snap.topics
	s.posts = snap.posts
	s.notifications = snap.notifications
	s.sequence = snap.sequence
}

func (s *MemoryStore) nextID() int64 {
	s.sequence++
	return s.sequence
}

// --- Seeding ---

func (s *MemoryStore) CreateCategory(ctx context.Context, category *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	category.ID = s.nextID()
	stored := *category
	stored.Fields = category.Fields.Clone()
	s.categories[category.ID] = stored
	return nil
}

// SaveCategoryFields replaces the stored custom fields of a category.
func (s *MemoryStore) SaveCategoryFields(ctx context.Context, category *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.categories[category.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Fields = category.Fields.Clone()
	s.categories[category.ID] = stored
	return nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, group *Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Name == group.Name {
			return fmt.Errorf("group %q already exists: %w", group.Name, ErrInvalidRequest)
		}
	}
	group.ID = s.nextID()
	s.groups[group.ID] = *group
	return nil
}

// GroupByName returns the group with exactly this name, or nil.
func (s *MemoryStore) GroupByName(ctx context.Context, name string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) AddGroupMember(ctx context.Context, groupID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return ErrNotFound
	}
	if s.members[groupID] == nil {
		s.members[groupID] = map[string]struct{}{}
	}
	s.members[groupID][userID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveGroupMember(ctx context.Context, groupID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
	return nil
}

func (s *MemoryStore) CreateTopic(ctx context.Context, topic *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	if _, ok := s.categories[topic.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", topic.CategoryID, ErrNotFound)
	}
	topic.CreatedAt = time.Now().UTC()
	stored := *topic
	stored.Fields = topic.Fields.Clone()
	s.topics[topic.ID] = stored
	return nil
}

// SaveUser keeps the stored id when the email is already registered.
func (s *MemoryStore) SaveUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			user.ID = id
			break
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u.Notifications = append([]Notification(nil), s.notifications[u.ID]...)
			return &u, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u.Notifications = append([]Notification(nil), s.notifications[id]...)
	return &u, nil
}

// memoryRepo is the Repository view handed to InTopic callbacks. The store
// lock is already held.
type memoryRepo struct {
	s *MemoryStore
}

func (r memoryRepo) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c, ok := r.s.categories[id]
	if !ok {
		return nil, nil
	}
	c.Fields = c.Fields.Clone()
	return &c, nil
}

func (r memoryRepo) GetTopic(ctx context.Context, id string) (*Topic, error) {
	t, ok := r.s.topics[id]
	if !ok {
		return nil, nil
	}
	t.Fields = t.Fields.Clone()
	return &t, nil
}

func (r memoryRepo) GetPost(ctx context.Context, id int64) (*Post, error) {
	p, ok := r.s.posts[id]
	if !ok {
		return nil, nil
	}
	p.Fields = p.Fields.Clone()
	return &p, nil
}

func (r memoryRepo) GetPostsByTopic(ctx context.Context, topicID string) ([]Post, error) {
	var posts []Post
	for _, p := range r.s.posts {
		if p.TopicID != topicID {
			continue
		}
		p.Fields = p.Fields.Clone()
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostNumber < posts[j].PostNumber })
	return posts, nil
}

func (r memoryRepo) GroupByID(ctx context.Context, id int64) (*Group, error) {
	g, ok := r.s.groups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r memoryRepo) IsGroupMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	_, ok := r.s.members[groupID][userID]
	return ok, nil
}

func (r memoryRepo) AnyPostPending(ctx context.Context, topicID string, exceptPostID int64) (bool, error) {
	for id, p := range r.s.posts {
		if p.TopicID != topicID || id == exceptPostID {
			continue
		}
		if p.PendingExpertApproval() {
			return true, nil
		}
	}
	return false, nil
}

func (r memoryRepo) CreatePost(ctx context.Context, post *Post) error {
	if _, ok := r.s.topics[post.TopicID]; !ok {
		return ErrNotFound
	}
	last := 0
	for _, p := range r.s.posts {
		if p.TopicID == post.TopicID && p.PostNumber > last {
			last = p.PostNumber
		}
	}
	post.ID = r.s.nextID()
	post.PostNumber = last + 1
	post.CreatedAt = time.Now().UTC()
	stored := *post
	stored.Fields = post.Fields.Clone()
	r.s.posts[post.ID] = stored
	return nil
}

func (r memoryRepo) SavePostFields(ctx context.Context, post *Post) error {
	stored, ok := r.s.posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Fields = post.Fields.Clone()
	r.s.posts[post.ID] = stored
	return nil
}

func (r memoryRepo) SaveTopicFields(ctx context.Context, topic *Topic) error {
	stored, ok := r.s.topics[topic.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Fields = topic.Fields.Clone()
	r.s.topics[topic.ID] = stored
	return nil
}

func (r memoryRepo) AddNotification(ctx context.Context, n Notification) error {
	if _, ok := r.s.users[n.UserID]; !ok {
		return ErrNotFound
	}
	r.s.notifications[n.UserID] = append(r.s.notifications[n.UserID], n)
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ UserStore = (*MemoryStore)(nil)
var _ Directory = (*MemoryStore)(nil)
var _ Repository = memoryRepo{}
