package forum

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDatabase connects to DATABASE_URL, or skips when it is unset.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx := context.Background()
	db, err := NewDatabase(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.CreateTables(ctx))
	return db
}

type dbFixture struct {
	db                          *Database
	group, secondGroup          *Group
	expert, secondExpert, asker string
	topic                       *Topic
}

// newDBFixture creates uniquely named groups so runs against a shared
// database do not collide.
func newDBFixture(t *testing.T) *dbFixture {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.New().String()
	f := &dbFixture{
		db:           newTestDatabase(t),
		group:        &Group{Name: "support-" + suffix},
		secondGroup:  &Group{Name: "billing-" + suffix},
		expert:       uuid.New().String(),
		secondExpert: uuid.New().String(),
		asker:        uuid.New().String(),
	}
	require.NoError(t, f.db.CreateGroup(ctx, f.group))
	require.NoError(t, f.db.CreateGroup(ctx, f.secondGroup))
	require.NoError(t, f.db.AddGroupMember(ctx, f.group.ID, f.expert))
	require.NoError(t, f.db.AddGroupMember(ctx, f.secondGroup.ID, f.secondExpert))

	category := &Category{Name: "support"}
	category.SetExpertGroupIDs(f.group.ID, f.secondGroup.ID, danglingGroupID)
	require.NoError(t, f.db.CreateCategory(ctx, category))

	f.topic = &Topic{Title: "Printer on fire", AuthorID: f.asker, CategoryID: category.ID}
	require.NoError(t, f.db.CreateTopic(ctx, f.topic))
	_, err := f.service(false).CreatePost(ctx, &Post{TopicID: f.topic.ID, AuthorID: f.asker, Author: "asker", Body: "help"})
	require.NoError(t, err)
	return f
}

func (f *dbFixture) service(requireApproval bool) *Service {
	return NewService(f.db, Settings{ExpertWorkflowEnabled: true, ExpertPostsRequireApproval: requireApproval}, zerolog.Nop())
}

func (f *dbFixture) post(t *testing.T, svc *Service, author string) *Post {
	t.Helper()
	post := &Post{TopicID: f.topic.ID, AuthorID: author, Author: author, Body: "answer"}
	_, err := svc.CreatePost(context.Background(), post)
	require.NoError(t, err)
	return post
}

func (f *dbFixture) view(t *testing.T) *TopicView {
	t.Helper()
	view, err := f.service(false).Topic(context.Background(), f.topic.ID)
	require.NoError(t, err)
	return view
}

func TestDatabaseExpertApproval(t *testing.T) {
	ctx := context.Background()
	f := newDBFixture(t)
	svc := f.service(true)
	moderator := &User{ID: uuid.New().String(), Handle: "mod", Admin: true}

	first := f.post(t, svc, f.expert)
	second := f.post(t, svc, f.secondExpert)
	f.post(t, svc, f.asker)

	err := f.db.InTopic(ctx, f.topic.ID, func(ctx context.Context, repo Repository) error {
		pending, err := repo.AnyPostPending(ctx, f.topic.ID, first.ID)
		require.NoError(t, err)
		assert.True(t, pending)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.ApproveExpertPost(ctx, f.topic.ID, first.ID, moderator)
	require.NoError(t, err)
	view := f.view(t)
	assert.True(t, view.Topic.NeedsExpertPostApproval())
	assert.Equal(t, []string{f.group.Name}, view.Topic.ExpertPostGroupNames())

	_, err = svc.ApproveExpertPost(ctx, f.topic.ID, second.ID, moderator)
	require.NoError(t, err)
	view = f.view(t)
	assert.False(t, view.Topic.NeedsExpertPostApproval())
	assert.Equal(t, []string{f.group.Name, f.secondGroup.Name}, view.Topic.ExpertPostGroupNames())

	require.Len(t, view.Posts, 4)
	name, ok := view.Posts[1].ApprovedExpertGroupName()
	assert.True(t, ok)
	assert.Equal(t, f.group.Name, name)
	assert.False(t, view.Posts[1].PendingExpertApproval())
	assert.Empty(t, view.Posts[3].Fields)

	_, err = svc.ApproveExpertPost(ctx, f.topic.ID, first.ID, moderator)
	assert.ErrorIs(t, err, ErrNotPendingApproval)
}

func TestDatabaseConcurrentExpertPosts(t *testing.T) {
	ctx := context.Background()
	f := newDBFixture(t)
	svc := f.service(false)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, author := range []string{f.expert, f.secondExpert} {
			wg.Add(1)
			go func(author string) {
				defer wg.Done()
				_, err := svc.CreatePost(ctx, &Post{TopicID: f.topic.ID, AuthorID: author, Author: author, Body: "answer"})
				errs <- err
			}(author)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view := f.view(t)
	require.Len(t, view.Posts, 21)
	for i, p := range view.Posts {
		assert.Equal(t, i+1, p.PostNumber)
	}
	assert.ElementsMatch(t, []string{f.group.Name, f.secondGroup.Name}, view.Topic.ExpertPostGroupNames())
}

func TestDatabaseSaveUserKeepsStoredID(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	email := uuid.New().String() + "@example.com"

	original := NewUser(email, "first", false)
	require.NoError(t, db.SaveUser(ctx, original))
	again := NewUser(email, "second", true)
	require.NoError(t, db.SaveUser(ctx, again))
	assert.Equal(t, original.ID, again.ID)

	stored, err := db.GetUserByID(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "second", stored.Handle)
	assert.True(t, stored.Admin)

	require.NoError(t, db.InTopic(ctx, newDBFixture(t).topic.ID, func(ctx context.Context, repo Repository) error {
		return repo.AddNotification(ctx, NewNotification("mod", original.ID, "approved", "/topics/x"))
	}))
	stored, err = db.GetUserByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Notifications, 1)
}

func TestDatabaseSeedDemoRepeatable(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	first, err := SeedDemo(ctx, db, db, demoAccounts, zerolog.Nop())
	require.NoError(t, err)
	second, err := SeedDemo(ctx, db, db, demoAccounts, zerolog.Nop())
	require.NoError(t, err)

	assertSeeded(t, db, db, first)
	assertSeeded(t, db, db, second)
}

func TestDatabaseCreateGroupRejectsBadNames(t *testing.T) {
	db := newTestDatabase(t)
	for _, name := range []string{"", "a|b"} {
		assert.ErrorIs(t, db.CreateGroup(context.Background(), &Group{Name: name}), ErrInvalidRequest, name)
	}
}
