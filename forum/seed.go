package forum

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Directory manages the records the expert workflow only reads: categories,
// groups, memberships and topics.
type Directory interface {
	CreateCategory(ctx context.Context, category *Category) error
	SaveCategoryFields(ctx context.Context, category *Category) error
	CreateGroup(ctx context.Context, group *Group) error
	GroupByName(ctx context.Context, name string) (*Group, error)
	AddGroupMember(ctx context.Context, groupID int64, userID string) error
	CreateTopic(ctx context.Context, topic *Topic) error
}

// DemoAccount is a login created by SeedDemo.
type DemoAccount struct {
	Email    string
	Handle   string
	Password string
	Admin    bool
}

// SeedDemo creates a category whose expert group holds the "expert"
// account, plus a moderator, and opens one topic in it. Accounts and the
// group are reused when they already exist, so it can run on every start.
func SeedDemo(ctx context.Context, dir Directory, users UserStore, accounts []DemoAccount, logger zerolog.Logger) (*Topic, error) {
	created := map[string]*User{}
	for _, a := range accounts {
		u, err := users.GetUserByEmail(ctx, a.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user %s: %w", a.Email, err)
		}
		if u == nil {
			u = NewUser(a.Email, a.Handle, a.Admin)
		}
		u.Handle, u.Admin = a.Handle, a.Admin
		if err := u.SetPassword(a.Password); err != nil {
			return nil, err
		}
		if err := users.SaveUser(ctx, u); err != nil {
			return nil, fmt.Errorf("failed to save user %s: %w", a.Email, err)
		}
		created[a.Handle] = u
	}

	group, err := dir.GroupByName(ctx, "experts")
	if err != nil {
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}
	if group == nil {
		group = &Group{Name: "experts"}
		if err := dir.CreateGroup(ctx, group); err != nil {
			return nil, fmt.Errorf("failed to create group: %w", err)
		}
	}
	for handle, u := range created {
		if handle == "expert" {
			if err := dir.AddGroupMember(ctx, group.ID, u.ID); err != nil {
				return nil, err
			}
		}
	}

	category := &Category{Name: "support"}
	category.SetExpertGroupIDs(group.ID)
	if err := dir.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	topic := &Topic{Title: "Welcome", CategoryID: category.ID}
	if len(accounts) > 0 {
		topic.AuthorID = created[accounts[0].Handle].ID
	}
	if err := dir.CreateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	logger.Info().
		Str("event", "demo_seeded").
		Int64("category_id", category.ID).
		Int64("group_id", group.ID).
		Str("topic_id", topic.ID).
		Msg("demo data seeded")
	return topic, nil
}
