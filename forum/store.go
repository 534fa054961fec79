package forum

import "context"

// Repository is the persistence surface used inside a topic-scoped unit of
// work. Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	GetCategory(ctx context.Context, id int64) (*Category, error)
	GetTopic(ctx context.Context, id string) (*Topic, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	GetPostsByTopic(ctx context.Context, topicID string) ([]Post, error)

	GroupByID(ctx context.Context, id int64) (*Group, error)
	IsGroupMember(ctx context.Context, groupID int64, userID string) (bool, error)

	// AnyPostPending reports whether a post in the topic other than
	// exceptPostID is still pending expert approval.
	AnyPostPending(ctx context.Context, topicID string, exceptPostID int64) (bool, error)

	// CreatePost inserts the post and assigns ID, PostNumber and CreatedAt.
	CreatePost(ctx context.Context, post *Post) error
	SavePostFields(ctx context.Context, post *Post) error
	SaveTopicFields(ctx context.Context, topic *Topic) error

	AddNotification(ctx context.Context, n Notification) error
}

// Store hands out topic-scoped units of work. InTopic must serialize every
// writer of the same topic for the duration of fn, and must not commit
// anything fn wrote when fn returns an error.
type Store interface {
	InTopic(ctx context.Context, topicID string, fn func(ctx context.Context, repo Repository) error) error
}
