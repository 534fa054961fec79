package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Settings are the site-wide switches for the expert workflow.
type Settings struct {
	ExpertWorkflowEnabled      bool
	ExpertPostsRequireApproval bool
}

// Service is the post pipeline and moderation entry point.
type Service struct {
	Store    Store
	Settings Settings
	Logger   zerolog.Logger
}

func NewService(store Store, settings Settings, logger zerolog.Logger) *Service {
	return &Service{
		Store:    store,
		Settings: settings,
		Logger:   logger.With().Str("module", "forum").Logger(),
	}
}

// TopicView is a topic with its posts in order.
type TopicView struct {
	Topic Topic  `json:"topic"`
	Posts []Post `json:"posts"`
}

func (s *Service) Topic(ctx context.Context, topicID string) (*TopicView, error) {
	var view TopicView
	err := s.Store.InTopic(ctx, topicID, func(ctx context.Context, repo Repository) error {
		topic, err := repo.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		if topic == nil {
			return ErrNotFound
		}
		posts, err := repo.GetPostsByTopic(ctx, topicID)
		if err != nil {
			return err
		}
		view = TopicView{Topic: *topic, Posts: posts}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CreatePost stores a new post and, for replies, runs the expert workflow
// when it is enabled. The returned outcome is ordinary for everything else.
func (s *Service) CreatePost(ctx context.Context, post *Post) (Outcome, error) {
	post.Body = strings.TrimSpace(post.Body)
	if post.TopicID == "" || post.AuthorID == "" || post.Body == "" {
		return Outcome{}, ErrInvalidRequest
	}

	outcome := Outcome{Kind: OutcomeOrdinary}
	err := s.Store.InTopic(ctx, post.TopicID, func(ctx context.Context, repo Repository) error {
		if err := repo.CreatePost(ctx, post); err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		if !s.Settings.ExpertWorkflowEnabled || post.IsFirst() {
			return nil
		}
		topic, category, err := loadThread(ctx, repo, post.TopicID)
		if err != nil {
			return err
		}

		outcome, err = NewExpertApproval(repo, s.Settings.ExpertPostsRequireApproval).Evaluate(ctx, post, topic, category)
		if err != nil {
			return err
		}
		if outcome.Kind == OutcomeOrdinary {
			return nil
		}
		return saveThread(ctx, repo, post, topic)
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("event", "post_create_failed").Str("topic_id", post.TopicID).Msg("create post")
		return Outcome{}, err
	}

	s.Logger.Info().
		Str("event", "post_created").
		Str("topic_id", post.TopicID).
		Int64("post_id", post.ID).
		Str("outcome", string(outcome.Kind)).
		Str("group", outcome.GroupName).
		Msg("post created")
	return outcome, nil
}

// ApproveExpertPost finalizes a pending expert post on behalf of a
// moderator and notifies the author.
func (s *Service) ApproveExpertPost(ctx context.Context, topicID string, postID int64, moderator *User) (Outcome, error) {
	if moderator == nil || !moderator.Admin {
		return Outcome{}, ErrForbidden
	}

	var outcome Outcome
	err := s.Store.InTopic(ctx, topicID, func(ctx context.Context, repo Repository) error {
		post, err := repo.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil || post.TopicID != topicID {
			return ErrNotFound
		}
		if post.IsFirst() {
			return ErrFirstPost
		}
		topic, category, err := loadThread(ctx, repo, topicID)
		if err != nil {
			return err
		}

		outcome, err = NewExpertApproval(repo, s.Settings.ExpertPostsRequireApproval).MarkApproved(ctx, post, topic, category)
		if err != nil {
			return err
		}
		if err := saveThread(ctx, repo, post, topic); err != nil {
			return err
		}

		msg := fmt.Sprintf("Your post in %q was approved as an expert answer for %s", topic.Title, outcome.GroupName)
		link := fmt.Sprintf("/topics/%s#post-%d", topic.ID, post.PostNumber)
		err = repo.AddNotification(ctx, NewNotification(moderator.Handle, post.AuthorID, msg, link))
		if errors.Is(err, ErrNotFound) {
			s.Logger.Debug().Str("event", "notification_skipped").Str("user_id", post.AuthorID).Msg("author has no account")
			return nil
		}
		return err
	})
	if err != nil {
		s.Logger.Warn().Err(err).
			Str("event", "expert_post_approval_rejected").
			Str("topic_id", topicID).
			Int64("post_id", postID).
			Msg("approve expert post")
		return Outcome{}, err
	}

	s.Logger.Info().
		Str("event", "expert_post_approved").
		Str("topic_id", topicID).
		Int64("post_id", postID).
		Str("group", outcome.GroupName).
		Str("moderator_id", moderator.ID).
		Msg("expert post approved")
	return outcome, nil
}

// PendingExpertPosts lists the topic's posts awaiting expert approval.
func (s *Service) PendingExpertPosts(ctx context.Context, topicID string) ([]Post, error) {
	var pending []Post
	err := s.Store.InTopic(ctx, topicID, func(ctx context.Context, repo Repository) error {
		posts, err := repo.GetPostsByTopic(ctx, topicID)
		if err != nil {
			return err
		}
		for _, p := range posts {
			if p.PendingExpertApproval() {
				pending = append(pending, p)
			}
		}
		return nil
	})
	return pending, err
}

func loadThread(ctx context.Context, repo Repository, topicID string) (*Topic, *Category, error) {
	topic, err := repo.GetTopic(ctx, topicID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load topic: %w", err)
	}
	if topic == nil {
		return nil, nil, ErrNotFound
	}
	category, err := repo.GetCategory(ctx, topic.CategoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load category: %w", err)
	}
	if category == nil {
		return nil, nil, fmt.Errorf("category %d: %w", topic.CategoryID, ErrNotFound)
	}
	return topic, category, nil
}

func saveThread(ctx context.Context, repo Repository, post *Post, topic *Topic) error {
	if err := repo.SavePostFields(ctx, post); err != nil {
		return fmt.Errorf("failed to save post fields: %w", err)
	}
	if err := repo.SaveTopicFields(ctx, topic); err != nil {
		return fmt.Errorf("failed to save topic fields: %w", err)
	}
	return nil
}
