package forum

import (
	"context"
	"fmt"
)

// GroupLookup resolves group ids and membership.
type GroupLookup interface {
	GroupByID(ctx context.Context, id int64) (*Group, error)
	IsGroupMember(ctx context.Context, groupID int64, userID string) (bool, error)
}

// PendingQuery answers whether a topic still has posts awaiting approval.
type PendingQuery interface {
	AnyPostPending(ctx context.Context, topicID string, exceptPostID int64) (bool, error)
}

// ExpertGroupResolver turns a category's configured group references into
// groups. References to deleted groups are dropped; duplicates are kept.
type ExpertGroupResolver struct {
	Groups GroupLookup
}

func (r ExpertGroupResolver) Resolve(ctx context.Context, category *Category) ([]Group, error) {
	ids := category.ExpertGroupIDs()
	groups := make([]Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.Groups.GroupByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up expert group %d: %w", id, err)
		}
		if g == nil {
			continue
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// OutcomeKind is the result of running a post through the expert workflow.
type OutcomeKind string

const (
	OutcomeOrdinary OutcomeKind = "ordinary"
	OutcomePending  OutcomeKind = "pending"
	OutcomeApproved OutcomeKind = "approved"
)

type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	GroupName string      `json:"group_name,omitempty"`
}

// ExpertApproval decides the expert status of replies and writes the result
// onto the post and topic fields. It does not persist anything.
type ExpertApproval struct {
	Resolver        ExpertGroupResolver
	Pending         PendingQuery
	RequireApproval bool
}

// NewExpertApproval builds the decision over a single repository.
func NewExpertApproval(repo Repository, requireApproval bool) ExpertApproval {
	return ExpertApproval{
		Resolver:        ExpertGroupResolver{Groups: repo},
		Pending:         repo,
		RequireApproval: requireApproval,
	}
}

// Evaluate runs once for a newly created reply. Posts whose author is in
// none of the category's expert groups are left untouched.
func (e ExpertApproval) Evaluate(ctx context.Context, post *Post, topic *Topic, category *Category) (Outcome, error) {
	if post.IsFirst() {
		return Outcome{Kind: OutcomeOrdinary}, nil
	}
	matching, err := e.matchingGroups(ctx, post, category)
	if err != nil {
		return Outcome{}, err
	}
	if len(matching) == 0 {
		return Outcome{Kind: OutcomeOrdinary}, nil
	}

	if e.RequireApproval {
		post.Fields = post.Fields.SetBool(PostPendingExpertApproval, true)
		topic.SetNeedsExpertPostApproval(true)
		return Outcome{Kind: OutcomePending}, nil
	}

	name := matching[0].Name
	pending, err := e.Pending.AnyPostPending(ctx, topic.ID, post.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to check pending expert posts: %w", err)
	}
	approve(post, topic, name, pending)
	return Outcome{Kind: OutcomeApproved, GroupName: name}, nil
}

// MarkApproved finalizes a post held for approval. Group membership is
// checked again against the category's current configuration.
func (e ExpertApproval) MarkApproved(ctx context.Context, post *Post, topic *Topic, category *Category) (Outcome, error) {
	if !post.PendingExpertApproval() {
		return Outcome{}, ErrNotPendingApproval
	}
	matching, err := e.matchingGroups(ctx, post, category)
	if err != nil {
		return Outcome{}, err
	}
	if len(matching) == 0 {
		return Outcome{}, ErrNotAnExpertPost
	}

	name := matching[0].Name
	pending, err := e.Pending.AnyPostPending(ctx, topic.ID, post.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to check pending expert posts: %w", err)
	}
	approve(post, topic, name, pending)
	return Outcome{Kind: OutcomeApproved, GroupName: name}, nil
}

func (e ExpertApproval) matchingGroups(ctx context.Context, post *Post, category *Category) ([]Group, error) {
	groups, err := e.Resolver.Resolve(ctx, category)
	if err != nil {
		return nil, err
	}
	var matching []Group
	for _, g := range groups {
		ok, err := e.Resolver.Groups.IsGroupMember(ctx, g.ID, post.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership of group %d: %w", g.ID, err)
		}
		if ok {
			matching = append(matching, g)
		}
	}
	return matching, nil
}

func approve(post *Post, topic *Topic, groupName string, othersPending bool) {
	post.Fields = post.Fields.SetBool(PostPendingExpertApproval, false)
	post.Fields = post.Fields.SetString(PostApprovedExpertGroupName, groupName)

	current, _ := topic.Fields.String(TopicExpertPostGroupNames)
	topic.Fields = topic.Fields.SetString(TopicExpertPostGroupNames, appendGroupName(current, groupName))
	topic.SetNeedsExpertPostApproval(othersPending)
}
