// forum/models.go
package forum

import (
	"fmt"
	"strings"
	"time"
)

// Topic is a discussion thread. Expert workflow state lives in Fields.
type Topic struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Tags       []string  `json:"tags" db:"tags"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	AuthorID   string    `json:"author_id" db:"author_id"`
	CategoryID int64     `json:"category_id" db:"category_id"`
	Fields     Fields    `json:"fields"`
}

// NeedsExpertPostApproval reports whether any reply in the topic is awaiting
// expert approval.
func (t *Topic) NeedsExpertPostApproval() bool {
	v, _ := t.Fields.Bool(TopicNeedsExpertPostApproval)
	return v
}

func (t *Topic) SetNeedsExpertPostApproval(v bool) {
	t.Fields = t.Fields.SetBool(TopicNeedsExpertPostApproval, v)
}

// ExpertPostGroupNames returns the credited group names in first-approved order.
func (t *Topic) ExpertPostGroupNames() []string {
	raw, ok := t.Fields.String(TopicExpertPostGroupNames)
	if !ok {
		return nil
	}
	return splitList(raw)
}

// Post is a single message in a topic. PostNumber 1 is the opening post.
type Post struct {
	ID           int64     `json:"id" db:"id"`
	TopicID      string    `json:"topic_id" db:"topic_id"`
	PostNumber   int       `json:"post_number" db:"post_number"`
	Author       string    `json:"author" db:"author"`
	Body         string    `json:"body" db:"body"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	AuthorID     string    `json:"author_id" db:"author_id"`
	ParentPostID *int64    `json:"parent_post_id" db:"parent_post_id"`
	Fields       Fields    `json:"fields"`
}

func (p *Post) IsFirst() bool {
	return p.PostNumber == 1
}

func (p *Post) PendingExpertApproval() bool {
	v, _ := p.Fields.Bool(PostPendingExpertApproval)
	return v
}

// ApprovedExpertGroupName is the group credited for this post, if approved.
func (p *Post) ApprovedExpertGroupName() (string, bool) {
	return p.Fields.String(PostApprovedExpertGroupName)
}

// Category groups topics and carries the expert group configuration.
type Category struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Fields Fields `json:"fields"`
}

// ExpertGroupIDs returns the configured expert group references in order.
// Entries that are not integers are ignored; unknown ids are kept and left
// for the resolver to drop.
func (c *Category) ExpertGroupIDs() []int64 {
	raw, ok := c.Fields.String(CategoryExpertGroupIDs)
	if !ok {
		return nil
	}
	return parseIDList(raw)
}

func (c *Category) SetExpertGroupIDs(ids ...int64) {
	c.Fields = c.Fields.SetString(CategoryExpertGroupIDs, formatIDList(ids))
}

type Group struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Validate rejects names that cannot be stored in a topic's group name list.
func (g *Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("group name is empty: %w", ErrInvalidRequest)
	}
	if strings.Contains(g.Name, listSeparator) {
		return fmt.Errorf("group name %q contains %q: %w", g.Name, listSeparator, ErrInvalidRequest)
	}
	return nil
}
