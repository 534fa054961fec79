package forum

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrForbidden          = errors.New("forbidden")
	ErrFirstPost          = errors.New("first post of a topic cannot be an expert post")
	ErrNotAnExpertPost    = errors.New("post author is not a member of any expert group for this category")
	ErrNotPendingApproval = errors.New("post is not pending expert approval")
)
