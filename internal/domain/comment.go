package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "groupdecide/pkg/errors"
)

const MaxCommentLength = 2000

// Comment is a discussion message, optionally a reply to ParentID
type Comment struct {
	ID         string    `json:"id"`
	DecisionID string    `json:"decision_id"`
	UserID     string    `json:"user_id"`
	ParentID   *string   `json:"parent_id,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommentNode is a comment with its replies in creation order
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}

// NewComment validates the body and builds a comment
func NewComment(decisionID, userID, body string, parentID *string, now time.Time, idGenerator func() string) (Comment, error) {
	if idGenerator == nil {
		idGenerator = NewID
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, apperrors.NewValidationError("comment body is required",
			map[string]interface{}{"field": "body"})
	}
	if utf8.RuneCountInString(body) > MaxCommentLength {
		return Comment{}, apperrors.NewValidationError(
			fmt.Sprintf("comment must be at most %d characters", MaxCommentLength),
			map[string]interface{}{"field": "body"})
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}
	return Comment{
		ID:         idGenerator(),
		DecisionID: decisionID,
		UserID:     userID,
		ParentID:   parentID,
		Body:       body,
		CreatedAt:  now.UTC(),
	}, nil
}

// BuildCommentTree weaves a flat, creation-ordered list into threads. It
// builds fresh nodes and never touches its input. A comment whose parent is
// missing or appears later in the list becomes a root, which also rules out
// cycles.
func BuildCommentTree(comments []Comment) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(comments))
	roots := make([]*CommentNode, 0)
	for _, c := range comments {
		node := &CommentNode{Comment: c, Replies: []*CommentNode{}}
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
				nodes[c.ID] = node
				continue
			}
		}
		roots = append(roots, node)
		nodes[c.ID] = node
	}
	return roots
}
