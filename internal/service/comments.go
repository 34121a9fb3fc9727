package service

import (
	"context"

	"groupdecide/internal/domain"
	"groupdecide/internal/repository"
)

// CommentRequest is the body of a new comment
type CommentRequest struct {
	Body     string  `json:"body"`
	ParentID *string `json:"parent_id,omitempty"`
}

// AddComment posts a comment, optionally as a reply to one in the same decision
func (s *DecisionService) AddComment(ctx context.Context, decisionID, userID string, req CommentRequest) (*domain.Comment, error) {
	var out *domain.Comment
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := s.load(ctx, tx, decisionID, userID, domain.ActionComment); err != nil {
			return err
		}
		c, err := domain.NewComment(decisionID, userID, req.Body, req.ParentID, s.now(), s.newID)
		if err != nil {
			return err
		}
		if c.ParentID != nil {
			if _, err := tx.GetComment(ctx, decisionID, *c.ParentID); err != nil {
				return notFound(err, "parent comment")
			}
		}
		if err := tx.CreateComment(ctx, &c); err != nil {
			return err
		}
		out = &c
		return nil
	})
	return out, err
}

// CommentThread returns the discussion as a tree of top-level comments
func (s *DecisionService) CommentThread(ctx context.Context, decisionID, userID string) ([]*domain.CommentNode, error) {
	var comments []domain.Comment
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, _, err := s.loadMember(ctx, tx, decisionID, userID); err != nil {
			return err
		}
		var err error
		comments, err = tx.ListComments(ctx, decisionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return domain.BuildCommentTree(comments), nil
}
