package services

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
)

const maxCommentLength = 2000

// CommentThread is a top-level comment with its replies in posting order.
type CommentThread struct {
	db.Comment
	Replies []CommentThread `json:"replies"`
}

// CommentService manages market discussion threads.
type CommentService struct {
	store  db.Querier
	logger *slog.Logger
}

func NewCommentService(store db.Querier, logger *slog.Logger) *CommentService {
	return &CommentService{store: store, logger: logger}
}

// CreateComment posts body on a market, optionally as a reply to parentID.
func (s *CommentService) CreateComment(ctx context.Context, author string, marketID uuid.UUID, parentID *uuid.UUID, body string) (db.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return db.Comment{}, invalid("body", "must not be empty")
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return db.Comment{}, invalid("body", "too long")
	}
	if _, err := s.store.GetMarket(ctx, marketID); err != nil {
		return db.Comment{}, notFound(err)
	}

	parent := uuid.NullUUID{}
	if parentID != nil {
		p, err := s.store.GetComment(ctx, *parentID)
		if err != nil {
			return db.Comment{}, notFound(err)
		}
		if p.MarketID != marketID {
			return db.Comment{}, invalid("parent_id", "belongs to another market")
		}
		parent = uuid.NullUUID{UUID: p.ID, Valid: true}
	}

	c, err := s.store.CreateComment(ctx, db.CreateCommentParams{
		ID:       uuid.New(),
		MarketID: marketID,
		ParentID: parent,
		Author:   author,
		Body:     body,
	})
	if err != nil {
		return db.Comment{}, err
	}
	s.logger.Info("comment created", "comment_id", c.ID, "market_id", marketID, "author", author)
	return c, nil
}

// ListThreads returns the comments of a market as threads.
func (s *CommentService) ListThreads(ctx context.Context, marketID uuid.UUID) ([]CommentThread, error) {
	comments, err := s.store.ListCommentsByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	children := make(map[uuid.UUID][]db.Comment)
	var roots []db.Comment
	for _, c := range comments {
		if c.ParentID.Valid {
			children[c.ParentID.UUID] = append(children[c.ParentID.UUID], c)
		} else {
			roots = append(roots, c)
		}
	}

	var build func(c db.Comment) CommentThread
	build = func(c db.Comment) CommentThread {
		t := CommentThread{Comment: c, Replies: []CommentThread{}}
		for _, child := range children[c.ID] {
			t.Replies = append(t.Replies, build(child))
		}
		return t
	}

	threads := make([]CommentThread, 0, len(roots))
	for _, r := range roots {
		threads = append(threads, build(r))
	}
	return threads, nil
}
