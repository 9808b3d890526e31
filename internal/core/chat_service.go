package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ChatService struct {
	assistant Assistant
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(assistant Assistant, timeout time.Duration, logger *zap.Logger) *ChatService {
	return &ChatService{
		assistant: assistant,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// PostMessage runs one chat turn. Blank content is a no-op and returns no
// messages. Otherwise it returns the appended user and assistant entries.
func (s *ChatService) PostMessage(ctx context.Context, sess *Session, content string) ([]Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	t, err := sess.beginTurn(content, s.now())
	if err != nil {
		return nil, err
	}

	askCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	reply, err := s.assistant.Ask(askCtx, AskRequest{
		Instructions: t.config.Text,
		Temperature:  t.config.Temperature,
		Question:     content,
		File:         t.doc.Remote,
	})
	if err != nil {
		sess.abortTurn(t)
		return nil, fmt.Errorf("failed to get assistant reply: %w", err)
	}

	modelMsg, ok := sess.finishTurn(t, reply, s.now())
	if !ok {
		s.logger.Debug("reply discarded after clear", zap.String("session_id", sess.ID))
		return nil, ErrTurnDiscarded
	}
	s.logger.Debug("chat turn completed",
		zap.String("session_id", sess.ID),
		zap.String("document", t.doc.Name),
		zap.Duration("elapsed", s.now().Sub(start)))

	return []Message{t.user, modelMsg}, nil
}

func (s *ChatService) ClearMessages(sess *Session) {
	sess.Clear()
}
