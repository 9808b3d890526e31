package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/store"
)

const minJanitorInterval = time.Minute

// SessionManager owns every live session. Sessions are created at login and torn
// down at logout, at shutdown, or after idleTTL without activity.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	assistant  Assistant
	uploadRoot string
	idleTTL    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewSessionManager(assistant Assistant, uploadRoot string, idleTTL time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		assistant:  assistant,
		uploadRoot: uploadRoot,
		idleTTL:    idleTTL,
		logger:     logger,
		now:        time.Now,
	}
}

func (m *SessionManager) Create(username, role string, config store.Instructions) *Session {
	id := uuid.NewString()
	sess := newSession(id, username, role, config, filepath.Join(m.uploadRoot, id), m.now())

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Info("session started", zap.String("session_id", id), zap.String("username", username), zap.String("role", role))
	return sess
}

// Get returns the live session and marks it active.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(m.now())
	return sess, nil
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End removes the session and releases its documents.
func (m *SessionManager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	m.teardown(ctx, sess)
	m.logger.Info("session ended", zap.String("session_id", id), zap.String("username", sess.Username))
	return nil
}

// Run expires idle sessions until ctx is cancelled.
func (m *SessionManager) Run(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	interval := m.idleTTL / 4
	if interval < minJanitorInterval {
		interval = minJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ExpireIdle(ctx); n > 0 {
				m.logger.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// ExpireIdle ends sessions idle for longer than idleTTL and returns how many ended.
// Sessions waiting on a reply are left alone.
func (m *SessionManager) ExpireIdle(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTTL)

	var expired []*Session
	m.mu.Lock()
	for id, sess := range m.sessions {
		if sess.State() == StateThinking {
			continue
		}
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.teardown(ctx, sess)
	}
	return len(expired)
}

// Shutdown ends every session.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range all {
		m.teardown(ctx, sess)
	}
}

func (m *SessionManager) teardown(ctx context.Context, sess *Session) {
	releaseDocuments(ctx, m.assistant, m.logger, sess.takeDocuments())
	if err := os.RemoveAll(sess.uploadDir); err != nil {
		m.logger.Warn("failed to remove session upload dir", zap.String("dir", sess.uploadDir), zap.Error(err))
	}
}

// releaseDocuments deletes the remote files and local copies of docs. Failures are
// logged and otherwise ignored.
func releaseDocuments(ctx context.Context, assistant Assistant, logger *zap.Logger, docs []Document) {
	for _, doc := range docs {
		if doc.Remote.Name != "" {
			if err := assistant.DeleteFile(ctx, doc.Remote.Name); err != nil {
				logger.Warn("failed to delete remote file", zap.String("name", doc.Remote.Name), zap.Error(err))
			}
		}
		if doc.LocalPath != "" {
			if err := os.Remove(doc.LocalPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove local file", zap.String("path", doc.LocalPath), zap.Error(err))
			}
			os.Remove(filepath.Dir(doc.LocalPath)) // only succeeds once the batch dir is empty
		}
	}
}
