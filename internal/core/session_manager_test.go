package core

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/store"
)

func TestSessionManager_CreateGetEnd(t *testing.T) {
	fa := newFakeAssistant()
	m := NewSessionManager(fa, t.TempDir(), time.Hour, zap.NewNop())

	cfg := store.Instructions{Text: "Be concise", Temperature: 0.3}
	sess := m.Create("alice", store.RoleAdmin, cfg)
	assert.True(t, sess.IsAdmin())
	assert.Equal(t, cfg, sess.Config())
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, m.End(context.Background(), sess.ID))
	_, err = m.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.End(context.Background(), sess.ID), ErrSessionNotFound)
}

func TestSessionManager_SessionsAreIsolated(t *testing.T) {
	fa := newFakeAssistant()
	m := NewSessionManager(fa, t.TempDir(), time.Hour, zap.NewNop())
	chat := NewChatService(fa, time.Second, zap.NewNop())

	a := m.Create("alice", store.RoleAdmin, store.Instructions{Temperature: 0.7})
	b := m.Create("bruno", store.RoleUser, store.Instructions{Temperature: 0.7})
	a.replaceDocuments([]Document{doc("a.pdf")})

	_, err := chat.PostMessage(context.Background(), a, "pergunta")
	require.NoError(t, err)

	assert.Len(t, a.Transcript(), 2)
	assert.Empty(t, b.Transcript())
	assert.Empty(t, b.Documents())
	assert.False(t, b.IsAdmin())
}

func TestSessionManager_EndReleasesDocuments(t *testing.T) {
	fa := newFakeAssistant()
	m := NewSessionManager(fa, t.TempDir(), time.Hour, zap.NewNop())
	ingest := newTestIngest(fa)

	sess := m.Create("alice", store.RoleUser, store.Instructions{Temperature: 0.7})
	docs, err := ingest.Ingest(context.Background(), sess, []UploadedFile{pdfFile("A.pdf", "Edital")})
	require.NoError(t, err)

	require.NoError(t, m.End(context.Background(), sess.ID))
	assert.Equal(t, []string{docs[0].Remote.Name}, fa.deletedNames())
	_, statErr := os.Stat(sess.uploadDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionManager_ExpireIdle(t *testing.T) {
	fa := newFakeAssistant()
	m := NewSessionManager(fa, t.TempDir(), 30*time.Minute, zap.NewNop())
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Create("alice", store.RoleUser, store.Instructions{})
	busy := m.Create("bruno", store.RoleUser, store.Instructions{})
	busy.replaceDocuments([]Document{doc("a.pdf")})
	_, err := busy.beginTurn("pergunta", now)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	active := m.Create("carla", store.RoleUser, store.Instructions{})

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, m.ExpireIdle(context.Background()))

	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)
	_, err = m.Get(active.ID)
	assert.NoError(t, err)
}

func TestSessionManager_Shutdown(t *testing.T) {
	m := NewSessionManager(newFakeAssistant(), t.TempDir(), time.Hour, zap.NewNop())
	m.Create("alice", store.RoleUser, store.Instructions{})
	m.Create("bruno", store.RoleUser, store.Instructions{})

	m.Shutdown(context.Background())
	assert.Equal(t, 0, m.Count())
}

func TestSessionManager_RunStopsOnCancel(t *testing.T) {
	m := NewSessionManager(newFakeAssistant(), t.TempDir(), time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
