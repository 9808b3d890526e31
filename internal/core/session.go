package core

import (
	"errors"
	"sync"
	"time"

	"bidsia.com/bids-assistant/internal/store"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInProgress  = errors.New("a reply is already being generated for this session")
	ErrNoDocument      = errors.New("no document uploaded: upload a PDF before asking questions")
	ErrTurnDiscarded   = errors.New("conversation was cleared before the reply arrived")
)

type SessionState int

const (
	StateAwaitingInput SessionState = iota
	StateThinking
)

func (s SessionState) String() string {
	switch s {
	case StateThinking:
		return "thinking"
	default:
		return "awaiting_input"
	}
}

type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is one ingested PDF: extracted text kept in memory, a local copy and
// the remote reference.
type Document struct {
	Name       string     `json:"name"`
	Size       int        `json:"size"`
	TextLength int        `json:"text_length"`
	Text       string     `json:"-"`
	LocalPath  string     `json:"-"`
	Remote     RemoteFile `json:"remote"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// Session is the per-login conversation context. Fields after mu are guarded by it.
type Session struct {
	ID        string
	Username  string
	Role      string
	CreatedAt time.Time
	uploadDir string

	mu         sync.Mutex
	config     store.Instructions
	documents  []Document
	transcript []Message
	state      SessionState
	lastActive time.Time
	epoch      uint64 // bumped by Clear; replies from an older epoch are dropped
	ended      bool
}

// turn is one in-flight exchange, started by beginTurn.
type turn struct {
	user   Message
	doc    Document
	config store.Instructions
	epoch  uint64
}

func newSession(id, username, role string, config store.Instructions, uploadDir string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Username:   username,
		Role:       role,
		CreatedAt:  now,
		uploadDir:  uploadDir,
		config:     config,
		state:      StateAwaitingInput,
		lastActive: now,
	}
}

func (s *Session) IsAdmin() bool {
	return s.Role == store.RoleAdmin
}

// Config returns the session's copy of the instructions and temperature.
func (s *Session) Config() store.Instructions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Session) SetConfig(config store.Instructions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document{}, s.documents...)
}

func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message{}, s.transcript...)
}

// Clear empties the transcript and returns the session to AwaitingInput. A reply
// still in flight is discarded when it arrives.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	s.state = StateAwaitingInput
	s.epoch++
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// replaceDocuments installs docs as the current document set and returns the
// previous set. It refuses once the session has ended; ok is false and the
// caller still owns docs.
func (s *Session) replaceDocuments(docs []Document) (old []Document, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, false
	}
	old = s.documents
	s.documents = docs
	return old, true
}

// takeDocuments marks the session ended and hands over its documents.
func (s *Session) takeDocuments() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	docs := s.documents
	s.documents = nil
	return docs
}

// beginTurn moves AwaitingInput -> Thinking, appending the user entry. The turn
// carries the first document, which is the only one forwarded to the model.
func (s *Session) beginTurn(content string, now time.Time) (turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateThinking {
		return turn{}, ErrTurnInProgress
	}
	if len(s.documents) == 0 {
		return turn{}, ErrNoDocument
	}

	msg := Message{Role: SenderUser, Content: content, Timestamp: now}
	s.transcript = append(s.transcript, msg)
	s.state = StateThinking
	s.lastActive = now
	return turn{user: msg, doc: s.documents[0], config: s.config, epoch: s.epoch}, nil
}

// finishTurn appends the reply and returns to AwaitingInput. If the transcript
// was cleared since t began, the reply is dropped and ok is false.
func (s *Session) finishTurn(t turn, reply string, now time.Time) (msg Message, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != t.epoch {
		return Message{}, false
	}
	msg = Message{Role: SenderAssistant, Content: reply, Timestamp: now}
	s.transcript = append(s.transcript, msg)
	s.state = StateAwaitingInput
	s.lastActive = now
	return msg, true
}

// abortTurn returns to AwaitingInput after a failed call. The user entry stays.
func (s *Session) abortTurn(t turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == t.epoch {
		s.state = StateAwaitingInput
	}
}
