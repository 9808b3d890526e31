package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"bidsia.com/bids-assistant/internal/store"
)

type fakeAssistant struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	asks      []AskRequest
	reply     string
	askErr    error
	uploadErr map[string]error
	release   chan struct{} // when set, Ask blocks until it is closed
	started   chan struct{} // when set, receives one value per Ask call
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{reply: "resposta", uploadErr: map[string]error{}}
}

func (f *fakeAssistant) UploadFile(_ context.Context, path, mimeType string) (*RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := filepath.Base(path)
	if err := f.uploadErr[base]; err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, base)
	name := fmt.Sprintf("files/%d-%s", len(f.uploads), base)
	return &RemoteFile{Name: name, URI: "https://generativelanguage.example/v1beta/" + name, MIMEType: mimeType}, nil
}

func (f *fakeAssistant) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeAssistant) Ask(ctx context.Context, req AskRequest) (string, error) {
	f.mu.Lock()
	f.asks = append(f.asks, req)
	release, started := f.release, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.askErr != nil {
		return "", f.askErr
	}
	return f.reply, nil
}

func (f *fakeAssistant) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asks)
}

func (f *fakeAssistant) deletedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeStore struct {
	users        map[string]*store.User
	instructions *store.Instructions
	err          error
}

var errStoreDown = errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[username], nil
}

func (f *fakeStore) GetInstructions(context.Context) (*store.Instructions, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.instructions, nil
}

func (f *fakeStore) SaveInstructions(_ context.Context, text string, temperature float64) error {
	if f.err != nil {
		return f.err
	}
	f.instructions = &store.Instructions{Text: text, Temperature: temperature}
	return nil
}
