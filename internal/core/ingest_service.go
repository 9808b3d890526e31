package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/document"
)

var (
	ErrNoFiles       = errors.New("no files in upload")
	ErrUnreadablePDF = errors.New("could not read PDF")
	ErrRemoteUpload  = errors.New("could not register file with the assistant")
)

type UploadedFile struct {
	Name    string
	Content []byte
}

// IngestService turns an upload batch into the session's document set.
type IngestService struct {
	assistant Assistant
	logger    *zap.Logger
	timeout   time.Duration
	extract   func([]byte) (string, error)
	now       func() time.Time
}

// IngestOption customizes an IngestService.
type IngestOption func(*IngestService)

// WithTextExtractor replaces the PDF text extractor.
func WithTextExtractor(extract func([]byte) (string, error)) IngestOption {
	return func(s *IngestService) {
		s.extract = extract
	}
}

func NewIngestService(assistant Assistant, timeout time.Duration, logger *zap.Logger, opts ...IngestOption) *IngestService {
	s := &IngestService{
		assistant: assistant,
		logger:    logger,
		timeout:   timeout,
		extract:   document.ExtractText,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest extracts, stores and registers every file of the batch in order. Any
// failure aborts the whole batch: what this batch created is released and the
// session keeps its previous documents. On success the batch replaces the
// previous document set.
func (s *IngestService) Ingest(ctx context.Context, sess *Session, files []UploadedFile) ([]Document, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	batchDir := filepath.Join(sess.uploadDir, uuid.NewString())
	docs := make([]Document, 0, len(files))
	for _, f := range files {
		doc, err := s.ingestOne(ctx, batchDir, f)
		if doc.LocalPath != "" {
			docs = append(docs, doc)
		}
		if err != nil {
			s.logger.Warn("upload batch aborted",
				zap.String("session_id", sess.ID),
				zap.String("file", f.Name),
				zap.Error(err))
			releaseDocuments(context.WithoutCancel(ctx), s.assistant, s.logger, docs)
			return nil, err
		}
	}

	previous, ok := sess.replaceDocuments(docs)
	if !ok {
		s.logger.Info("session ended during upload, discarding batch", zap.String("session_id", sess.ID))
		releaseDocuments(context.WithoutCancel(ctx), s.assistant, s.logger, docs)
		os.Remove(sess.uploadDir) // teardown may have run before this batch wrote its files
		return nil, ErrSessionNotFound
	}
	releaseDocuments(context.WithoutCancel(ctx), s.assistant, s.logger, previous)

	s.logger.Info("documents ingested", zap.String("session_id", sess.ID), zap.Int("count", len(docs)))
	return sess.Documents(), nil
}

// ingestOne returns a Document with LocalPath set whenever a local copy was written,
// even on error, so the caller can release it.
func (s *IngestService) ingestOne(ctx context.Context, dir string, f UploadedFile) (Document, error) {
	if !document.IsPDF(f.Name, f.Content) {
		return Document{}, fmt.Errorf("%w: %s", document.ErrNotPDF, f.Name)
	}

	text, err := s.extract(f.Content)
	if err != nil {
		return Document{}, fmt.Errorf("%w %s: %w", ErrUnreadablePDF, f.Name, err)
	}

	path, err := document.SaveLocal(dir, f.Name, f.Content)
	if err != nil {
		return Document{}, fmt.Errorf("store %s: %w", f.Name, err)
	}
	doc := Document{
		Name:       filepath.Base(path),
		Size:       len(f.Content),
		TextLength: len(text),
		Text:       text,
		LocalPath:  path,
		UploadedAt: s.now(),
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.assistant.UploadFile(uploadCtx, path, document.MIMETypePDF)
	if err != nil {
		return doc, fmt.Errorf("%w %s: %w", ErrRemoteUpload, f.Name, err)
	}
	doc.Remote = *remote
	return doc, nil
}
