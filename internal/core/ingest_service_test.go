package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/document"
	"bidsia.com/bids-assistant/internal/store"
)

func newTestIngest(fa *fakeAssistant) *IngestService {
	return NewIngestService(fa, time.Second, zap.NewNop(), WithTextExtractor(func(content []byte) (string, error) {
		body := strings.TrimPrefix(string(content), "%PDF-1.4\n")
		if strings.HasPrefix(body, "corrupt") {
			return "", errors.New("malformed xref")
		}
		return body, nil
	}))
}

func pdfFile(name, body string) UploadedFile {
	return UploadedFile{Name: name, Content: []byte("%PDF-1.4\n" + body)}
}

func TestIngest_TwoDocumentsOnlyFirstUsed(t *testing.T) {
	fa := newFakeAssistant()
	ingest := newTestIngest(fa)
	chat := NewChatService(fa, time.Second, zap.NewNop())
	sess := sessionWithDocs(t)

	docs, err := ingest.Ingest(context.Background(), sess, []UploadedFile{
		pdfFile("A.pdf", "Edital A"),
		pdfFile("B.pdf", "Edital B"),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "A.pdf", docs[0].Name)
	assert.Equal(t, "Edital A", docs[0].Text)
	assert.Equal(t, len("Edital A"), docs[0].TextLength)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, fa.uploads)
	for _, d := range docs {
		_, statErr := os.Stat(d.LocalPath)
		assert.NoError(t, statErr)
	}

	_, err = chat.PostMessage(context.Background(), sess, "Qual o objeto?")
	require.NoError(t, err)
	assert.Equal(t, docs[0].Remote.URI, fa.asks[0].File.URI)
	assert.NotEqual(t, docs[1].Remote.URI, fa.asks[0].File.URI)
}

func TestIngest_EmptyBatch(t *testing.T) {
	ingest := newTestIngest(newFakeAssistant())
	_, err := ingest.Ingest(context.Background(), sessionWithDocs(t), nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestIngest_NotPDFAbortsBatch(t *testing.T) {
	fa := newFakeAssistant()
	ingest := newTestIngest(fa)
	sess := sessionWithDocs(t)

	_, err := ingest.Ingest(context.Background(), sess, []UploadedFile{
		pdfFile("A.pdf", "Edital A"),
		{Name: "notes.txt", Content: []byte("hello")},
	})
	require.ErrorIs(t, err, document.ErrNotPDF)
	assert.Empty(t, sess.Documents())
	assert.Equal(t, []string{"files/1-A.pdf"}, fa.deletedNames())
}

func TestIngest_UnreadablePDFAbortsBatchAndKeepsPrevious(t *testing.T) {
	fa := newFakeAssistant()
	ingest := newTestIngest(fa)
	sess := sessionWithDocs(t)

	first, err := ingest.Ingest(context.Background(), sess, []UploadedFile{pdfFile("old.pdf", "antigo")})
	require.NoError(t, err)

	_, err = ingest.Ingest(context.Background(), sess, []UploadedFile{
		pdfFile("A.pdf", "Edital A"),
		pdfFile("B.pdf", "corrupt"),
	})
	require.ErrorIs(t, err, ErrUnreadablePDF)

	docs := sess.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, first[0].Remote.URI, docs[0].Remote.URI)
	assert.Equal(t, []string{"files/2-A.pdf"}, fa.deletedNames())

	_, statErr := os.Stat(first[0].LocalPath)
	assert.NoError(t, statErr)
}

func TestIngest_RemoteFailureAbortsBatch(t *testing.T) {
	fa := newFakeAssistant()
	fa.uploadErr["B.pdf"] = errors.New("googleapi: Error 500")
	ingest := newTestIngest(fa)
	sess := sessionWithDocs(t)

	_, err := ingest.Ingest(context.Background(), sess, []UploadedFile{
		pdfFile("A.pdf", "Edital A"),
		pdfFile("B.pdf", "Edital B"),
	})
	require.ErrorIs(t, err, ErrRemoteUpload)
	assert.Empty(t, sess.Documents())
	assert.Equal(t, []string{"files/1-A.pdf"}, fa.deletedNames())
}

func TestIngest_NewBatchReplacesPrevious(t *testing.T) {
	fa := newFakeAssistant()
	ingest := newTestIngest(fa)
	sess := sessionWithDocs(t)

	first, err := ingest.Ingest(context.Background(), sess, []UploadedFile{pdfFile("old.pdf", "antigo")})
	require.NoError(t, err)
	second, err := ingest.Ingest(context.Background(), sess, []UploadedFile{pdfFile("new.pdf", "novo")})
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, "new.pdf", second[0].Name)
	assert.Equal(t, []string{first[0].Remote.Name}, fa.deletedNames())

	_, statErr := os.Stat(first[0].LocalPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngest_SessionEndedDuringUploadReleasesBatch(t *testing.T) {
	fa := newFakeAssistant()
	m := NewSessionManager(fa, t.TempDir(), time.Hour, zap.NewNop())
	ingest := newTestIngest(fa)
	sess := m.Create("bruno", store.RoleUser, store.Instructions{Temperature: 0.7})

	require.NoError(t, m.End(context.Background(), sess.ID))

	_, err := ingest.Ingest(context.Background(), sess, []UploadedFile{pdfFile("A.pdf", "Edital A")})
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, sess.Documents())
	assert.Equal(t, []string{"files/1-A.pdf"}, fa.deletedNames())

	_, statErr := os.Stat(sess.uploadDir)
	assert.True(t, os.IsNotExist(statErr))
}
