package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName = "gemini-1.5-flash"
	responseMIMEType     = "text/plain"
	filePollInterval     = 2 * time.Second

	emptyResponseText = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

// RemoteFile is the opaque reference the AI service hands back for an uploaded file.
type RemoteFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// AskRequest carries everything one chat turn sends to the model.
type AskRequest struct {
	Instructions string
	Temperature  float64
	Question     string
	File         RemoteFile
}

// Assistant is the generative-AI boundary: file registration and chat completion.
type Assistant interface {
	UploadFile(ctx context.Context, path, mimeType string) (*RemoteFile, error)
	DeleteFile(ctx context.Context, name string) error
	Ask(ctx context.Context, req AskRequest) (string, error)
}

type LLMService struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultChatModelName
	}

	return &LLMService{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing GenAI client", zap.Error(err))
		} else {
			s.logger.Info("GenAI client closed")
		}
	}
}

// UploadFile registers a local file with the service and waits until it can be
// referenced from chat calls.
func (s *LLMService) UploadFile(ctx context.Context, path, mimeType string) (*RemoteFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	file, err := s.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: filepath.Base(path),
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini file upload failed: %w", err)
	}

	name := file.Name
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for file %s: %w", name, ctx.Err())
		case <-time.After(filePollInterval):
		}
		file, err = s.client.GetFile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("gemini get file %s failed: %w", name, err)
		}
	}
	if file.State == genai.FileStateFailed {
		return nil, fmt.Errorf("gemini could not process file %s", file.Name)
	}

	s.logger.Debug("file registered", zap.String("name", file.Name), zap.String("uri", file.URI))
	return &RemoteFile{Name: file.Name, URI: file.URI, MIMEType: file.MIMEType}, nil
}

func (s *LLMService) DeleteFile(ctx context.Context, name string) error {
	if err := s.client.DeleteFile(ctx, name); err != nil {
		return fmt.Errorf("gemini delete file %s failed: %w", name, err)
	}
	return nil
}

// Ask starts a fresh chat seeded with the question and the document reference,
// then sends the question and returns the reply text.
func (s *LLMService) Ask(ctx context.Context, req AskRequest) (string, error) {
	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(float32(req.Temperature))
	model.ResponseMIMEType = responseMIMEType
	if req.Instructions != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.Instructions)},
		}
	}

	chatSession := model.StartChat()
	chatSession.History = buildHistory(req)

	resp, err := chatSession.SendMessage(ctx, genai.Text(req.Question))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		s.logger.Warn("gemini returned no usable text", zap.Error(err))
		return emptyResponseText, nil
	}
	return text, nil
}

func buildHistory(req AskRequest) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []genai.Part{genai.Text(req.Question)}},
		{Role: "user", Parts: []genai.Part{genai.FileData{MIMEType: req.File.MIMEType, URI: req.File.URI}}},
	}
}

var errNoCandidates = errors.New("response had no candidates")

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errNoCandidates
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", errors.New("response contained no text parts")
	}
	return responseText.String(), nil
}
