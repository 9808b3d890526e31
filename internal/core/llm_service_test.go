package core

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHistory(t *testing.T) {
	history := buildHistory(AskRequest{
		Question: "Qual o prazo de entrega?",
		File:     RemoteFile{Name: "files/abc", URI: "https://example/files/abc", MIMEType: "application/pdf"},
	})

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Qual o prazo de entrega?")}, history[0].Parts)
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, []genai.Part{genai.FileData{MIMEType: "application/pdf", URI: "https://example/files/abc"}}, history[1].Parts)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("O prazo "), genai.Blob{MIMEType: "image/png"}, genai.Text("é 10 dias.")}},
		}},
	}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "O prazo é 10 dias.", text)
}

func TestResponseText_Empty(t *testing.T) {
	_, err := responseText(nil)
	assert.ErrorIs(t, err, errNoCandidates)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, errNoCandidates)

	_, err = responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}}}},
	})
	assert.Error(t, err)
}
