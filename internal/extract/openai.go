package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/snarg/media-gate/internal/media"
)

const imagePrompt = "Generate the prompt for image and return the generated text in markdown."

// OpenAIExtractor talks to an OpenAI-compatible API directly instead of the
// gateway backend: Whisper transcription for audio, vision chat completion
// for images. Video is not supported by this provider.
type OpenAIExtractor struct {
	client *openai.Client
	model  string // chat model for image extraction
}

// NewOpenAIExtractor creates an extractor backed by an OpenAI-compatible API.
// baseURL overrides the API endpoint when non-empty.
func NewOpenAIExtractor(apiKey, baseURL, model string) *OpenAIExtractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name returns the provider name.
func (e *OpenAIExtractor) Name() string { return "openai" }

func (e *OpenAIExtractor) Extract(ctx context.Context, kind media.Kind, filename string, data []byte) (string, error) {
	switch kind {
	case media.Audio:
		return e.transcribe(ctx, filename, data)
	case media.Image:
		return e.describeImage(ctx, filename, data)
	case media.Video:
		return "", fmt.Errorf("openai provider does not support video extraction")
	}
	return "", fmt.Errorf("unsupported media kind %q", kind)
}

func (e *OpenAIExtractor) transcribe(ctx context.Context, filename string, data []byte) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (e *OpenAIExtractor) describeImage(ctx context.Context, filename string, data []byte) (string, error) {
	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "image/png"
	}
	dataURL := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: imagePrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("image completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("image completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
