package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// Generation parameters. These match the defaults the web client shipped
// with and are deliberately not configurable.
const (
	maxOutputTokens = 8192
	temperature     = float32(0.9)
	topP            = float32(1)
	topK            = int32(1)
)

// GeminiGenerator talks to the Gemini API through the eino chat model
// abstraction. It keeps a continuation of the active conversation so
// successive GenerateText calls share context.
type GeminiGenerator struct {
	model einoModel.BaseChatModel

	mu           sync.Mutex
	continuation []*schema.Message

	logger *slog.Logger
}

// NewGeminiGenerator builds a generator for the given API key and model name.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	maxTokens := maxOutputTokens
	temp := temperature
	tp := topP
	tk := topK
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      genaiClient,
		Model:       modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		TopP:        &tp,
		TopK:        &tk,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini model: %w", err)
	}

	return &GeminiGenerator{
		model:  chatModel,
		logger: utils.GetLogger(),
	}, nil
}

// GenerateText sends prompt as the next user turn. When no continuation
// exists yet, history seeds it first so a conversation restored from storage
// picks up where it left off. On error the pending user turn is discarded so
// a retry does not duplicate it.
func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string, history []Turn) (string, error) {
	g.mu.Lock()
	if g.continuation == nil {
		g.continuation = turnsToMessages(history)
	}
	g.continuation = append(g.continuation, schema.UserMessage(prompt))
	messages := make([]*schema.Message, len(g.continuation))
	copy(messages, g.continuation)
	g.mu.Unlock()

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		g.mu.Lock()
		if n := len(g.continuation); n > 0 && g.continuation[n-1].Content == prompt {
			g.continuation = g.continuation[:n-1]
		}
		g.mu.Unlock()
		return "", fmt.Errorf("generate reply: %w", err)
	}

	g.mu.Lock()
	g.continuation = append(g.continuation, schema.AssistantMessage(resp.Content, nil))
	g.mu.Unlock()

	return resp.Content, nil
}

// GenerateFromImage sends a standalone multimodal prompt. The exchange is
// not added to the continuation; image questions do not steer the ongoing
// text conversation.
func (g *GeminiGenerator) GenerateFromImage(ctx context.Context, prompt string, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("generate from image: empty image")
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))

	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: prompt},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      dataURI,
					MIMEType: mime,
				},
			},
		},
	}

	resp, err := g.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return "", fmt.Errorf("generate image reply: %w", err)
	}
	return resp.Content, nil
}

// ResetContext drops the continuation. The next GenerateText starts a new
// conversation, optionally reseeded from stored history.
func (g *GeminiGenerator) ResetContext() {
	g.mu.Lock()
	g.continuation = nil
	g.mu.Unlock()
	g.logger.Debug("ai context reset")
}

func turnsToMessages(turns []Turn) []*schema.Message {
	if len(turns) == 0 {
		return []*schema.Message{}
	}
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case "model":
			out = append(out, schema.AssistantMessage(t.Content, nil))
		default:
			out = append(out, schema.UserMessage(t.Content))
		}
	}
	return out
}
