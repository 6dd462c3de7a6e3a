package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/internal/tracing"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/session"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiProvider implements chat.CompletionProvider for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger zerolog.Logger
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, cfg config.GeminiConfig, opts Options) (*GeminiProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &config.ConfigurationError{
			Field:  "gemini.api_key",
			Reason: fmt.Sprintf("no API key configured (set %s)", config.APIKeyEnv),
		}
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultConfig().Gemini.Model
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		config: generateConfig(cfg),
		logger: opts.Logger.With().Str("component", "provider").Str("model", model).Logger(),
	}, nil
}

func generateConfig(cfg config.GeminiConfig) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}
	if cfg.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	return gc
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return NameGemini
}

// Model returns the model the provider talks to
func (p *GeminiProvider) Model() string {
	return p.model
}

// SendMessage sends the conversation plus text to Gemini and returns the reply text.
func (p *GeminiProvider) SendMessage(ctx context.Context, history []session.Message, text string) (string, error) {
	contents := toContents(history, text)

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Debug().Int("contents", len(contents)).Msg("Calling GenerateContent")

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.config)
	if err != nil {
		return "", classifyError(ctx, err)
	}

	reply, err := extractText(resp)
	if err != nil {
		return "", err
	}

	logger.Debug().
		Dur("duration", time.Since(start)).
		Int("reply_length", len(reply)).
		Msg("GenerateContent completed")

	return reply, nil
}

// toContents converts the session history into Gemini contents, mapping assistant to model.
func toContents(history []session.Message, text string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, genai.NewContentFromText(msg.Text, toGeminiRole(msg.Role)))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	return contents
}

func toGeminiRole(role session.Role) genai.Role {
	if role == session.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// fromGeminiRole maps a Gemini content role back to a session role.
func fromGeminiRole(role string) session.Role {
	if role == string(genai.RoleModel) {
		return session.RoleAssistant
	}
	return session.RoleUser
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", malformed(errors.New("empty response"))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", malformed(fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return "", malformed(errors.New("no candidates returned"))
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		if candidate != nil && candidate.FinishReason != "" {
			return "", malformed(fmt.Errorf("candidate has no content (finish reason %s)", candidate.FinishReason))
		}
		return "", malformed(errors.New("candidate has no content"))
	}
	if role := candidate.Content.Role; role != "" && fromGeminiRole(role) != session.RoleAssistant {
		return "", malformed(fmt.Errorf("unexpected content role %q", role))
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", malformed(errors.New("candidate has no text"))
	}
	return sb.String(), nil
}

func malformed(err error) *chat.ProviderError {
	return chat.NewProviderError(NameGemini, chat.KindMalformed, err)
}
