package provider

import (
	"context"
	"fmt"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/rs/zerolog"
)

// Provider names
const (
	NameGemini = "gemini"
)

// Options carries what a provider needs besides its API settings
type Options struct {
	Logger zerolog.Logger
}

// New creates the completion provider described by cfg.
func New(ctx context.Context, cfg config.GeminiConfig, opts Options) (chat.CompletionProvider, error) {
	p, err := NewGeminiProvider(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", NameGemini, err)
	}
	return p, nil
}
