// Package provider implements completion providers for the chat manager.
//
// The only backend is Google Gemini, reached through google.golang.org/genai.
// Roles are mapped at this boundary: the session's "assistant" is Gemini's "model".
package provider
