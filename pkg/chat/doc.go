// Package chat manages the chat session of one runtime instance and its message round trip.
//
// Invariants:
// - A Manager owns at most one Session, created lazily and dropped on Close.
// - Empty or whitespace-only input never reaches the provider and never changes history.
// - A successful exchange appends exactly two messages: user, then assistant.
// - A failed exchange appends only the user message and returns a *ProviderError.
// - No retries; the provider call is bounded by the configured timeout.
//
// Usage:
//
//	mgr, _ := chat.NewManager(chat.Config{Provider: gemini, Timeout: time.Minute})
//	s := mgr.GetOrCreateSession()
//	reply, err := mgr.SendUserMessage(ctx, s, "Hello")
//	for msg := range mgr.History(s) {
//		render(msg.Role, msg.Text)
//	}
package chat
