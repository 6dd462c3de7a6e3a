// Package session holds the in-memory conversation of one chat runtime instance.
//
// Invariants:
// - Messages are immutable once appended and kept in conversational order.
// - An assistant message always answers the user message right before it.
// - A failed exchange may leave one unanswered user message at the tail.
// - Nothing is persisted; a Session lives exactly as long as its owner.
//
// Usage:
//
//	s := session.New()
//	_, _ = s.AppendUser("hello")
//	for msg := range s.History() {
//		fmt.Println(msg.Role, msg.Text)
//	}
package session
