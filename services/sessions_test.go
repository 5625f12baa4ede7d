package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"
)

func testSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	ss, err := NewSessionStore(&config.Config{ConversationsDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	return ss
}

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	ss := testSessionStore(t)
	ctx := context.Background()

	conv := &Conversation{
		SessionID: "sess-1",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "what is entropy"},
			{Role: "assistant", Content: "a measure of disorder"},
		},
	}
	contextText := strings.Repeat("Document Context: entropy increases in isolated systems. ", 20)
	if err := ss.Save(ctx, conv, contextText); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := ss.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages", len(loaded.Messages))
	}
	decoded, err := loaded.DecodedContext()
	if err != nil {
		t.Fatalf("DecodedContext: %v", err)
	}
	if decoded != contextText {
		t.Fatal("context snapshot did not round trip")
	}
}

func TestSessionRejectsBadID(t *testing.T) {
	ss := testSessionStore(t)
	conv := &Conversation{SessionID: "../escape"}
	if err := ss.Save(context.Background(), conv, ""); err == nil {
		t.Fatal("path-traversal session id must be rejected")
	}
	if _, err := ss.Load(context.Background(), "has space"); err == nil {
		t.Fatal("invalid session id must be rejected on load")
	}
}

func TestSessionListNewestFirst(t *testing.T) {
	ss := testSessionStore(t)
	ctx := context.Background()

	ss.Save(ctx, &Conversation{SessionID: "older"}, "")
	time.Sleep(10 * time.Millisecond)
	ss.Save(ctx, &Conversation{SessionID: "newer"}, "")

	list, err := ss.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d sessions", len(list))
	}
	if list[0].SessionID != "newer" {
		t.Fatalf("first session = %s, want newer", list[0].SessionID)
	}
}

func TestSessionDelete(t *testing.T) {
	ss := testSessionStore(t)
	ctx := context.Background()

	ss.Save(ctx, &Conversation{SessionID: "gone"}, "")
	if err := ss.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ss.Load(ctx, "gone"); err == nil {
		t.Fatal("deleted session still loads")
	}
	if err := ss.Delete(ctx, "gone"); err == nil {
		t.Fatal("double delete should report not found")
	}
}

func TestSweepOlderThan(t *testing.T) {
	ss := testSessionStore(t)
	ctx := context.Background()

	ss.Save(ctx, &Conversation{SessionID: "stale"}, "")
	ss.Save(ctx, &Conversation{SessionID: "fresh"}, "")

	// cutoff in the future removes everything saved so far
	removed, err := ss.SweepOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("SweepOlderThan: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	list, _ := ss.List(ctx)
	if len(list) != 0 {
		t.Fatalf("%d sessions left after sweep", len(list))
	}
}
