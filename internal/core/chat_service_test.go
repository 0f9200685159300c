package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

func newTestChatService(t *testing.T, p Provider) (*ChatService, store.Store) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	assistant := NewAssistant(p, testLLMConfig, db, logger.Nop())
	return NewChatService(db, assistant, logger.Nop()), db
}

func TestChatService_PostMessageStoresBothTurns(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeProvider{content: "Give it bright, indirect light."})
	ctx := context.Background()

	chat, err := svc.CreateChat(ctx, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	reply, err := svc.PostMessage(ctx, chat.ID, "Where should my fern live?")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Role != store.RoleAssistant || reply.Sentiment != "positive" {
		t.Errorf("unexpected reply %+v", reply)
	}

	messages, err := svc.Messages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[0].Content != "Where should my fern live?" {
		t.Errorf("first message = %+v", messages[0])
	}
	if messages[1].Content != "Give it bright, indirect light." {
		t.Errorf("second message = %+v", messages[1])
	}
}

func TestChatService_UpstreamFailureIsStored(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeProvider{err: errors.New("timeout")})
	ctx := context.Background()
	if _, err := svc.CreateChat(ctx, "chat-x"); err != nil {
		t.Fatal(err)
	}

	reply, err := svc.PostMessage(ctx, "chat-x", "hi")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Content != errorReply || reply.Sentiment != "negative" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestChatService_UnknownChat(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeProvider{content: "x"})
	ctx := context.Background()

	if _, err := svc.PostMessage(ctx, "missing", "hello"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("PostMessage err = %v, want ErrChatNotFound", err)
	}
	if _, err := svc.Messages(ctx, "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("Messages err = %v, want ErrChatNotFound", err)
	}
}

func TestChatService_Subscribe(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeProvider{content: "Sure."})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := svc.CreateChat(ctx, "live"); err != nil {
		t.Fatal(err)
	}

	updates := make(chan []store.Message, 8)
	stop := svc.Subscribe(ctx, "live", func(m []store.Message) { updates <- m })
	defer stop()

	waitFor := func(n int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case m := <-updates:
				if len(m) == n {
					return
				}
			case <-deadline:
				t.Fatalf("never saw %d messages", n)
			}
		}
	}

	waitFor(0)
	if _, err := svc.PostMessage(ctx, "live", "water the fern"); err != nil {
		t.Fatal(err)
	}
	waitFor(2)
}
