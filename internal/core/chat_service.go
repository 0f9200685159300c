package core

import (
	"context"
	"errors"
	"fmt"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

// messageHistoryLimit caps how many messages of a chat are loaded at once.
const messageHistoryLimit = 500

var ErrChatNotFound = errors.New("chat not found")

// Responder produces the assistant side of a conversation turn.
type Responder interface {
	Respond(ctx context.Context, text string) Reply
}

type ChatService struct {
	dbStore   store.Store
	assistant Responder
	log       *logger.Logger
}

func NewChatService(db store.Store, assistant Responder, log *logger.Logger) *ChatService {
	return &ChatService{
		dbStore:   db,
		assistant: assistant,
		log:       log.WithComponent("chat_service"),
	}
}

// CreateChat creates the chat identified by id, or a chat with a generated
// id when id is empty. Creating an existing chat returns it unchanged.
func (s *ChatService) CreateChat(ctx context.Context, id string) (*store.Chat, error) {
	chat, err := s.dbStore.CreateChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}
	return chat, nil
}

// EnsureChat creates the chat if it does not exist.
func (s *ChatService) EnsureChat(ctx context.Context, id string) error {
	_, err := s.CreateChat(ctx, id)
	return err
}

// Forward posts text as a user turn and returns the stored reply's content.
func (s *ChatService) Forward(ctx context.Context, chatID, text string) (string, error) {
	reply, err := s.PostMessage(ctx, chatID, text)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func (s *ChatService) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	chat, err := s.dbStore.GetChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// PostMessage stores the user's message, asks the assistant and stores its
// reply. The stored reply is returned.
func (s *ChatService) PostMessage(ctx context.Context, chatID, userContent string) (*store.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	userMsg := store.Message{
		ChatID:  chatID,
		Role:    store.RoleUser,
		Content: userContent,
	}
	if err := s.dbStore.CreateMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply := s.assistant.Respond(ctx, userContent)

	modelMessage := store.Message{
		ChatID:    chatID,
		Role:      store.RoleAssistant,
		Content:   reply.Content,
		Sentiment: reply.Sentiment,
	}
	if err := s.dbStore.CreateMessage(ctx, &modelMessage); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	s.log.Debug().Str("chat_id", chatID).Str("sentiment", reply.Sentiment).Msg("Stored conversation turn")
	return &modelMessage, nil
}

// Messages returns the chat's messages, oldest first.
func (s *ChatService) Messages(ctx context.Context, chatID string) ([]store.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID, messageHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return messages, nil
}

// Subscribe calls fn with the full message list now and after every new
// message in the chat, until ctx ends or the returned function is called.
func (s *ChatService) Subscribe(ctx context.Context, chatID string, fn func([]store.Message)) (unsubscribe func()) {
	return store.Watch(ctx, s.dbStore.Changes(), store.MessagesTopic(chatID), func(ctx context.Context) {
		messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID, messageHistoryLimit)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Str("chat_id", chatID).Msg("Message feed refresh failed")
			}
			return
		}
		fn(messages)
	})
}
