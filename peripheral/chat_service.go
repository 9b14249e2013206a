package peripheral

import (
	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
)

// DefaultChatMessage is what the chat characteristic reads before anyone
// has written to it.
const DefaultChatMessage = "hello"

// ChatOptions tunes a ChatService.
type ChatOptions struct {
	InitialMessage string
	// EchoToWriter also notifies the central that wrote the message.
	EchoToWriter bool
	// MaxLength caps a message in bytes; 0 means unlimited.
	MaxLength int
}

// DefaultChatOptions echoes every message to all subscribers, the writer
// included.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		InitialMessage: DefaultChatMessage,
		EchoToWriter:   true,
		MaxLength:      512,
	}
}

// ChatService exposes a single text characteristic. Whatever a central
// writes becomes the current message and is pushed to subscribers.
type ChatService struct {
	serviceCore
	opts ChatOptions
}

// ChatServiceDefinition describes the chat service for the given options.
func ChatServiceDefinition(opts ChatOptions) ServiceDefinition {
	return ServiceDefinition{
		ID:   ChatServiceUUID,
		Name: "chat",
		Characteristics: []CharacteristicSpec{{
			ID:          ChatCharacteristicUUID,
			Name:        "chat-message",
			Properties:  PropRead | PropNotify | PropWriteWithoutResponse,
			Permissions: PermRead | PermWrite,
			Format:      TextFormat{MaxLen: opts.MaxLength},
			Default:     []byte(opts.InitialMessage),
		}},
	}
}

// NewChatService creates the chat service. Notifications go out through t
// and accepted messages are emitted to e.
func NewChatService(t Transport, e events.Emitter, opts ChatOptions) *ChatService {
	s := &ChatService{opts: opts}
	s.init(ChatServiceDefinition(opts), t, e)
	logger.Debug(s.prefix, "chat service ready, initial message %q, echo to writer %v", opts.InitialMessage, opts.EchoToWriter)
	return s
}

// Message returns the current message.
func (s *ChatService) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.store.Read(ChatCharacteristicUUID))
}

func (s *ChatService) OnCentralDisconnected(central CentralID, remaining int) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.store.UnsubscribeAll(central)
	if len(removed) > 0 {
		logger.Debug(s.prefix, "dropped %d subscription(s) of %s", len(removed), central)
	}
	return removed
}

func (s *ChatService) OnCharacteristicRead(central CentralID, char uuid.UUID) ReadResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.readLocked(char)
	logger.Trace(s.prefix, "read by %s: %s %q", central, resp.Status, resp.Value)
	return resp
}

func (s *ChatService) OnCharacteristicWrite(central CentralID, char uuid.UUID, value []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Write(char, value); err != nil {
		status := StatusForError(err)
		logger.Warn(s.prefix, "rejected write from %s: %v (%s)", central, err, status)
		return status
	}
	logger.Info(s.prefix, "message from %s: %q", central, value)

	var exclude []CentralID
	if !s.opts.EchoToWriter {
		exclude = append(exclude, central)
	}
	s.notifyLocked(char, value, exclude...)
	s.events.Emit(events.KindChatMessage, string(value))
	return StatusSuccess
}

func (s *ChatService) OnCharacteristicWriteCompleted(central CentralID, char uuid.UUID, value []byte) {
	logger.Debug(s.prefix, "write of %d bytes to %s by %s completed", len(value), char, central)
}

func (s *ChatService) OnNotifyingEnabled(central CentralID, char uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Subscribe(char, central) {
		logger.Debug(s.prefix, "%s is the first subscriber of %s", central, char)
	}
}

func (s *ChatService) OnNotifyingDisabled(central CentralID, char uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Unsubscribe(char, central) {
		logger.Debug(s.prefix, "%s was the last subscriber of %s", central, char)
	}
}

func (s *ChatService) Close() {}
