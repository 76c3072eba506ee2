package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RichardoC/docchat/internal/db"
	"github.com/RichardoC/docchat/internal/extract"
	"github.com/RichardoC/docchat/internal/metrics"
	"github.com/RichardoC/docchat/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultTitle   = "New Conversation"
	titleMaxRunes  = 30
	documentSource = "PDF"
)

type Store interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Attachment struct {
	Name string
	Data []byte
}

type TurnInput struct {
	ConversationID string
	OwnerID        string
	Content        string
	Attachment     *Attachment
}

// Service runs one user turn: it resolves the conversation, records the
// user message, folds in document text, asks the model and records the reply.
type Service struct {
	store   Store
	gen     Generator
	extract extract.Func
	logger  *zap.Logger
}

func NewService(store Store, gen Generator, extractFn extract.Func, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("chat: store must not be nil")
	}
	if gen == nil {
		return nil, errors.New("chat: generator must not be nil")
	}
	if extractFn == nil {
		return nil, errors.New("chat: extractor must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gen: gen, extract: extractFn, logger: logger}, nil
}

// SubmitTurn processes a turn. The user message is committed before
// generation starts and stays committed if anything after it fails.
func (s *Service) SubmitTurn(ctx context.Context, in TurnInput) (*models.Turn, error) {
	turn, err := s.submitTurn(ctx, in)
	outcome := "success"
	var chatErr *Error
	if errors.As(err, &chatErr) {
		outcome = strings.ToLower(string(chatErr.Code))
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	return turn, err
}

func (s *Service) submitTurn(ctx context.Context, in TurnInput) (*models.Turn, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, newError(ErrorInvalidInput, "empty_content", nil)
	}
	convID := strings.TrimSpace(in.ConversationID)
	ownerID := strings.TrimSpace(in.OwnerID)
	if convID == "" && ownerID == "" {
		return nil, newError(ErrorInvalidInput, "missing_owner", nil)
	}
	if in.Attachment != nil && len(in.Attachment.Data) == 0 {
		return nil, newError(ErrorInvalidInput, "empty_attachment", nil)
	}

	log := s.logger.With(zap.String("owner_id", ownerID))

	if convID == "" {
		conv, err := s.store.CreateConversation(ctx, ownerID, Title(in.Content))
		if err != nil {
			log.Error("Failed to create conversation", zap.Error(err))
			return nil, newError(ErrorInternal, "create_conversation", err)
		}
		convID = conv.ID
		log.Debug("Created conversation", zap.String("conversation_id", convID))
	}
	log = log.With(zap.String("conversation_id", convID))

	userContent := in.Content
	if in.Attachment != nil {
		userContent += fmt.Sprintf(" [File: %s]", in.Attachment.Name)
	}
	userMsg, err := s.store.AppendMessage(ctx, convID, models.RoleUser, userContent)
	if err != nil {
		if errors.Is(err, db.ErrConversationNotFound) {
			log.Warn("Conversation not found for turn", zap.Error(err))
			return nil, newError(ErrorNotFound, "conversation_not_found", err)
		}
		log.Error("Failed to save user message", zap.Error(err))
		return nil, newError(ErrorInternal, "record_user_turn", err)
	}

	prompt := in.Content
	if in.Attachment != nil {
		text, err := s.extract(ctx, in.Attachment.Data)
		if err != nil {
			log.Error("Failed to extract document text",
				zap.String("file", in.Attachment.Name),
				zap.Int("bytes", len(in.Attachment.Data)),
				zap.Error(err))
			return nil, newError(ErrorExtractionFailed, "extraction_error", err)
		}
		prompt = ComposePrompt(documentSource, text, in.Content)
	}

	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error("Failed to generate reply", zap.Error(err))
		return nil, newError(ErrorUpstream, "generation_failed", err)
	}

	// The reply has already been paid for; keep it even if the caller left.
	modelMsg, err := s.store.AppendMessage(context.WithoutCancel(ctx), convID, models.RoleModel, reply)
	if err != nil {
		log.Error("Failed to save model message", zap.Error(err))
		return nil, newError(ErrorInternal, "record_model_turn", err)
	}

	return &models.Turn{
		ConversationID: convID,
		UserMessage:    userMsg,
		ModelMessage:   modelMsg,
	}, nil
}

// ComposePrompt prepends extracted document text to the user's question.
func ComposePrompt(source, docText, question string) string {
	return fmt.Sprintf("Context from %s:\n%s\n\nUser Question:\n%s", source, docText, question)
}

// Title derives a display title from the first characters of a message.
func Title(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= titleMaxRunes {
		return content
	}
	return string(runes[:titleMaxRunes]) + "..."
}
