package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/RichardoC/docchat/internal/chat"
	"github.com/RichardoC/docchat/internal/db"
	"github.com/RichardoC/docchat/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const fileField = "pdf"

type Store interface {
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, in chat.TurnInput) (*models.Turn, error)
}

type Handler struct {
	db        Store
	chat      TurnSubmitter
	logger    *zap.Logger
	maxUpload int64
}

func NewHandler(database Store, chatService TurnSubmitter, logger *zap.Logger, maxUpload int64) *Handler {
	return &Handler{
		db:        database,
		chat:      chatService,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Routes returns the full HTTP surface wrapped in the CORS and logging
// middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Health)
	mux.HandleFunc("GET /api/conversations", h.GetConversations)
	mux.HandleFunc("POST /api/conversations", h.CreateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.GetMessages)
	mux.HandleFunc("POST /api/message", h.HandleMessage)
	mux.Handle("GET /metrics", promhttp.Handler())
	return cors(h.logRequests(mux))
}

type CreateConversationRequest struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	OwnerID        string `json:"owner_id"`
	Content        string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "API is running successfully!")
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameter 'owner_id' is required")
		return
	}

	conversations, err := h.db.ListConversations(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("Failed to get conversations",
			zap.Error(err),
			zap.String("owner_id", ownerID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("owner_id", ownerID))
	h.writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		h.writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = chat.DefaultTitle
	}

	conversation, err := h.db.CreateConversation(r.Context(), req.OwnerID, title)
	if err != nil {
		h.logger.Error("Failed to create conversation",
			zap.Error(err),
			zap.String("owner_id", req.OwnerID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusCreated, conversation)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	messages, err := h.db.ListMessages(r.Context(), convID)
	if err != nil {
		h.logger.Error("Failed to get messages",
			zap.Error(err),
			zap.String("conversation_id", convID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	if err := h.db.DeleteConversation(r.Context(), convID); err != nil {
		if errors.Is(err, db.ErrConversationNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("Failed to delete conversation",
			zap.Error(err),
			zap.String("conversation_id", convID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMessage accepts a turn either as multipart form data, optionally with
// a PDF in the "pdf" part, or as a JSON body for text-only turns.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	in, reqErr := h.parseTurn(w, r)
	if reqErr != nil {
		h.logger.Debug("Rejected message request",
			zap.Int("status", reqErr.status),
			zap.String("reason", reqErr.msg))
		h.writeError(w, reqErr.status, reqErr.msg)
		return
	}

	turn, err := h.chat.SubmitTurn(r.Context(), in)
	if err != nil {
		var chatErr *chat.Error
		if errors.As(err, &chatErr) {
			h.writeError(w, statusFor(chatErr.Code), chatErr.Message())
			return
		}
		h.logger.Error("Failed to process message", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, turn)
}

type requestError struct {
	status int
	msg    string
}

func (h *Handler) parseTurn(w http.ResponseWriter, r *http.Request) (chat.TurnInput, *requestError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return chat.TurnInput{}, &requestError{bodyErrorStatus(err), "Invalid request body"}
		}
		return chat.TurnInput{
			ConversationID: req.ConversationID,
			OwnerID:        req.OwnerID,
			Content:        req.Content,
		}, nil
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return chat.TurnInput{}, &requestError{bodyErrorStatus(err), "Invalid multipart form"}
	}
	in := chat.TurnInput{
		ConversationID: r.FormValue("conversation_id"),
		OwnerID:        r.FormValue("owner_id"),
		Content:        r.FormValue("content"),
	}

	file, header, err := r.FormFile(fileField)
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return chat.TurnInput{}, &requestError{http.StatusBadRequest, "Invalid file upload"}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return chat.TurnInput{}, &requestError{http.StatusBadRequest, "Failed to read uploaded file"}
	}
	in.Attachment = &chat.Attachment{Name: header.Filename, Data: data}
	return in, nil
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func statusFor(code chat.ErrorCode) int {
	switch code {
	case chat.ErrorInvalidInput:
		return http.StatusBadRequest
	case chat.ErrorNotFound:
		return http.StatusNotFound
	case chat.ErrorExtractionFailed:
		return http.StatusUnprocessableEntity
	case chat.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
