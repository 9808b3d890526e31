package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/auth"
	"bidsia.com/bids-assistant/internal/core"
	"bidsia.com/bids-assistant/internal/document"
	"bidsia.com/bids-assistant/internal/store"
)

const multipartMemory = 8 << 20

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerConfig struct {
	JWTSecret       string
	TokenExpiration time.Duration
	MaxUploadBytes  int64
	PerFileTimeout  time.Duration // upload write deadline budget per file
}

type APIHandler struct {
	accounts *core.AccountService
	sessions *core.SessionManager
	chat     *core.ChatService
	ingest   *core.IngestService
	db       Pinger
	cfg      HandlerConfig
	logger   *zap.Logger
}

func NewAPIHandler(accounts *core.AccountService, sessions *core.SessionManager, chat *core.ChatService,
	ingest *core.IngestService, db Pinger, cfg HandlerConfig, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		accounts: accounts,
		sessions: sessions,
		chat:     chat,
		ingest:   ingest,
		db:       db,
		cfg:      cfg,
		logger:   logger,
	}
}

// SessionAuthMiddleware resolves the Bearer token to a live session.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			respondError(w, http.StatusUnauthorized, "Malformed Authorization header (Expected: Bearer <token>)")
			return
		}

		claims, err := auth.ValidateJWT(h.cfg.JWTSecret, parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				respondError(w, http.StatusUnauthorized, "Token has expired")
			} else {
				respondError(w, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		sess, err := h.sessions.Get(claims.SessionID)
		if err != nil || sess.Username != claims.Username {
			respondError(w, http.StatusUnauthorized, "Session has ended, please log in again")
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// RequireAdmin rejects sessions without the admin role.
func (h *APIHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromContext(r.Context())
		if !ok || !sess.IsAdmin() {
			respondError(w, http.StatusForbidden, "Restricted to administrators")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health: database unreachable", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token      string    `json:"token"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	role, ok, diag := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid credentials", Diagnostic: diagnosticText(diag)})
		return
	}

	config, diag := h.accounts.GetConfig(r.Context())
	sess := h.sessions.Create(req.Username, role, config)

	expiresAt := time.Now().Add(h.cfg.TokenExpiration)
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, sess.ID, sess.Username, sess.Role, h.cfg.TokenExpiration)
	if err != nil {
		h.logger.Error("failed to sign token", zap.String("username", req.Username), zap.Error(err))
		h.sessions.End(context.WithoutCancel(r.Context()), sess.ID)
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:      token,
		Role:       role,
		ExpiresAt:  expiresAt,
		Diagnostic: diagnosticText(diag),
	})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	if err := h.sessions.End(context.WithoutCancel(r.Context()), sess.ID); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		h.logger.Error("logout failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

type MeResponse struct {
	Username          string `json:"username"`
	Role              string `json:"role"`
	State             string `json:"state"`
	Documents         int    `json:"documents"`
	TranscriptEntries int    `json:"transcript_entries"`
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, MeResponse{
		Username:          sess.Username,
		Role:              sess.Role,
		State:             sess.State().String(),
		Documents:         len(sess.Documents()),
		TranscriptEntries: len(sess.Transcript()),
	})
}

type InstructionsRequest struct {
	Text        *string  `json:"text"`
	Temperature *float64 `json:"temperature"`
}

type InstructionsResponse struct {
	Text        string  `json:"text"`
	Temperature float64 `json:"temperature"`
	Saved       bool    `json:"saved"`
	Diagnostic  string  `json:"diagnostic,omitempty"`
}

func (h *APIHandler) GetInstructionsHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	config := sess.Config()
	respondJSON(w, http.StatusOK, InstructionsResponse{Text: config.Text, Temperature: config.Temperature, Saved: true})
}

func (h *APIHandler) SaveInstructionsHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())

	var req InstructionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == nil || req.Temperature == nil {
		respondError(w, http.StatusBadRequest, "Both text and temperature are required")
		return
	}
	if *req.Temperature < 0 || *req.Temperature > 1 {
		respondError(w, http.StatusBadRequest, "Temperature must be between 0.0 and 1.0")
		return
	}

	config := store.Instructions{Text: *req.Text, Temperature: *req.Temperature}
	sess.SetConfig(config)
	diag := h.accounts.SaveConfig(r.Context(), config)

	respondJSON(w, http.StatusOK, InstructionsResponse{
		Text:        config.Text,
		Temperature: config.Temperature,
		Saved:       diag == nil,
		Diagnostic:  diagnosticText(diag),
	})
}

type DocumentsResponse struct {
	Documents []core.Document `json:"documents"`
}

func (h *APIHandler) UploadDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readUploadedFiles(r.MultipartForm.File["files"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}

	// Each file gets its own registration timeout, so the server-wide write
	// timeout is too short for a large batch.
	if h.cfg.PerFileTimeout > 0 {
		deadline := time.Now().Add(time.Duration(len(files)+1) * h.cfg.PerFileTimeout)
		if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("could not extend write deadline", zap.Error(err))
		}
	}

	docs, err := h.ingest.Ingest(r.Context(), sess, files)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrNoFiles):
			status = http.StatusBadRequest
		case errors.Is(err, document.ErrNotPDF):
			status = http.StatusUnsupportedMediaType
		case errors.Is(err, core.ErrUnreadablePDF):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, core.ErrRemoteUpload):
			status = http.StatusBadGateway
		case errors.Is(err, core.ErrSessionNotFound):
			status = http.StatusUnauthorized
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, DocumentsResponse{Documents: docs})
}

func readUploadedFiles(headers []*multipart.FileHeader) ([]core.UploadedFile, error) {
	files := make([]core.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, core.UploadedFile{Name: fh.Filename, Content: content})
	}
	return files, nil
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, DocumentsResponse{Documents: sess.Documents()})
}

type MessagesResponse struct {
	Messages []core.Message `json:"messages"`
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: sess.Transcript()})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	messages, err := h.chat.PostMessage(r.Context(), sess, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTurnInProgress), errors.Is(err, core.ErrNoDocument), errors.Is(err, core.ErrTurnDiscarded):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("assistant timed out", zap.String("session_id", sess.ID), zap.Error(err))
			respondError(w, http.StatusGatewayTimeout, "The assistant took too long to answer")
		default:
			h.logger.Error("assistant call failed", zap.String("session_id", sess.ID), zap.Error(err))
			respondError(w, http.StatusBadGateway, "The assistant failed to answer: "+err.Error())
		}
		return
	}
	if messages == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

func (h *APIHandler) ClearMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	h.chat.ClearMessages(sess)
	w.WriteHeader(http.StatusNoContent)
}
