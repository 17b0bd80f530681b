package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"userprofile/internal/events"
	"userprofile/internal/users/models"
	"userprofile/internal/users/service"
	"userprofile/pkg/platform/httputil"
	"userprofile/pkg/platform/middleware/identity"
	"userprofile/pkg/platform/sentinel"
)

// Authorizer decides whether a caller may perform an operation on a path.
type Authorizer interface {
	IsAuthorized(ctx context.Context, requesterID string, roles []string, resourcePath, operation string) bool
}

// UserService is the user read and mutation surface.
type UserService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, req service.CreateRequest) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, changes models.ProfileChanges) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserHandler serves the /users endpoints. Every call is checked with the
// authorization service first; a denied or failed check answers 403.
type UserHandler struct {
	users  UserService
	authz  Authorizer
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserService, authz Authorizer, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, authz: authz, logger: logger}
}

// Register mounts the user routes.
func (h *UserHandler) Register(r chi.Router) {
	r.Get("/users", h.authorized(events.OperationRead, h.handleList))
	r.Post("/users", h.authorized(events.OperationWrite, h.handleCreate))
	r.Get("/users/auth0/{externalID}", h.authorized(events.OperationRead, h.handleGetByExternalID))
	r.Get("/users/{id}", h.authorized(events.OperationRead, h.handleGet))
	r.Patch("/users/{id}", h.authorized(events.OperationWrite, h.handleUpdate))
	r.Delete("/users/{id}", h.authorized(events.OperationDelete, h.handleDelete))
}

type userResponse struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"auth0_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	PictureURL  string    `json:"picture_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Address     string    `json:"address,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		ExternalID:  u.ExternalID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		DisplayName: u.DisplayName,
		PictureURL:  u.PictureURL,
		Bio:         u.Bio,
		Address:     u.Address,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type updateRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url"`
	Bio         string `json:"bio"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

func (h *UserHandler) authorized(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !h.authz.IsAuthorized(ctx, identity.GetUserID(ctx), identity.GetRoles(ctx), r.URL.Path, operation) {
			h.logger.InfoContext(ctx, "request not authorized",
				"path", r.URL.Path,
				"operation", operation,
				"user_id", identity.GetUserID(ctx),
			)
			httputil.WriteForbidden(w)
			return
		}
		next(w, r)
	}
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "list users", err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidInput))
		return
	}
	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		h.writeError(r.Context(), w, "create user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(user))
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "get user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleGetByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID, err := url.PathUnescape(chi.URLParam(r, "externalID"))
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: invalid auth0 id", sentinel.ErrInvalidInput))
		return
	}
	user, err := h.users.GetByExternalID(r.Context(), externalID)
	if err != nil {
		h.writeError(r.Context(), w, "get user by auth0 id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: invalid request body", sentinel.ErrInvalidInput))
		return
	}
	user, err := h.users.Update(r.Context(), id, models.ProfileChanges{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PictureURL:  req.PictureURL,
		Bio:         req.Bio,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.writeError(r.Context(), w, "update user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(user))
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: invalid user id", sentinel.ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

func (h *UserHandler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed", "error", err)
	httputil.WriteError(w, err)
}
