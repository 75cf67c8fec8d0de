// Package handlers provides HTTP handlers for authentication and user management.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/modules/accounts"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for account endpoints
type Handler struct {
	service       *accounts.Service
	repo          *accounts.Repository
	paginator     apiutil.Paginator
	secureCookies bool
	log           zerolog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(service *accounts.Service, paginator apiutil.Paginator, secureCookies bool, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		repo:          service.Repository(),
		paginator:     paginator,
		secureCookies: secureCookies,
		log:           log.With().Str("handler", "accounts").Logger(),
	}
}

type authResponse struct {
	Message string         `json:"message"`
	User    *accounts.User `json:"user,omitempty"`
	Access  string         `json:"access"`
	Refresh string         `json:"refresh"`
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	apiutil.WriteJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	tokens := h.service.Tokens()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessCookie,
		Value:    pair.Access,
		Path:     "/",
		MaxAge:   int(tokens.AccessTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshCookie,
		Value:    pair.Refresh,
		Path:     "/",
		MaxAge:   int(tokens.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.AccessCookie, auth.RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// HandleLogin handles POST /accounts/login and /accounts/token
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req accounts.LoginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}
	if email == "" || req.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	user, pair, err := h.service.Login(r.Context(), email, req.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid credentials or inactive account.")
		return
	}
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}

	h.setAuthCookies(w, pair)
	apiutil.WriteJSON(w, http.StatusOK, authResponse{
		Message: "Login successful.",
		User:    user,
		Access:  pair.Access,
		Refresh: pair.Refresh,
	})
}

// HandleRefresh handles POST /accounts/token/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if r.ContentLength != 0 {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteError(w, r, h.log, err)
			return
		}
	}
	if req.Refresh == "" {
		if c, err := r.Cookie(auth.RefreshCookie); err == nil {
			req.Refresh = c.Value
		}
	}
	if req.Refresh == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Refresh token not provided.")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.Refresh)
	if auth.IsInvalidToken(err) {
		apiutil.WriteDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}

	h.setAuthCookies(w, pair)
	apiutil.WriteJSON(w, http.StatusOK, authResponse{Message: "Token refreshed.", Access: pair.Access, Refresh: pair.Refresh})
}

// HandleLogout handles POST /accounts/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookies(w)
	apiutil.WriteJSON(w, http.StatusOK, apiutil.Message{Message: "Logout successful."})
}

// HandleRegister handles POST /accounts/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	user, pair, err := h.service.Register(r.Context(), req)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	h.setAuthCookies(w, pair)
	apiutil.WriteJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully.",
		User:    user,
		Access:  pair.Access,
		Refresh: pair.Refresh,
	})
}

// HandlePasswordReset handles POST /accounts/password-reset
func (h *Handler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req accounts.PasswordResetRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.Message{Message: "Password reset email sent."})
}

// HandlePasswordResetConfirm handles POST /accounts/password-reset-confirm
func (h *Handler) HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req accounts.PasswordResetConfirm
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.ConfirmPasswordReset(r.Context(), req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.Message{Message: "Password has been reset."})
}

// HandleChangePassword handles POST /accounts/change-password
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req accounts.ChangePasswordRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), auth.UserID(r.Context()), req); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, apiutil.Message{Message: "Password changed successfully."})
}

// HandleProfile handles PUT/PATCH /accounts/profile
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	current, err := h.repo.GetByID(r.Context(), userID)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	in := accounts.ProfileInput{FirstName: current.FirstName, LastName: current.LastName}
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Profile updated successfully.", user)
}

type meResponse struct {
	User           *accounts.User `json:"user"`
	EmployeeID     *int64         `json:"employee_id"`
	HierarchyLevel access.Level   `json:"hierarchy_level"`
	Scope          *access.Scope  `json:"scope"`
}

// HandleMe handles GET /accounts/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	scope := access.FromContext(r.Context())
	apiutil.WriteJSON(w, http.StatusOK, meResponse{
		User:           user,
		EmployeeID:     user.EmployeeID,
		HierarchyLevel: scope.Level,
		Scope:          scope,
	})
}

func (h *Handler) users() apiutil.CRUD {
	return apiutil.CRUD{
		List: apiutil.ListHandler(h.paginator, h.log, func(r *http.Request, p domain.ListParams) ([]accounts.User, int, error) {
			f, err := parseFilter(r)
			if err != nil {
				return nil, 0, err
			}
			return h.repo.List(r.Context(), p, f)
		}),
		Get: apiutil.GetHandler(h.log, func(r *http.Request, id int64) (*accounts.User, error) {
			return h.repo.GetByID(r.Context(), id)
		}),
		Create: apiutil.CreateHandler(h.log, "User created successfully. The credentials were sent by email.",
			func(r *http.Request, in accounts.UserInput) (*accounts.User, error) {
				return h.service.CreateUser(r.Context(), in)
			}),
		Update: apiutil.UpdateHandler(h.log, "User updated successfully.",
			func(r *http.Request, id int64) (accounts.UserInput, error) {
				u, err := h.repo.GetByID(r.Context(), id)
				if err != nil {
					return accounts.UserInput{}, err
				}
				return accounts.InputOf(u), nil
			},
			func(r *http.Request, id int64, in accounts.UserInput) (*accounts.User, error) {
				return h.service.UpdateUser(r.Context(), id, in)
			}),
		Delete: apiutil.DeleteHandler(h.log, func(r *http.Request, id int64) error {
			return h.service.DeleteUser(r.Context(), auth.UserID(r.Context()), id)
		}),
	}
}

// HandleSetGroups handles PUT /accounts/users/{id}/groups
func (h *Handler) HandleSetGroups(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.IDParam(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	var in accounts.GroupsInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	user, err := h.service.SetGroups(r.Context(), id, in.Groups)
	if err != nil {
		apiutil.WriteError(w, r, h.log, err)
		return
	}
	apiutil.WriteUpdated(w, "Groups updated successfully.", user)
}

func parseFilter(r *http.Request) (accounts.ListFilter, error) {
	q := r.URL.Query()
	f := accounts.ListFilter{Group: q.Get("group")}
	for name, dst := range map[string]**bool{"is_active": &f.IsActive, "is_staff": &f.IsStaff} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		switch raw {
		case "true", "1", "True":
			v := true
			*dst = &v
		case "false", "0", "False":
			v := false
			*dst = &v
		default:
			return f, domain.NewValidationError(name, "Must be a valid boolean.")
		}
	}
	return f, nil
}
