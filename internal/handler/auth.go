package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/service"
)

type registerRequest struct {
	Nom      string `json:"nom"`
	Prenom   string `json:"prenom"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Adresse  string `json:"adresse"`
}

func (req registerRequest) input() service.RegisterInput {
	return service.RegisterInput{
		Nom:      req.Nom,
		Prenom:   req.Prenom,
		Email:    req.Email,
		Password: req.Password,
		Adresse:  req.Adresse,
	}
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register регистрирует клиента и отправляет код подтверждения.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	u, err := h.auth.Register(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, "register user", err)
		return
	}

	h.ok(w, http.StatusCreated, map[string]any{"email": u.Email},
		"Inscription réussie. Un code de vérification a été envoyé à votre email.")
}

// VerifyOTP проверяет код подтверждения или сброса пароля.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	res, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeServiceError(w, "verify otp", err)
		return
	}

	if res.ResetPending {
		h.ok(w, http.StatusOK, map[string]any{"resetPending": true},
			"Code vérifié. Vous pouvez maintenant réinitialiser votre mot de passe.")
		return
	}
	h.ok(w, http.StatusOK, res.Session, "Email vérifié avec succès")
}

// ResendOTP отправляет новый код.
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	if err := h.auth.ResendOTP(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, "resend otp", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Un nouveau code a été envoyé à votre email")
}

// ForgotPassword запускает сброс пароля. Ответ не зависит от существования учётной записи.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, "forgot password", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Si ce compte existe, un code de réinitialisation a été envoyé")
}

// ResetPassword заменяет пароль по коду сброса.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.writeServiceError(w, "reset password", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Mot de passe réinitialisé avec succès")
}

// Login выполняет вход и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, "login user", err)
		return
	}
	h.ok(w, http.StatusOK, session, "Connexion réussie")
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Accès non autorisé", "token_missing")
		return
	}

	u, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, "get profile", err)
		return
	}
	h.ok(w, http.StatusOK, u, "")
}

type createUserRequest struct {
	registerRequest
	Role   model.Role       `json:"role"`
	Statut model.UserStatus `json:"statut"`
}

type updateUserRequest struct {
	Nom     *string           `json:"nom"`
	Prenom  *string           `json:"prenom"`
	Adresse *string           `json:"adresse"`
	Role    *model.Role       `json:"role"`
	Statut  *model.UserStatus `json:"statut"`
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, "Identifiant invalide")
		return uuid.Nil, false
	}
	return id, true
}

// CreateUser создаёт пользователя от имени администратора.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	u, err := h.auth.CreateUserByAdmin(r.Context(), service.CreateUserInput{
		RegisterInput: req.input(),
		Role:          req.Role,
		Statut:        req.Statut,
	})
	if err != nil {
		h.writeServiceError(w, "create user", err)
		return
	}
	h.ok(w, http.StatusCreated, u, "Utilisateur créé avec succès")
}

// ListUsers возвращает всех пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, "list users", err)
		return
	}
	h.ok(w, http.StatusOK, users, "")
}

// GetUser возвращает пользователя по идентификатору.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	u, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get user", err)
		return
	}
	h.ok(w, http.StatusOK, u, "")
}

// UpdateUser изменяет пользователя.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "Corps de requête invalide")
		return
	}

	u, err := h.auth.UpdateUser(r.Context(), id, service.UpdateUserInput{
		Nom:     req.Nom,
		Prenom:  req.Prenom,
		Adresse: req.Adresse,
		Role:    req.Role,
		Statut:  req.Statut,
	})
	if err != nil {
		h.writeServiceError(w, "update user", err)
		return
	}
	h.ok(w, http.StatusOK, u, "Utilisateur mis à jour")
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeleteUser(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete user", err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Utilisateur supprimé")
}
