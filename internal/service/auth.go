package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/livrini/internal/model"
	"github.com/mmeshcher/livrini/internal/repository"
	"github.com/mmeshcher/livrini/internal/token"
	"github.com/mmeshcher/livrini/internal/validation"
)

// bcrypt учитывает только первые 72 байта пароля.
const maxPasswordBytes = 72

// AuthConfig содержит параметры аутентификации.
type AuthConfig struct {
	OTPTTL      time.Duration
	OTPLength   int
	MailTimeout time.Duration
}

// AuthDeps - зависимости AuthService.
type AuthDeps struct {
	Users      UserRepository
	Hasher     PasswordHasher
	Tokens     TokenIssuer
	Mailer     Mailer
	Throttle   Throttle
	Notifier   *Notifier
	Dispatcher *Dispatcher
}

// AuthService реализует регистрацию, подтверждение email по коду, вход и сброс пароля.
type AuthService struct {
	users      UserRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	mailer     Mailer
	throttle   Throttle
	notifier   *Notifier
	dispatcher *Dispatcher
	logger     *zap.Logger
	cfg        AuthConfig
	now        func() time.Time
	newOTP     func(length int) (string, error)
}

// NewAuthService создаёт AuthService.
func NewAuthService(deps AuthDeps, cfg AuthConfig, logger *zap.Logger) *AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}

	return &AuthService{
		users:      deps.Users,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		mailer:     deps.Mailer,
		throttle:   deps.Throttle,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		newOTP:     generateOTP,
	}
}

// RegisterInput - данные самостоятельной регистрации.
type RegisterInput struct {
	Nom      string
	Prenom   string
	Email    string
	Password string
	Adresse  string
}

// CreateUserInput - данные пользователя, создаваемого администратором.
type CreateUserInput struct {
	RegisterInput
	Role   model.Role
	Statut model.UserStatus
}

// UpdateUserInput - изменяемые администратором поля. nil означает «не менять».
type UpdateUserInput struct {
	Nom     *string
	Prenom  *string
	Adresse *string
	Role    *model.Role
	Statut  *model.UserStatus
}

// Session - выданный токен вместе с пользователем.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// VerifyResult - результат проверки кода. Для кода сброса пароля Session не выдаётся.
type VerifyResult struct {
	ResetPending bool     `json:"resetPending"`
	Session      *Session `json:"session,omitempty"`
}

func validateRegistration(in *RegisterInput) error {
	in.Nom = strings.TrimSpace(in.Nom)
	in.Prenom = strings.TrimSpace(in.Prenom)
	in.Adresse = strings.TrimSpace(in.Adresse)
	in.Email = validation.NormalizeEmail(in.Email)

	if in.Nom == "" || in.Prenom == "" || in.Email == "" || in.Password == "" {
		return invalid("Nom, prénom, email et mot de passe sont requis")
	}
	if !validation.IsValidEmail(in.Email) {
		return invalid("Format d'email invalide")
	}
	return validatePassword(in.Password)
}

func validatePassword(password string) error {
	if !validation.IsStrongPassword(password) {
		return invalid(fmt.Sprintf("Le mot de passe doit contenir au moins %d caractères", validation.MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return invalid("Le mot de passe est trop long")
	}
	return nil
}

func (s *AuthService) issueOTP(purpose model.OTPPurpose) (model.OTP, error) {
	code, err := s.newOTP(s.cfg.OTPLength)
	if err != nil {
		return model.OTP{}, err
	}
	return model.OTP{
		Code:      code,
		ExpiresAt: s.now().Add(s.cfg.OTPTTL),
		Purpose:   purpose,
	}, nil
}

func (s *AuthService) sendOTP(ctx context.Context, email string, otp model.OTP) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	return s.mailer.SendOTP(ctx, email, otp.Code, otp.Purpose, s.cfg.OTPTTL)
}

// Register регистрирует клиента и отправляет ему код подтверждения.
// Повторная регистрация неподтверждённого email перезаписывает данные существующей записи.
// Сбой отправки письма не прерывает регистрацию: код можно запросить повторно.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateRegistration(&in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	otp, err := s.issueOTP(model.OTPPurposeVerification)
	if err != nil {
		return nil, err
	}

	var u *model.User
	// Вторая попытка нужна, если параллельная регистрация успела создать запись между чтением и вставкой.
	for attempt := 0; attempt < 2 && u == nil; attempt++ {
		u, err = s.registerOnce(ctx, in, hash, otp)
		if errors.Is(err, repository.ErrUserExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if u == nil {
		return nil, ErrDuplicateEmail
	}

	if err := s.sendOTP(ctx, u.Email, otp); err != nil {
		s.logger.Warn("send registration otp failed", zap.String("email", u.Email), zap.Error(err))
	}

	return u, nil
}

func (s *AuthService) registerOnce(ctx context.Context, in RegisterInput, hash []byte, otp model.OTP) (*model.User, error) {
	existing, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.IsVerified {
			return nil, ErrDuplicateEmail
		}

		existing.Nom = in.Nom
		existing.Prenom = in.Prenom
		existing.Adresse = in.Adresse
		existing.PasswordHash = hash

		version, err := s.users.UpdatePendingRegistration(ctx, existing, otp)
		if errors.Is(err, repository.ErrUserNotFound) {
			// Пользователь подтвердил email между чтением и обновлением.
			return nil, ErrDuplicateEmail
		}
		if err != nil {
			return nil, err
		}

		otp.Version = version
		existing.OTP = &otp
		return existing, nil

	case errors.Is(err, repository.ErrUserNotFound):
		u := &model.User{
			ID:           uuid.New(),
			Nom:          in.Nom,
			Prenom:       in.Prenom,
			Email:        in.Email,
			PasswordHash: hash,
			Adresse:      in.Adresse,
			Role:         model.RoleClient,
			Statut:       model.UserStatusActive,
			OTP:          &otp,
		}
		if err := s.users.CreateUser(ctx, u); err != nil {
			return nil, err
		}
		return u, nil

	default:
		return nil, err
	}
}

// VerifyOTP проверяет код. Код подтверждения email переводит пользователя в подтверждённые
// и выдаёт сессию; код сброса пароля только подтверждается.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = validation.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, invalid("Email et code sont requis")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if u.OTP == nil {
		return nil, ErrNoPendingOTP
	}
	if u.IsVerified && u.OTP.Purpose != model.OTPPurposeReset {
		return nil, ErrAlreadyVerified
	}
	if u.OTP.Expired(s.now()) {
		return nil, ErrOTPExpired
	}
	if !otpEqual(u.OTP.Code, code) {
		return nil, ErrInvalidOTP
	}

	if u.OTP.Purpose == model.OTPPurposeReset {
		return &VerifyResult{ResetPending: true}, nil
	}

	ok, err := s.users.ConsumeVerificationOTP(ctx, u.ID, u.OTP.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Код был перевыпущен после чтения.
		return nil, ErrInvalidOTP
	}

	u.IsVerified = true
	u.OTP = nil

	s.welcome(u)

	session, err := s.newSession(u)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Session: session}, nil
}

func (s *AuthService) welcome(u *model.User) {
	email, firstName, userID := u.Email, u.Prenom, u.ID

	s.dispatcher.Go("welcome-mail", func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, email, firstName)
	})
	s.dispatcher.Go("welcome-notification", func(ctx context.Context) error {
		s.notifier.NotifyUser(ctx, userID, model.NotificationUser,
			"Bienvenue sur LIVRINI",
			"Votre compte est vérifié. Bonne découverte!",
			nil,
		)
		return nil
	})
}

// ResendOTP выпускает новый код с прежним назначением и отправляет его.
// Ошибка отправки письма возвращается вызывающему.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return invalid("Email requis")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if u.IsVerified && (u.OTP == nil || u.OTP.Purpose != model.OTPPurposeReset) {
		return ErrNothingToResend
	}

	key := "resend:" + email
	if !s.allow(ctx, key) {
		return ErrTooManyRequests
	}

	purpose := model.OTPPurposeVerification
	if u.OTP != nil && u.OTP.Purpose != "" {
		purpose = u.OTP.Purpose
	}

	return s.deliverOTP(ctx, key, u, purpose)
}

// ForgotPassword выпускает код сброса пароля. Для неизвестного email возвращает nil,
// чтобы ответ не раскрывал наличие учётной записи.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return invalid("Email requis")
	}
	if !validation.IsValidEmail(email) {
		return invalid("Format d'email invalide")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	key := "forgot:" + email
	if !s.allow(ctx, key) {
		return nil
	}

	return s.deliverOTP(ctx, key, u, model.OTPPurposeReset)
}

// deliverOTP сохраняет новый код и отправляет его. Если код не дошёл до пользователя,
// окно ожидания key снимается, чтобы повторная попытка не получила отказ.
func (s *AuthService) deliverOTP(ctx context.Context, key string, u *model.User, purpose model.OTPPurpose) error {
	otp, err := s.issueOTP(purpose)
	if err != nil {
		s.release(ctx, key)
		return err
	}
	if _, err := s.users.SetUserOTP(ctx, u.ID, otp); err != nil {
		s.release(ctx, key)
		return err
	}

	if err := s.sendOTP(ctx, u.Email, otp); err != nil {
		s.release(ctx, key)
		return fmt.Errorf("%w: send otp: %v", ErrUpstream, err)
	}
	return nil
}

// ResetPassword заменяет пароль по коду сброса. Сессия не выдаётся.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = validation.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return invalid("Email, code et nouveau mot de passe sont requis")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if u.OTP == nil || u.OTP.Purpose != model.OTPPurposeReset {
		return ErrNoResetPending
	}
	if u.OTP.Expired(s.now()) {
		return ErrOTPExpired
	}
	if !otpEqual(u.OTP.Code, code) {
		return ErrInvalidOTP
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	ok, err := s.users.ConsumeResetOTP(ctx, u.ID, u.OTP.Version, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

// Login проверяет email и пароль и выдаёт сессию.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("Email et mot de passe sont requis")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsVerified {
		return nil, ErrNotVerified
	}
	if u.Statut == model.UserStatusBlocked || u.Statut == model.UserStatusInactive {
		return nil, ErrAccountDisabled
	}

	return s.newSession(u)
}

func (s *AuthService) newSession(u *model.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(token.Identity{
		UserID: u.ID,
		Role:   u.Role,
		Email:  u.Email,
		Name:   u.DisplayName(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// CreateUserByAdmin создаёт пользователя от имени администратора. Такой пользователь
// сразу считается подтверждённым и код ему не отправляется.
func (s *AuthService) CreateUserByAdmin(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := validateRegistration(&in.RegisterInput); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = model.RoleClient
	}
	if !role.Valid() {
		return nil, invalid("Rôle invalide")
	}

	statut := in.Statut
	if statut == "" {
		statut = model.UserStatusActive
	}
	if !validUserStatus(statut) {
		return nil, invalid("Statut invalide")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           uuid.New(),
		Nom:          in.Nom,
		Prenom:       in.Prenom,
		Email:        in.Email,
		PasswordHash: hash,
		Adresse:      in.Adresse,
		Role:         role,
		Statut:       statut,
		IsVerified:   true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func validUserStatus(st model.UserStatus) bool {
	switch st {
	case model.UserStatusActive, model.UserStatusInactive, model.UserStatusBlocked:
		return true
	}
	return false
}

// Me возвращает профиль текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// ListUsers возвращает всех пользователей.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// UpdateUser изменяет профиль, роль или статус пользователя.
func (s *AuthService) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Nom != nil {
		if strings.TrimSpace(*in.Nom) == "" {
			return nil, invalid("Le nom ne peut pas être vide")
		}
		u.Nom = strings.TrimSpace(*in.Nom)
	}
	if in.Prenom != nil {
		if strings.TrimSpace(*in.Prenom) == "" {
			return nil, invalid("Le prénom ne peut pas être vide")
		}
		u.Prenom = strings.TrimSpace(*in.Prenom)
	}
	if in.Adresse != nil {
		u.Adresse = strings.TrimSpace(*in.Adresse)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, invalid("Rôle invalide")
		}
		u.Role = *in.Role
	}
	if in.Statut != nil {
		if !validUserStatus(*in.Statut) {
			return nil, invalid("Statut invalide")
		}
		u.Statut = *in.Statut
	}

	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser удаляет пользователя.
func (s *AuthService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.users.DeleteUser(ctx, id)
}

// allow проверяет окно ожидания. Ошибка Redis не блокирует пользователя.
func (s *AuthService) allow(ctx context.Context, key string) bool {
	if s.throttle == nil {
		return true
	}
	ok, err := s.throttle.Allow(ctx, key)
	if err != nil {
		s.logger.Warn("otp throttle unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (s *AuthService) release(ctx context.Context, key string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("otp throttle reset failed", zap.String("key", key), zap.Error(err))
	}
}
