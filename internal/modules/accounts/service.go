package accounts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/domain"
	"github.com/aristath/minerva/internal/utils"
	"github.com/rs/zerolog"
)

// ErrInvalidCredentials is returned by Login for unknown users, wrong
// passwords and inactive accounts alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Config holds the account settings the service needs.
type Config struct {
	FrontendURL       string
	GeneratedPassword int
}

// Service implements authentication flows and user administration.
type Service struct {
	repo      *Repository
	tokens    *auth.TokenService
	passwords *auth.PasswordValidator
	mailer    Mailer
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new accounts service.
func NewService(repo *Repository, tokens *auth.TokenService, passwords *auth.PasswordValidator, mailer Mailer, cfg Config, log zerolog.Logger) *Service {
	if cfg.GeneratedPassword <= 0 {
		cfg.GeneratedPassword = 10
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("service", "accounts").Logger(),
	}
}

// Repository exposes the read side to handlers.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Tokens exposes the token service to handlers.
func (s *Service) Tokens() *auth.TokenService {
	return s.tokens
}

// Login checks credentials, records the login and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *auth.TokenPair, error) {
	u, err := s.repo.GetByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !auth.CheckPassword(u.passwordHash, password) || !u.IsActive {
		s.log.Info().Str("email", u.Email).Msg("Rejected login")
		return nil, nil, ErrInvalidCredentials
	}

	now := s.now().UTC().Truncate(time.Second)
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, nil, err
	}
	u.LastLogin = &now

	pair, err := s.tokens.IssuePair(u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refresh string) (*auth.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, auth.ErrInvalidToken
	}
	return s.tokens.IssuePair(u.ID)
}

// Register creates a self-service account and logs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, *auth.TokenPair, error) {
	in := UserInput{
		Email:     utils.NormalizeEmail(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	v := &domain.ValidationError{}
	domain.ValidateEmail(v, "email", in.Email)
	domain.ValidateMaxLength(v, "first_name", in.FirstName, maxNameLength)
	domain.ValidateMaxLength(v, "last_name", in.LastName, maxNameLength)
	if req.Password != req.Password2 {
		v.Add("password", "Password fields didn't match.")
	}
	for _, p := range s.passwords.Validate(req.Password, in.Email) {
		v.Add("password", p)
	}
	if in.Email != "" {
		taken, err := s.repo.EmailTaken(ctx, in.Email, 0)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			v.Add("email", "User with this email already exists.")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}
	id, err := s.repo.Create(ctx, in, hash)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().Int64("user_id", id).Str("email", in.Email).Msg("User registered")

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.IssuePair(id)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// EncodeUID renders a user id the way reset links carry it.
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID parses a uidb64 value.
func DecodeUID(uidb64 string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uidb64, "="))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// RequestPasswordReset mails a reset link to the owner of email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError("email", "No user is registered with this email address.")
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return domain.NewValidationError("email", "No user is registered with this email address.")
	}

	token, err := s.tokens.IssuePasswordReset(u.ID, u.passwordHash, u.lastLoginOrZero())
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password/%s/%s", strings.TrimRight(s.cfg.FrontendURL, "/"), EncodeUID(u.ID), token)
	body := fmt.Sprintf("Olá %s,\n\nPara redefinir sua senha acesse:\n%s\n\nSe você não solicitou a redefinição, ignore este e-mail.\n",
		u.FullName(), link)
	if err := s.mailer.Send(ctx, u.Email, "Redefinição de senha - Minerva", body); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	s.log.Info().Int64("user_id", u.ID).Msg("Password reset requested")
	return nil
}

// ConfirmPasswordReset validates the link and stores the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirm) error {
	invalid := domain.NewValidationError(domain.NonFieldErrors, "The reset link is invalid or has expired.")

	id, err := DecodeUID(req.UIDB64)
	if err != nil {
		return invalid
	}
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return invalid
	}
	if err != nil {
		return err
	}
	claims, err := s.tokens.ParsePasswordReset(req.Token, u.passwordHash, u.lastLoginOrZero())
	if err != nil || claims.UserID != u.ID {
		return invalid
	}

	if problems := s.passwords.Validate(req.Password, u.Email); len(problems) > 0 {
		v := &domain.ValidationError{}
		for _, p := range problems {
			v.Add("password", p)
		}
		return v
	}
	return s.setPassword(ctx, u.ID, req.Password)
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.passwordHash, req.OldPassword) {
		return domain.NewValidationError("old_password", "Your old password was entered incorrectly.")
	}
	if problems := s.passwords.Validate(req.NewPassword, u.Email); len(problems) > 0 {
		v := &domain.ValidationError{}
		for _, p := range problems {
			v.Add("new_password", p)
		}
		return v
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

func (s *Service) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, userID, hash); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Msg("Password changed")
	return nil
}

// UpdateProfile changes the caller's names.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	v := &domain.ValidationError{}
	domain.ValidateMaxLength(v, "first_name", in.FirstName, maxNameLength)
	domain.ValidateMaxLength(v, "last_name", in.LastName, maxNameLength)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, userID, in); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// CreateUser creates an account on behalf of staff. A random password is
// generated and mailed to the new user.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	if err := s.validateUser(ctx, &in, 0); err != nil {
		return nil, err
	}

	password, err := auth.GeneratePassword(s.cfg.GeneratedPassword)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, in, hash)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Olá %s,\n\nSua conta no Minerva foi criada.\n\nUsuário: %s\nSenha: %s\n\nAcesse %s e altere sua senha no primeiro acesso.\n",
		u.FullName(), u.Email, password, s.cfg.FrontendURL)
	if err := s.mailer.Send(ctx, u.Email, "Sua conta no Minerva", body); err != nil {
		// The account exists; staff can trigger a password reset instead.
		s.log.Error().Err(err).Int64("user_id", id).Msg("Failed to send credentials email")
	}
	s.log.Info().Int64("user_id", id).Str("email", u.Email).Msg("User created by staff")
	return u, nil
}

// UpdateUser rewrites a user on behalf of staff.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UserInput) (*User, error) {
	if err := s.validateUser(ctx, &in, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// SetGroups replaces a user's groups.
func (s *Service) SetGroups(ctx context.Context, id int64, groups []string) (*User, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetGroups(ctx, id, groups); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// DeleteUser removes a user. Callers cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, callerID, id int64) error {
	if callerID == id {
		return domain.NewValidationError(domain.NonFieldErrors, "You cannot delete your own account.")
	}
	return s.repo.Delete(ctx, id)
}

// validateUser normalizes in and fills the email from the linked employee when empty.
func (s *Service) validateUser(ctx context.Context, in *UserInput, id int64) error {
	in.Email = utils.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	v := &domain.ValidationError{}
	if in.EmployeeID != nil {
		email, linked, err := s.repo.EmployeeEmail(ctx, *in.EmployeeID, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			v.Add("employee", "Invalid pk - object does not exist.")
		case err != nil:
			return err
		case linked:
			v.Add("employee", "This employee is already linked to another user.")
		case in.Email == "":
			in.Email = utils.NormalizeEmail(email)
		}
	}

	domain.ValidateEmail(v, "email", in.Email)
	domain.ValidateMaxLength(v, "first_name", in.FirstName, maxNameLength)
	domain.ValidateMaxLength(v, "last_name", in.LastName, maxNameLength)
	if in.Email != "" {
		taken, err := s.repo.EmailTaken(ctx, in.Email, id)
		if err != nil {
			return err
		}
		if taken {
			v.Add("email", "User with this email already exists.")
		}
	}
	return v.OrNil()
}

// CreateSuperuser creates an active staff superuser with the given password.
func (s *Service) CreateSuperuser(ctx context.Context, email, password, firstName, lastName string) (*User, error) {
	in := UserInput{Email: utils.NormalizeEmail(email), FirstName: firstName, LastName: lastName, IsStaff: true, IsSuperuser: true}
	if err := s.validateUser(ctx, &in, 0); err != nil {
		return nil, err
	}
	if problems := s.passwords.Validate(password, in.Email); len(problems) > 0 {
		v := &domain.ValidationError{}
		for _, p := range problems {
			v.Add("password", p)
		}
		return nil, v
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, in, hash)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
