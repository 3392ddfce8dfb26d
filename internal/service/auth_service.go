package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"auth-service/internal/event"
	"auth-service/internal/model"
)

type userStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Update(ctx context.Context, u model.User) (model.User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.User, error)
}

// AuthService runs the self-service flows: register, login, refresh, logout.
type AuthService struct {
	users  userStore
	tokens *TokenService
	hasher PasswordHasher
	bus    event.Bus
}

func NewAuthService(users userStore, tokens *TokenService, hasher PasswordHasher, bus event.Bus) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		bus:    bus,
	}
}

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.User, model.TokenPair, error) {
	email := strings.TrimSpace(req.Email)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return model.User{}, model.TokenPair{}, model.ErrDuplicateUser
	case !errors.Is(err, model.ErrUserNotFound):
		return model.User{}, model.TokenPair{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	user, err := s.users.Create(ctx, model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleCustomer,
	})
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Role)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	s.publish(event.TypeUserRegistered, user.ID, user.ID, map[string]any{"email": user.Email})
	return user, pair, nil
}

// Login returns model.ErrInvalidCredentials for both an unknown email and a
// wrong password so callers cannot tell the two apart.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.User, model.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, model.TokenPair{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	ok, err := s.hasher.Compare(password, user.PasswordHash)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	if !ok {
		return model.User{}, model.TokenPair{}, model.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Role)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	s.publish(event.TypeUserLoggedIn, user.ID, user.ID, nil)
	return user, pair, nil
}

func (s *AuthService) Self(ctx context.Context, identity model.Identity) (model.User, error) {
	id, err := strconv.ParseInt(identity.Subject, 10, 64)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: non-numeric subject", model.ErrUnauthenticated)
	}
	return s.users.FindByID(ctx, id)
}

// Refresh consumes a refresh token and issues a new pair carrying the user's
// current role. The old record is deleted first so a token can be used once.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (model.User, model.TokenPair, error) {
	if strings.TrimSpace(rawRefresh) == "" {
		return model.User{}, model.TokenPair{}, fmt.Errorf("%w: refresh token required", model.ErrUnauthenticated)
	}

	session, err := s.tokens.VerifyRefreshToken(ctx, rawRefresh)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	if err := s.tokens.DeleteRefreshToken(ctx, session.Record.ID); err != nil {
		if errors.Is(err, model.ErrRefreshTokenNotFound) {
			return model.User{}, model.TokenPair{}, fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
		}
		return model.User{}, model.TokenPair{}, err
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, model.TokenPair{}, fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
	}
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Role)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	s.publish(event.TypeTokenRefreshed, user.ID, user.ID, map[string]any{"revoked_record": session.Record.ID})
	return user, pair, nil
}

// Logout revokes the presented refresh token. A token whose record is already
// gone is treated as logged out.
func (s *AuthService) Logout(ctx context.Context, identity model.Identity, rawRefresh string) error {
	if strings.TrimSpace(rawRefresh) != "" {
		session, err := s.tokens.VerifyRefreshToken(ctx, rawRefresh)
		switch {
		case errors.Is(err, model.ErrRefreshTokenNotFound):
		case err != nil:
			return err
		case session.Identity.Subject != identity.Subject:
			return fmt.Errorf("%w: refresh token belongs to another user", model.ErrForbidden)
		default:
			if err := s.tokens.DeleteRefreshToken(ctx, session.Record.ID); err != nil &&
				!errors.Is(err, model.ErrRefreshTokenNotFound) {
				return err
			}
		}
	}

	userID, _ := strconv.ParseInt(identity.Subject, 10, 64)
	s.publish(event.TypeUserLoggedOut, userID, userID, nil)
	return nil
}

func (s *AuthService) publish(typ event.Type, subject int64, actor int64, detail any) {
	publish(s.bus, typ, subject, actor, detail)
}

func publish(bus event.Bus, typ event.Type, subject int64, actor int64, detail any) {
	if bus == nil {
		return
	}
	bus.Publish(event.Event{
		Type:    typ,
		Subject: strconv.FormatInt(subject, 10),
		ActorID: strconv.FormatInt(actor, 10),
		Detail:  detail,
	})
}
