package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	"github.com/arklim/deadline-jail/internal/infra/security"
	"github.com/arklim/deadline-jail/internal/repository"
)

const timingDummyPassword = "deadline-jail:timing-parity"

// CredentialService registers accounts, checks passwords, and issues and verifies access tokens.
type CredentialService struct {
	users        port.UserRepository
	consequences port.ConsequenceRepository
	hasher       port.PasswordHasher
	policy       port.PasswordPolicyValidator
	tokens       *security.JWTManager
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	tokens *security.JWTManager,
	logger *zap.Logger,
) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = security.DefaultPasswordPolicy()
	}
	return &CredentialService{
		users:  users,
		hasher: hasher,
		policy: policy,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithDefaultConsequences seeds the starter consequences for every new account.
func (s *CredentialService) WithDefaultConsequences(repo port.ConsequenceRepository) *CredentialService {
	s.consequences = repo
	return s
}

// WithEventPublisher publishes a UserRegistered event after each registration.
func (s *CredentialService) WithEventPublisher(events port.EventPublisher) *CredentialService {
	s.events = events
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *CredentialService) WithClock(clock func() time.Time) *CredentialService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates an account for email. The email is normalised before the uniqueness check.
func (s *CredentialService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if password == "" {
		return domain.User{}, domain.NewValidationError("password", "password is required")
	}
	if err := s.policy.Validate(password, email); err != nil {
		return domain.User{}, domain.NewValidationError("password", err.Error())
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		PasswordAlgo: domain.PasswordAlgoArgon2id,
		CreatedAt:    s.now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	log := logger.WithContext(ctx).With(zap.String("user_id", user.ID))
	log.Info("user registered", zap.String("email", logger.MaskEmail(email)))

	s.seedDefaultConsequences(ctx, user.ID, log)

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        user.Email,
			RegisteredAt: user.CreatedAt,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			log.Warn("publish user registered event failed", zap.Error(err))
		}
	}

	return user.Sanitized(), nil
}

func (s *CredentialService) seedDefaultConsequences(ctx context.Context, userID string, log *zap.Logger) {
	if s.consequences == nil {
		return
	}
	for _, consequence := range domain.DefaultConsequences(userID, s.now()) {
		consequence.ID = uuid.NewString()
		if err := s.consequences.Create(ctx, consequence); err != nil {
			log.Warn("seed default consequence failed", zap.String("name", consequence.Name), zap.Error(err))
		}
	}
}

// Authenticate checks the credentials and issues a session token. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials after the same amount of hashing work.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (domain.Session, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.Session{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnVerification(password)
			return domain.Session{}, ErrInvalidCredentials
		}
		return domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		logger.WithContext(ctx).Warn("stored password hash unreadable",
			zap.String("email", logger.MaskEmail(email)), zap.String("user_id", user.ID), zap.Error(err))
		s.burnVerification(password)
		return domain.Session{}, ErrInvalidCredentials
	}
	if !ok {
		logger.WithContext(ctx).Info("login rejected", zap.String("email", logger.MaskEmail(email)))
		return domain.Session{}, ErrInvalidCredentials
	}

	return s.IssueSession(ctx, *user)
}

func (s *CredentialService) burnVerification(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(timingDummyPassword)
		if err != nil {
			s.logger.Warn("prepare timing dummy hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Verify(password, s.dummyHash)
}

// IssueSession signs an access token for an already authenticated user.
func (s *CredentialService) IssueSession(_ context.Context, user domain.User) (domain.Session, error) {
	if s.tokens == nil {
		return domain.Session{}, fmt.Errorf("token manager not configured")
	}
	token, expiresAt, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return domain.Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Sanitized(),
	}, nil
}

// Verify resolves an access token to the user id it was issued for.
func (s *CredentialService) Verify(ctx context.Context, token string) (string, error) {
	if s.tokens == nil {
		return "", ErrUnauthenticated
	}
	claims, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		logger.WithContext(ctx).Debug("access token rejected", zap.Error(err))
		return "", ErrUnauthenticated
	}
	return claims.UserID, nil
}

// CurrentUser returns the sanitized account for userID.
func (s *CredentialService) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Sanitized(), nil
}

func validateEmail(email string) error {
	if email == "" {
		return domain.NewValidationError("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return domain.NewValidationError("email", "email is not a valid address")
	}
	return nil
}
