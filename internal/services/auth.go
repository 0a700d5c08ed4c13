package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type AuthService interface {
	Register(ctx context.Context, email, password, name string, defaultLoad int) (*types.User, error)
	Login(ctx context.Context, email, password string) (string, *types.User, error)
	// UserFromToken resolves and verifies a bearer token.
	UserFromToken(ctx context.Context, tokenString string) (*types.User, error)
}

type authService struct {
	log       *logger.Logger
	userRepo  repos.UserRepo
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(baseLog *logger.Logger, userRepo repos.UserRepo, jwtSecret string, tokenTTLSeconds int) AuthService {
	return &authService{
		log:       baseLog.With("service", "AuthService"),
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  time.Duration(tokenTTLSeconds) * time.Second,
	}
}

func (s *authService) Register(ctx context.Context, email, password, name string, defaultLoad int) (*types.User, error) {
	if email == "" || password == "" {
		return nil, apperr.NewFieldConstraint("credentials", "email and password are required")
	}
	exists, err := s.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.NewFieldConstraint("email", "email is already in use")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if defaultLoad <= 0 {
		defaultLoad = 100
	}
	user := &types.User{
		Email:       email,
		Password:    string(hashed),
		Name:        name,
		DefaultLoad: defaultLoad,
	}
	if _, err := s.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *types.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return "", nil, apperr.NewFieldConstraint("credentials", "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, apperr.NewFieldConstraint("credentials", "invalid email or password")
	}

	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"exp": time.Now().Add(s.tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}

func (s *authService) UserFromToken(ctx context.Context, tokenString string) (*types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject")
	}
	return s.userRepo.GetByID(ctx, nil, userID)
}
