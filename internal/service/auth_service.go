package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
)

// AuthClient is the part of the exam API client the auth service needs.
type AuthClient interface {
	Login(ctx context.Context, username, password string) (*model.TokenResponse, error)
	Logout(ctx context.Context) error
	RegisterFace(ctx context.Context, images []string) (string, error)
}

// AuthService signs the agent in and out of the exam API and registers the
// candidate's face.
type AuthService struct {
	client   AuthClient
	tokens   tokenstore.Store
	profile  string
	maxBytes int64
}

// NewAuthService creates a new AuthService.
func NewAuthService(client AuthClient, tokens tokenstore.Store, profile string, maxFrameBytes int64) *AuthService {
	return &AuthService{client: client, tokens: tokens, profile: profile, maxBytes: maxFrameBytes}
}

// Login exchanges credentials for a token and returns who is signed in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	tok, err := s.client.Login(ctx, email, password)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusBadRequest) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	id := tokenstore.Identify(tok.AccessToken, s.profile)
	return &id, nil
}

// Logout forgets the stored token.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

// Identity describes the stored token's holder.
func (s *AuthService) Identity(ctx context.Context) (*model.Identity, error) {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNoToken) || errors.Is(err, tokenstore.ErrExpired) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	id := tokenstore.Identify(token, s.profile)
	return &id, nil
}

// RegisterFace checks every image before sending them as data URLs.
func (s *AuthService) RegisterFace(ctx context.Context, images []string) (string, error) {
	if len(images) < model.MinFaceImages {
		return "", apiclient.ErrTooFewImages
	}

	urls := make([]string, 0, len(images))
	for i, img := range images {
		data, err := capture.DecodeDataURL(img)
		if err != nil {
			return "", fmt.Errorf("image %d: %w", i+1, err)
		}
		frame, err := capture.NewFrame(data, s.maxBytes)
		if err != nil {
			return "", fmt.Errorf("image %d: %w", i+1, err)
		}
		urls = append(urls, capture.EncodeDataURL(frame))
	}

	msg, err := s.client.RegisterFace(ctx, urls)
	if err != nil {
		return "", fmt.Errorf("register face: %w", err)
	}
	return msg, nil
}
