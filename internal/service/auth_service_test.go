package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthClient struct {
	tokens   tokenstore.Store
	loginErr error
	images   []string
}

func (f *fakeAuthClient) Login(ctx context.Context, _, _ string) (*model.TokenResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	_ = f.tokens.Save(ctx, "opaque")
	return &model.TokenResponse{AccessToken: "opaque", TokenType: "bearer"}, nil
}

func (f *fakeAuthClient) Logout(ctx context.Context) error { return f.tokens.Clear(ctx) }

func (f *fakeAuthClient) RegisterFace(_ context.Context, images []string) (string, error) {
	f.images = images
	return "Face registered", nil
}

var jpeg = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00\x01body")

func TestLoginAndLogout(t *testing.T) {
	tokens := tokenstore.NewStaticStore("")
	svc := NewAuthService(&fakeAuthClient{tokens: tokens}, tokens, "kiosk-3", 0)
	ctx := context.Background()

	_, err := svc.Identity(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	id, err := svc.Login(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "kiosk-3", id.Profile)

	_, err = svc.Identity(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))
	_, err = svc.Identity(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoginRejected(t *testing.T) {
	tokens := tokenstore.NewStaticStore("")
	client := &fakeAuthClient{tokens: tokens, loginErr: &apiclient.APIError{Op: "login", StatusCode: 401, Detail: "Incorrect username or password"}}
	svc := NewAuthService(client, tokens, "default", 0)

	_, err := svc.Login(context.Background(), "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	client.loginErr = errors.New("connection refused")
	_, err = svc.Login(context.Background(), "ana@example.com", "wrong")
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterFaceNormalizesImages(t *testing.T) {
	tokens := tokenstore.NewStaticStore("opaque")
	client := &fakeAuthClient{tokens: tokens}
	svc := NewAuthService(client, tokens, "default", 0)

	url := capture.EncodeDataURL(model.Frame{Data: jpeg, MIME: "image/jpeg"})
	msg, err := svc.RegisterFace(context.Background(), []string{url, url, url})
	require.NoError(t, err)
	assert.Equal(t, "Face registered", msg)
	require.Len(t, client.images, 3)
	assert.Contains(t, client.images[0], "data:image/jpeg;base64,")

	_, err = svc.RegisterFace(context.Background(), []string{url, url})
	assert.ErrorIs(t, err, apiclient.ErrTooFewImages)

	_, err = svc.RegisterFace(context.Background(), []string{url, url, "data:text/plain;base64,aGVsbG8="})
	assert.ErrorIs(t, err, capture.ErrUnsupportedFileType)
}
