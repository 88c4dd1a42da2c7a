package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// AuthHandler handles sign-in against the exam API and face registration.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Exchanges email + password for an exam API token and stores it.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	identity, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Msg("Login failed")
		response.Fail(c, http.StatusBadGateway, response.ErrUpstream)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"identity": identity})
}

// Logout godoc
// POST /api/v1/auth/logout
// Forgets the stored token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Logout failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrTokenStore)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Me godoc
// GET /api/v1/auth/me
// Returns who the stored token belongs to.
func (h *AuthHandler) Me(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if identity == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"identity": identity})
}

// RegisterFace godoc
// POST /api/v1/face/register
// Sends at least three face images to the exam API.
func (h *AuthHandler) RegisterFace(c *gin.Context) {
	var req model.RegisterFaceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	msg, err := h.authService.RegisterFace(c.Request.Context(), req.Images)
	if err != nil {
		switch {
		case errors.Is(err, apiclient.ErrTooFewImages):
			response.Fail(c, http.StatusBadRequest, response.ErrNotEnoughFaceImages)
		case errors.Is(err, capture.ErrUnsupportedFileType), errors.Is(err, capture.ErrMalformedDataURL), errors.Is(err, capture.ErrEmptyFrame):
			response.FailWithFields(c, http.StatusBadRequest, response.ErrUnsupportedFile, map[string]string{"images": err.Error()})
		case errors.Is(err, capture.ErrFileTooLarge):
			response.FailWithFields(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge, map[string]string{"images": err.Error()})
		case errors.Is(err, apiclient.ErrUnauthorized):
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		default:
			h.log.Error().Err(err).Msg("Face registration failed")
			response.Fail(c, http.StatusBadGateway, response.ErrFaceRegistration)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": msg})
}
