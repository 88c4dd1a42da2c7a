// Package apiclient talks to the exam API: exam delivery, submission,
// proctoring frames, login and face registration.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
)

const (
	opFetchExam    = "fetch exam"
	opSubmitExam   = "submit exam"
	opUploadFrame  = "upload frame"
	opLogin        = "login"
	opRegisterFace = "register face"

	maxErrorBody = 64 << 10
)

// ErrTooFewImages is returned before contacting the API when a face
// registration carries fewer than model.MinFaceImages images.
var ErrTooFewImages = fmt.Errorf("face registration needs at least %d images", model.MinFaceImages)

// Client is a thin JSON client for the exam API. The bearer token is read
// from the token store on every request.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  tokenstore.Store
	log     zerolog.Logger
}

// New creates a Client. timeout bounds every request; callers may set
// tighter deadlines through the context.
func New(baseURL string, timeout time.Duration, tokens tokenstore.Store, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log.With().Str("component", "apiclient").Logger(),
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// FetchExam loads an exam paper. A 403 unwraps to ErrFaceNotRegistered.
func (c *Client) FetchExam(ctx context.Context, examID string) (*model.Exam, error) {
	var raw json.RawMessage
	path := "/exams/" + url.PathEscape(examID)
	if err := c.do(ctx, opFetchExam, http.MethodGet, path, nil, "", true, &raw); err != nil {
		return nil, err
	}
	return decodeExam(raw, examID)
}

// SubmitExam posts the candidate's answers.
func (c *Client) SubmitExam(ctx context.Context, sub model.Submission) (*model.SubmitReceipt, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}
	var receipt model.SubmitReceipt
	if err := c.do(ctx, opSubmitExam, http.MethodPost, "/exams/submit", bytes.NewReader(body), "application/json", true, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

type frameRequest struct {
	ExamID      string `json:"exam_id"`
	SessionID   string `json:"session_id"`
	ImageBase64 string `json:"image_base64"`
}

type frameResponse struct {
	Event    string         `json:"event"`
	Alert    *string        `json:"alert"`
	Severity model.Severity `json:"severity"`
}

// UploadFrame sends one snapshot for proctoring and returns the verdict.
func (c *Client) UploadFrame(ctx context.Context, up model.FrameUpload) (model.Verdict, error) {
	body, err := json.Marshal(frameRequest{
		ExamID:      up.ExamID,
		SessionID:   up.SessionID,
		ImageBase64: capture.EncodeDataURL(up.Frame),
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("marshal frame: %w", err)
	}

	var resp frameResponse
	if err := c.do(ctx, opUploadFrame, http.MethodPost, "/proctor/frame", bytes.NewReader(body), "application/json", true, &resp); err != nil {
		return model.Verdict{}, err
	}

	v := model.Verdict{Event: resp.Event, Severity: resp.Severity}
	if resp.Alert != nil {
		v.Message = *resp.Alert
	}
	if !v.Severity.Valid() {
		v.Severity = model.SeverityForEvent(v.Event)
	}
	return v, nil
}

// Login exchanges credentials for a bearer token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (*model.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok model.TokenResponse
	if err := c.do(ctx, opLogin, http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", false, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%s: empty access token", opLogin)
	}
	if err := c.tokens.Save(ctx, tok.AccessToken); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &tok, nil
}

// Logout forgets the stored token. The exam API keeps no server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

type registerFaceRequest struct {
	Images []string `json:"image_base64_list"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RegisterFace uploads reference images of the candidate's face.
func (c *Client) RegisterFace(ctx context.Context, images []string) (string, error) {
	if len(images) < model.MinFaceImages {
		return "", ErrTooFewImages
	}
	body, err := json.Marshal(registerFaceRequest{Images: images})
	if err != nil {
		return "", fmt.Errorf("marshal images: %w", err)
	}

	var resp messageResponse
	if err := c.do(ctx, opRegisterFace, http.MethodPost, "/proctor/register_face", bytes.NewReader(body), "application/json", true, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, auth bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if id := response.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(response.HeaderRequestID, id)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		if err := c.authorize(ctx, req); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Exam API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
		if resp.StatusCode == http.StatusUnauthorized && auth {
			if err := c.tokens.Clear(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Failed to clear rejected token")
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// authorize adds the stored bearer token. A missing or expired token sends
// the request anonymously and lets the API answer 401.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Load(ctx)
	switch {
	case err == nil:
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	case errors.Is(err, tokenstore.ErrNoToken), errors.Is(err, tokenstore.ErrExpired):
		return nil
	default:
		return fmt.Errorf("load token: %w", err)
	}
}

// readDetail extracts the API's "detail" field, falling back to the raw body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && !isNull(env.Detail) {
		var s string
		if json.Unmarshal(env.Detail, &s) == nil {
			return s
		}
		return string(env.Detail)
	}
	return strings.TrimSpace(string(raw))
}
