// Package session runs one exam attempt: exam state, the countdown, the
// proctoring capture loop and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/journal"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/offline"
	"golang.org/x/sync/semaphore"
)

// LowTimeSeconds is the remaining time below which the clock turns red.
const LowTimeSeconds = 300

// ExamChannel loads and submits exams.
type ExamChannel interface {
	FetchExam(ctx context.Context, examID string) (*model.Exam, error)
	SubmitExam(ctx context.Context, sub model.Submission) (*model.SubmitReceipt, error)
}

// ProctorChannel sends capture frames for proctoring.
type ProctorChannel interface {
	UploadFrame(ctx context.Context, up model.FrameUpload) (model.Verdict, error)
}

// AlertSink shows alerts to the candidate.
type AlertSink interface {
	Publish(sessionID string, a model.Alert) model.Alert
	Current(sessionID string) *model.Alert
}

// Navigator moves the UI off the exam screen.
type Navigator interface {
	Navigate(sessionID string, route model.Route)
}

// Journal records alerts and results for later review.
type Journal interface {
	RecordAlert(ctx context.Context, a model.Alert) error
	RecordResult(ctx context.Context, r model.Result) error
}

// Deps are the collaborators of a Controller. Offline may be nil.
type Deps struct {
	Exams   ExamChannel
	Proctor ProctorChannel
	Source  capture.Source
	Alerts  AlertSink
	Nav     Navigator
	Journal Journal
	Offline offline.Strategy
}

// Options tune the controller's loops.
type Options struct {
	TickInterval    time.Duration
	CaptureInterval time.Duration
	UploadTimeout   time.Duration
	SubmitTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.CaptureInterval <= 0 {
		o.CaptureInterval = 3 * time.Second
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 2500 * time.Millisecond
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 15 * time.Second
	}
	return o
}

// Controller owns one exam attempt.
type Controller struct {
	id     string
	examID string
	deps   Deps
	opts   Options
	log    zerolog.Logger

	// ctx outlives the HTTP request that started the session; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         model.SessionState
	exam          *model.Exam
	index         int
	answers       map[int]int
	remaining     int
	duration      int
	initStarted   bool
	autoSubmitted bool
	alertCount    int
	closed        bool
	result        *model.Result

	countdown *Task
	capture   *Task
	uploads   *semaphore.Weighted
	inflight  sync.WaitGroup

	submitOnce sync.Once
	closeOnce  sync.Once
}

// New creates a controller in the Loading state with a fresh session id.
func New(examID string, deps Deps, opts Options, log zerolog.Logger) *Controller {
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		id:      id,
		examID:  examID,
		deps:    deps,
		opts:    opts,
		log:     logger.ForSession(log.With().Str("component", "session").Logger(), id, examID),
		ctx:     ctx,
		cancel:  cancel,
		state:   model.SessionStateLoading,
		answers: make(map[int]int),
		uploads: semaphore.NewWeighted(1),
	}
	c.countdown = NewTask("countdown", opts.TickInterval, func(context.Context) { c.Tick() })
	c.capture = NewTask("capture", opts.CaptureInterval, func(ctx context.Context) {
		// Uploads may outlive the tick; the semaphore drops overlapping ones.
		go c.CaptureTick(ctx)
	})
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// ExamID returns the exam being taken.
func (c *Controller) ExamID() string { return c.examID }

// State returns the current lifecycle state.
func (c *Controller) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize loads the exam (unless supplied) and starts the countdown and
// the capture loop. When the exam cannot be taken it publishes a navigation
// and returns a *RedirectError.
func (c *Controller) Initialize(ctx context.Context, supplied *model.Exam) error {
	c.mu.Lock()
	if c.initStarted || c.closed {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initStarted = true
	c.mu.Unlock()

	exam := supplied
	if exam == nil {
		var err error
		exam, err = c.deps.Exams.FetchExam(ctx, c.examID)
		if err != nil {
			exam, err = c.recoverFetch(ctx, err)
			if err != nil {
				return err
			}
		}
	}
	if len(exam.Questions) == 0 {
		return c.redirect(RedirectExamUnavailable, model.ViewDashboard, model.SessionStateFailed, model.MsgExamLoadFailed, ErrEmptyExam)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.exam = exam
	c.duration = exam.DurationSeconds()
	c.remaining = c.duration
	c.state = model.SessionStateActive
	c.mu.Unlock()

	c.countdown.Start(c.ctx)
	c.capture.Start(c.ctx)

	c.log.Info().
		Str("title", exam.Title).
		Int("questions", len(exam.Questions)).
		Int("duration_seconds", c.duration).
		Msg("Exam session started")
	return nil
}

// recoverFetch maps a failed exam fetch onto a redirect, or onto the
// offline exam when one is configured and the exam API is unreachable.
func (c *Controller) recoverFetch(ctx context.Context, fetchErr error) (*model.Exam, error) {
	if errors.Is(fetchErr, apiclient.ErrFaceNotRegistered) {
		c.log.Info().Msg("Face registration required, redirecting")
		return nil, c.redirect(RedirectFaceRegistration, model.ViewFaceRegister, model.SessionStateAwaitingFaceRegistration, model.MsgFaceRegistration, fetchErr)
	}

	if c.deps.Offline != nil && apiclient.IsUnavailable(fetchErr) {
		exam, err := c.deps.Offline.Exam(ctx, c.examID)
		if err == nil {
			c.log.Warn().Err(fetchErr).Str("strategy", c.deps.Offline.Name()).Msg("Exam fetch failed, using offline exam")
			return exam, nil
		}
		c.log.Error().Err(err).Msg("Offline exam unavailable")
	}

	c.log.Error().Err(fetchErr).Msg("Exam fetch failed")
	return nil, c.redirect(RedirectExamUnavailable, model.ViewDashboard, model.SessionStateFailed, model.MsgExamLoadFailed, fetchErr)
}

func (c *Controller) redirect(kind RedirectKind, view model.View, state model.SessionState, msg string, cause error) error {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	severity := model.SeverityError
	if kind == RedirectFaceRegistration {
		severity = model.SeverityWarning
	}
	c.publish(model.Alert{Severity: severity, Message: msg})

	route := model.Route{View: view, Reason: msg}
	c.deps.Nav.Navigate(c.id, route)
	return &RedirectError{Kind: kind, Route: route, Err: cause}
}

// SelectAnswer records option for question. The last selection wins.
func (c *Controller) SelectAnswer(question, option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.SessionStateActive {
		return ErrNotActive
	}
	if question < 0 || question >= len(c.exam.Questions) {
		return fmt.Errorf("%w: %d", ErrQuestionOutOfRange, question)
	}
	if !c.exam.Questions[question].HasOption(option) {
		return fmt.Errorf("%w: %d", ErrOptionOutOfRange, option)
	}
	c.answers[question] = option
	return nil
}

// GoNext moves to the next question, stopping at the last one.
func (c *Controller) GoNext() (int, error) {
	return c.move(func(i int) int { return i + 1 })
}

// GoPrevious moves to the previous question, stopping at the first one.
func (c *Controller) GoPrevious() (int, error) {
	return c.move(func(i int) int { return i - 1 })
}

// GoTo jumps to question i, clamped into range.
func (c *Controller) GoTo(i int) (int, error) {
	return c.move(func(int) int { return i })
}

func (c *Controller) move(next func(int) int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != model.SessionStateActive {
		return c.index, ErrNotActive
	}
	c.index = clamp(next(c.index), 0, len(c.exam.Questions)-1)
	return c.index, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Tick takes one second off the clock. The tick that reaches zero submits
// the exam; later ticks do nothing.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.state != model.SessionStateActive || c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.remaining--
	expired := c.remaining == 0 && !c.autoSubmitted
	if expired {
		c.autoSubmitted = true
	}
	c.mu.Unlock()

	if expired {
		c.log.Info().Msg("Time is up, submitting")
		if _, err := c.Submit(c.ctx, model.EndReasonTimeout); err != nil {
			c.log.Error().Err(err).Msg("Auto-submit failed")
		}
	}
}

// Submit ends the attempt. Concurrent and repeated calls share the first
// call's submission and all receive the same Result. A closed attempt is
// never submitted.
func (c *Controller) Submit(ctx context.Context, reason model.EndReason) (*model.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	switch c.state {
	case model.SessionStateActive:
		c.state = model.SessionStateSubmitting
	case model.SessionStateSubmitting, model.SessionStateDone:
	default:
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	c.mu.Unlock()

	c.submitOnce.Do(func() { c.submit(ctx, reason) })

	c.mu.Lock()
	defer c.mu.Unlock()
	r := *c.result
	return &r, nil
}

func (c *Controller) submit(ctx context.Context, reason model.EndReason) {
	c.countdown.Stop()
	c.capture.Stop()

	c.mu.Lock()
	exam := c.exam
	answers := make(map[int]int, len(c.answers))
	for q, o := range c.answers {
		answers[q] = o
	}
	elapsed := c.duration - c.remaining
	alerts := c.alertCount
	c.mu.Unlock()

	result := model.Result{
		SessionID:      c.id,
		ExamID:         c.examID,
		ExamTitle:      exam.Title,
		Score:          Score(exam, answers),
		TotalQuestions: len(exam.Questions),
		Answered:       len(answers),
		EndReason:      reason,
		DurationSecs:   elapsed,
		AlertCount:     alerts,
	}

	// Stopping the loops must not abort the request.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SubmitTimeout)
	defer cancel()

	receipt, err := c.deps.Exams.SubmitExam(sctx, model.Submission{
		ExamID:          c.examID,
		Answers:         answerKeys(exam, answers),
		DurationSeconds: elapsed,
	})
	if err != nil {
		result.SubmitError = err.Error()
		metrics.RecordSubmission(string(reason), metrics.SubmitFailed)
		c.log.Warn().Err(err).Msg("Submission failed, showing local score")
	} else {
		result.ServerScore = receipt.Score
		metrics.RecordSubmission(string(reason), metrics.SubmitAccepted)
	}
	result.SubmittedAt = time.Now().UTC()
	result.Grade()

	c.mu.Lock()
	c.result = &result
	c.state = model.SessionStateDone
	c.mu.Unlock()

	c.log.Info().
		Str("reason", string(reason)).
		Int("score", result.Score).
		Int("total", result.TotalQuestions).
		Int("percentage", result.Percentage).
		Msg("Exam submitted")

	if err := c.deps.Journal.RecordResult(sctx, result); err != nil {
		c.log.Warn().Err(err).Msg("Failed to journal result")
	}

	shown := result
	c.deps.Nav.Navigate(c.id, model.Route{View: model.ViewResults, Result: &shown})
}

// Result returns the submitted result, or nil before submission finished.
func (c *Controller) Result() *model.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// CaptureTick takes one snapshot and uploads it. A tick that finds an upload
// still in flight is dropped.
func (c *Controller) CaptureTick(ctx context.Context) {
	c.mu.Lock()
	if c.state != model.SessionStateActive || c.closed {
		c.mu.Unlock()
		return
	}
	if !c.uploads.TryAcquire(1) {
		c.mu.Unlock()
		metrics.RecordTick(metrics.TickSkippedBusy)
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	defer c.uploads.Release(1)

	frame, err := c.deps.Source.Snapshot(ctx)
	if err != nil {
		metrics.RecordTick(metrics.TickSkippedNotReady)
		if !errors.Is(err, capture.ErrNotReady) && ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("Capture source failed")
		}
		return
	}

	uctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := c.deps.Proctor.UploadFrame(uctx, model.FrameUpload{
		ExamID:    c.examID,
		SessionID: c.id,
		Frame:     frame,
	})
	metrics.RecordUpload(time.Since(start).Seconds())

	if ctx.Err() != nil || !c.active() {
		// The loop was torn down while the upload was out.
		return
	}
	if err != nil {
		metrics.RecordTick(metrics.TickFailed)
		c.log.Warn().Err(err).Msg("Frame upload failed")
		c.publish(model.Alert{
			Severity: model.SeverityError,
			Event:    model.EventUploadFailed,
			Message:  model.MsgConnectionLost,
		})
		return
	}

	metrics.RecordTick(metrics.TickUploaded)
	if verdict.HasAlert() {
		c.publish(model.Alert{
			Severity: verdict.Severity,
			Event:    verdict.Event,
			Message:  verdict.Message,
		})
	}
}

func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == model.SessionStateActive && !c.closed
}

func (c *Controller) publish(a model.Alert) {
	a.ExamID = c.examID
	shown := c.deps.Alerts.Publish(c.id, a)

	c.mu.Lock()
	c.alertCount++
	c.mu.Unlock()

	if err := c.deps.Journal.RecordAlert(c.ctx, shown); err != nil {
		c.log.Warn().Err(err).Msg("Failed to journal alert")
	}
}

// Snapshot returns what the exam screen shows right now.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	s := model.Snapshot{
		SessionID:  c.id,
		ExamID:     c.examID,
		State:      c.state,
		Remaining:  c.remaining,
		Clock:      formatClock(c.remaining),
		Answered:   len(c.answers),
		Proctoring: c.capture.Running(),
	}
	if c.exam != nil {
		s.ExamTitle = c.exam.Title
		s.TotalQuestions = len(c.exam.Questions)
		s.QuestionIndex = c.index
		q := c.exam.Questions[c.index].ForCandidate()
		s.Question = &q
		if o, ok := c.answers[c.index]; ok {
			s.SelectedOption = model.IntPtr(o)
		}
		s.LowTime = c.state == model.SessionStateActive && c.remaining < LowTimeSeconds
	}
	c.mu.Unlock()

	s.LastAlert = c.deps.Alerts.Current(c.id)
	return s
}

// Close abandons the attempt: both loops stop and in-flight uploads are
// waited for. Must not be called from a loop callback.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.countdown.Stop()
		c.capture.Stop()
		c.cancel()

		c.countdown.Wait()
		c.capture.Wait()
		c.inflight.Wait()

		c.log.Debug().Msg("Exam session closed")
	})
}

// formatClock renders seconds as m:ss.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
