package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeExams struct {
	exam      *model.Exam
	fetchErr  error
	submitErr error
	delay     time.Duration

	fetches atomic.Int32
	submits atomic.Int32

	mu      sync.Mutex
	lastSub model.Submission
}

func (f *fakeExams) FetchExam(_ context.Context, _ string) (*model.Exam, error) {
	f.fetches.Add(1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.exam, nil
}

func (f *fakeExams) SubmitExam(ctx context.Context, sub model.Submission) (*model.SubmitReceipt, error) {
	f.submits.Add(1)
	f.mu.Lock()
	f.lastSub = sub
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	score := 2.0
	return &model.SubmitReceipt{Message: "submitted", Score: &score}, nil
}

type fakeProctor struct {
	verdict model.Verdict
	err     error
	delay   time.Duration

	calls       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeProctor) UploadFrame(ctx context.Context, _ model.FrameUpload) (model.Verdict, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Verdict{}, ctx.Err()
		}
	}
	return f.verdict, f.err
}

type staticSource struct {
	err error
}

func (s staticSource) Snapshot(context.Context) (model.Frame, error) {
	if s.err != nil {
		return model.Frame{}, s.err
	}
	return model.Frame{Data: []byte{0xFF, 0xD8, 0xFF}, MIME: "image/jpeg"}, nil
}

// ─── Helpers ────────────────────────────────────────────────────────

// quietOptions keeps the background loops out of tests that drive ticks by hand.
var quietOptions = Options{
	TickInterval:    time.Hour,
	CaptureInterval: time.Hour,
	UploadTimeout:   time.Second,
	SubmitTimeout:   time.Second,
}

func demoExam(t *testing.T) *model.Exam {
	t.Helper()
	exam, err := offline.Demo{}.Exam(context.Background(), "101")
	require.NoError(t, err)
	return exam
}

type fixture struct {
	ctrl    *Controller
	exams   *fakeExams
	proctor *fakeProctor
	hub     *alert.Hub
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		exams:   &fakeExams{exam: demoExam(t)},
		proctor: &fakeProctor{verdict: model.Verdict{Event: model.EventFaceOK}},
		hub:     alert.NewHub(0, zerolog.Nop()),
	}
	f.ctrl = New("101", Deps{
		Exams:   f.exams,
		Proctor: f.proctor,
		Source:  staticSource{},
		Alerts:  f.hub,
		Nav:     f.hub,
	}, opts, zerolog.Nop())
	f.hub.Open(f.ctrl.ID())
	t.Cleanup(f.ctrl.Close)
	return f
}

func startedFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := newFixture(t, opts)
	require.NoError(t, f.ctrl.Initialize(context.Background(), nil))
	return f
}

func nextEvent(t *testing.T, sub *alert.Subscription) alert.Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no presenter event")
		return alert.Event{}
	}
}

// ─── Answers & navigation ───────────────────────────────────────────

func TestSelectAnswerLastWriteWins(t *testing.T) {
	f := startedFixture(t, quietOptions)

	require.NoError(t, f.ctrl.SelectAnswer(0, 1))
	require.NoError(t, f.ctrl.SelectAnswer(0, 3))
	require.NoError(t, f.ctrl.SelectAnswer(0, 3))

	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.SelectedOption)
	assert.Equal(t, 3, *snap.SelectedOption)
	assert.Equal(t, 1, snap.Answered)
}

func TestSelectAnswerRejectsOutOfRange(t *testing.T) {
	f := startedFixture(t, quietOptions)

	assert.ErrorIs(t, f.ctrl.SelectAnswer(3, 0), ErrQuestionOutOfRange)
	assert.ErrorIs(t, f.ctrl.SelectAnswer(-1, 0), ErrQuestionOutOfRange)
	assert.ErrorIs(t, f.ctrl.SelectAnswer(0, 4), ErrOptionOutOfRange)
	assert.Equal(t, 0, f.ctrl.Snapshot().Answered)
}

func TestNavigationClamps(t *testing.T) {
	f := startedFixture(t, quietOptions)

	i, err := f.ctrl.GoPrevious()
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	for n := 0; n < 5; n++ {
		i, _ = f.ctrl.GoNext()
	}
	assert.Equal(t, 2, i)

	i, _ = f.ctrl.GoTo(-4)
	assert.Equal(t, 0, i)
	i, _ = f.ctrl.GoTo(99)
	assert.Equal(t, 2, i)
	i, _ = f.ctrl.GoTo(1)
	assert.Equal(t, 1, i)

	assert.Equal(t, 1, f.ctrl.Snapshot().QuestionIndex)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	f := newFixture(t, quietOptions)

	assert.ErrorIs(t, f.ctrl.SelectAnswer(0, 0), ErrNotActive)
	_, err := f.ctrl.GoNext()
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = f.ctrl.Submit(context.Background(), model.EndReasonManual)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, model.SessionStateLoading, f.ctrl.State())
}

func TestInitializeTwice(t *testing.T) {
	f := startedFixture(t, quietOptions)
	assert.ErrorIs(t, f.ctrl.Initialize(context.Background(), nil), ErrAlreadyInitialized)
	assert.Equal(t, int32(1), f.exams.fetches.Load())
}

func TestInitializeWithSuppliedExamSkipsFetch(t *testing.T) {
	f := newFixture(t, quietOptions)

	require.NoError(t, f.ctrl.Initialize(context.Background(), demoExam(t)))
	assert.Equal(t, int32(0), f.exams.fetches.Load())
	assert.Equal(t, model.SessionStateActive, f.ctrl.State())
}

// ─── Countdown & submission ─────────────────────────────────────────

func TestTicksPastZeroSubmitOnce(t *testing.T) {
	f := startedFixture(t, quietOptions)
	sub := f.hub.Subscribe(f.ctrl.ID())
	defer sub.Cancel()

	for i := 0; i < 30*60-1; i++ {
		f.ctrl.Tick()
	}
	assert.Equal(t, int32(0), f.exams.submits.Load())
	assert.Equal(t, 1, f.ctrl.Snapshot().Remaining)

	f.ctrl.Tick()
	assert.Equal(t, int32(1), f.exams.submits.Load())

	for i := 0; i < 50; i++ {
		f.ctrl.Tick()
	}

	assert.Equal(t, int32(1), f.exams.submits.Load())
	assert.Equal(t, model.SessionStateDone, f.ctrl.State())

	res := f.ctrl.Result()
	require.NotNil(t, res)
	assert.Equal(t, model.EndReasonTimeout, res.EndReason)
	assert.Equal(t, 30*60, res.DurationSecs)

	ev := nextEvent(t, sub)
	assert.Equal(t, alert.EventNavigate, ev.Type)
	assert.Equal(t, model.ViewResults, ev.Route.View)
}

func TestConcurrentSubmitsTransmitOnce(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.exams.delay = 50 * time.Millisecond

	f.ctrl.mu.Lock()
	f.ctrl.remaining = 1
	f.ctrl.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]*model.Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.ctrl.Submit(context.Background(), model.EndReasonManual)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.ctrl.Tick()
	}()
	wg.Wait()

	assert.Equal(t, int32(1), f.exams.submits.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].SubmittedAt, r.SubmittedAt)
		assert.Equal(t, results[0].EndReason, r.EndReason)
	}
}

func TestSubmitAfterCloseIsRejected(t *testing.T) {
	f := startedFixture(t, quietOptions)
	require.NoError(t, f.ctrl.SelectAnswer(0, 2))
	sub := f.hub.Subscribe(f.ctrl.ID())
	defer sub.Cancel()

	f.ctrl.Close()

	res, err := f.ctrl.Submit(context.Background(), model.EndReasonManual)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Nil(t, res)
	assert.Equal(t, int32(0), f.exams.submits.Load())
	assert.Nil(t, f.ctrl.Result())
	assert.Nil(t, f.hub.Route(f.ctrl.ID()))

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestScoreTwoOfThree(t *testing.T) {
	f := startedFixture(t, quietOptions)

	require.NoError(t, f.ctrl.SelectAnswer(0, 2))
	require.NoError(t, f.ctrl.SelectAnswer(1, 1))
	require.NoError(t, f.ctrl.SelectAnswer(2, 0))

	res, err := f.ctrl.Submit(context.Background(), model.EndReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 3, res.Answered)
	assert.Equal(t, 67, res.Percentage)
	assert.True(t, res.Passed)
	require.NotNil(t, res.ServerScore)

	f.exams.mu.Lock()
	defer f.exams.mu.Unlock()
	assert.Equal(t, "101", f.exams.lastSub.ExamID)
	assert.Equal(t, map[string]string{"1": "2", "2": "1", "3": "0"}, f.exams.lastSub.Answers)
}

func TestScoreIgnoresUnknownAnswers(t *testing.T) {
	exam := &model.Exam{Questions: []model.Question{
		{ID: "a", Options: []string{"x", "y"}},
		{ID: "b", Options: []string{"x", "y"}, CorrectOption: model.IntPtr(1)},
	}}
	assert.Equal(t, 0, Score(exam, map[int]int{0: 0, 1: 0}))
	assert.Equal(t, 1, Score(exam, map[int]int{0: 1, 1: 1, 7: 1}))
}

func TestSubmitFailureStillShowsResults(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.exams.submitErr = errors.New("connection refused")
	sub := f.hub.Subscribe(f.ctrl.ID())
	defer sub.Cancel()

	require.NoError(t, f.ctrl.SelectAnswer(1, 1))
	res, err := f.ctrl.Submit(context.Background(), model.EndReasonManual)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Score)
	assert.Contains(t, res.SubmitError, "connection refused")
	assert.Nil(t, res.ServerScore)
	assert.Equal(t, model.SessionStateDone, f.ctrl.State())

	ev := nextEvent(t, sub)
	assert.Equal(t, model.ViewResults, ev.Route.View)
	assert.Equal(t, 1, ev.Route.Result.Score)
}

func TestSubmitStopsLoops(t *testing.T) {
	f := startedFixture(t, Options{TickInterval: 5 * time.Millisecond, CaptureInterval: 5 * time.Millisecond})
	assert.True(t, f.ctrl.Snapshot().Proctoring)

	_, err := f.ctrl.Submit(context.Background(), model.EndReasonManual)
	require.NoError(t, err)

	f.ctrl.countdown.Wait()
	f.ctrl.capture.Wait()
	f.ctrl.inflight.Wait()
	remaining := f.ctrl.Snapshot().Remaining
	calls := f.proctor.calls.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, remaining, f.ctrl.Snapshot().Remaining)
	assert.Equal(t, calls, f.proctor.calls.Load())
	assert.False(t, f.ctrl.Snapshot().Proctoring)
}

// ─── Capture loop ───────────────────────────────────────────────────

func TestCaptureTicksNeverOverlap(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.proctor.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ctrl.CaptureTick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.proctor.maxInflight.Load())
	assert.Equal(t, int32(1), f.proctor.calls.Load())
}

func TestCaptureLoopDropsTicksWhileUploading(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour, CaptureInterval: 5 * time.Millisecond, UploadTimeout: time.Second})
	f.proctor.delay = 40 * time.Millisecond
	require.NoError(t, f.ctrl.Initialize(context.Background(), nil))

	time.Sleep(200 * time.Millisecond)
	f.ctrl.Close()

	assert.Equal(t, int32(1), f.proctor.maxInflight.Load())
	assert.GreaterOrEqual(t, f.proctor.calls.Load(), int32(2))
	assert.Less(t, f.proctor.calls.Load(), int32(40))
}

func TestRepeatedAlertActivatesTwice(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.proctor.verdict = model.Verdict{Event: model.EventNoFace, Severity: model.SeverityError, Message: "Face not detected"}
	sub := f.hub.Subscribe(f.ctrl.ID())
	defer sub.Cancel()

	f.ctrl.CaptureTick(context.Background())
	f.ctrl.CaptureTick(context.Background())

	first := nextEvent(t, sub)
	second := nextEvent(t, sub)
	assert.Equal(t, alert.EventAlert, first.Type)
	assert.Equal(t, alert.EventAlert, second.Type)
	assert.Equal(t, first.Alert.Message, second.Alert.Message)
	assert.NotEqual(t, first.Alert.Seq, second.Alert.Seq)
	assert.Equal(t, "101", second.Alert.ExamID)
}

func TestUploadFailurePublishesConnectionLost(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.proctor.err = errors.New("dial tcp: connection refused")

	f.ctrl.CaptureTick(context.Background())
	last := f.ctrl.Snapshot().LastAlert
	require.NotNil(t, last)
	assert.Equal(t, model.SeverityError, last.Severity)
	assert.Equal(t, model.MsgConnectionLost, last.Message)

	// The loop keeps going and reports again on the next failure.
	f.ctrl.CaptureTick(context.Background())
	assert.Equal(t, int32(2), f.proctor.calls.Load())
	assert.Greater(t, f.ctrl.Snapshot().LastAlert.Seq, last.Seq)
}

func TestUploadTimeoutIsFailure(t *testing.T) {
	f := startedFixture(t, Options{TickInterval: time.Hour, CaptureInterval: time.Hour, UploadTimeout: 10 * time.Millisecond})
	f.proctor.delay = time.Second

	f.ctrl.CaptureTick(context.Background())
	last := f.ctrl.Snapshot().LastAlert
	require.NotNil(t, last)
	assert.Equal(t, model.MsgConnectionLost, last.Message)
}

func TestNotReadySourceSkipsSilently(t *testing.T) {
	f := newFixture(t, quietOptions)
	f.ctrl.deps.Source = staticSource{err: capture.ErrNotReady}
	require.NoError(t, f.ctrl.Initialize(context.Background(), nil))

	f.ctrl.CaptureTick(context.Background())
	assert.Equal(t, int32(0), f.proctor.calls.Load())
	assert.Nil(t, f.ctrl.Snapshot().LastAlert)
}

func TestCloseWaitsForInflightUpload(t *testing.T) {
	f := startedFixture(t, quietOptions)
	f.proctor.delay = 30 * time.Millisecond

	go f.ctrl.CaptureTick(f.ctrl.ctx)
	require.Eventually(t, func() bool { return f.proctor.inflight.Load() == 1 }, time.Second, time.Millisecond)

	f.ctrl.Close()
	assert.Equal(t, int32(0), f.proctor.inflight.Load())
	assert.Nil(t, f.ctrl.Snapshot().LastAlert)
}

// ─── Initialization failures ────────────────────────────────────────

func TestForbiddenFetchNeverUploads(t *testing.T) {
	f := newFixture(t, Options{TickInterval: 5 * time.Millisecond, CaptureInterval: 5 * time.Millisecond})
	f.exams.fetchErr = fmt.Errorf("fetch exam: %w", apiclient.ErrFaceNotRegistered)

	err := f.ctrl.Initialize(context.Background(), nil)
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, RedirectFaceRegistration, redirect.Kind)
	assert.Equal(t, model.ViewFaceRegister, redirect.Route.View)
	assert.Equal(t, model.SessionStateAwaitingFaceRegistration, f.ctrl.State())

	f.ctrl.CaptureTick(context.Background())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), f.proctor.calls.Load())
	assert.Equal(t, model.ViewFaceRegister, f.hub.Route(f.ctrl.ID()).View)
}

func TestForbiddenFetchIgnoresOffline(t *testing.T) {
	f := newFixture(t, quietOptions)
	f.ctrl.deps.Offline = offline.Demo{}
	f.exams.fetchErr = &apiclient.APIError{Op: "fetch exam", StatusCode: 403}

	err := f.ctrl.Initialize(context.Background(), nil)
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, RedirectFaceRegistration, redirect.Kind)
}

func TestFetchFailureRedirectsToDashboard(t *testing.T) {
	f := newFixture(t, quietOptions)
	f.exams.fetchErr = errors.New("connection refused")

	err := f.ctrl.Initialize(context.Background(), nil)
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, RedirectExamUnavailable, redirect.Kind)
	assert.Equal(t, model.ViewDashboard, redirect.Route.View)
	assert.Equal(t, model.SessionStateFailed, f.ctrl.State())

	last := f.hub.Current(f.ctrl.ID())
	require.NotNil(t, last)
	assert.Equal(t, model.SeverityError, last.Severity)
}

func TestFetchFailureUsesOfflineStrategy(t *testing.T) {
	f := newFixture(t, quietOptions)
	f.ctrl.deps.Offline = offline.Demo{}
	f.exams.fetchErr = errors.New("connection refused")

	require.NoError(t, f.ctrl.Initialize(context.Background(), nil))
	snap := f.ctrl.Snapshot()
	assert.Equal(t, model.SessionStateActive, snap.State)
	assert.Equal(t, "Python Basics", snap.ExamTitle)
}

func TestOfflineStrategyOnlyCoversOutages(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		offline bool
	}{
		{"timeout", fmt.Errorf("fetch exam: %w", context.DeadlineExceeded), true},
		{"bad gateway", &apiclient.APIError{Op: "fetch exam", StatusCode: 502}, true},
		{"unauthorized", &apiclient.APIError{Op: "fetch exam", StatusCode: 401}, false},
		{"not found", &apiclient.APIError{Op: "fetch exam", StatusCode: 404}, false},
		{"invalid payload", &apiclient.InvalidExamError{Fields: map[string]string{"title": "required"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, quietOptions)
			f.ctrl.deps.Offline = offline.Demo{}
			f.exams.fetchErr = tc.err

			err := f.ctrl.Initialize(context.Background(), nil)
			if tc.offline {
				require.NoError(t, err)
				assert.Equal(t, model.SessionStateActive, f.ctrl.State())
				return
			}
			var redirect *RedirectError
			require.ErrorAs(t, err, &redirect)
			assert.Equal(t, RedirectExamUnavailable, redirect.Kind)
			assert.Equal(t, model.SessionStateFailed, f.ctrl.State())
		})
	}
}

// ─── Snapshot ───────────────────────────────────────────────────────

func TestSnapshot(t *testing.T) {
	f := startedFixture(t, quietOptions)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "30:00", snap.Clock)
	assert.Equal(t, 3, snap.TotalQuestions)
	assert.False(t, snap.LowTime)
	require.NotNil(t, snap.Question)
	assert.Nil(t, snap.Question.CorrectOption)
	assert.Nil(t, snap.SelectedOption)

	f.ctrl.mu.Lock()
	f.ctrl.remaining = 299
	f.ctrl.mu.Unlock()

	snap = f.ctrl.Snapshot()
	assert.Equal(t, "4:59", snap.Clock)
	assert.True(t, snap.LowTime)
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{0: "0:00", 5: "0:05", 65: "1:05", 1800: "30:00", -3: "0:00"}
	for in, want := range cases {
		assert.Equal(t, want, formatClock(in), "seconds=%d", in)
	}
}
