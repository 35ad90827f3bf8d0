package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottie/internal/jobs"
	"ottie/internal/model"
	"ottie/internal/pipeline"
	"ottie/internal/queue"
	"ottie/internal/scraper"
	"ottie/internal/sites"
	"ottie/internal/store"
)

type stubScraper struct {
	name string
	err  error
}

func (s stubScraper) Name() string      { return s.name }
func (s stubScraper) Configured() error { return s.err }
func (s stubScraper) Scrape(context.Context, scraper.Request) (*scraper.Result, error) {
	return nil, errors.New("not used")
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

type stubStages struct {
	err   error
	calls []string
	st    store.Store
}

func (s *stubStages) run(name string) func(context.Context, uuid.UUID) (*model.Preview, error) {
	return func(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
		s.calls = append(s.calls, name)
		if s.err != nil {
			return nil, s.err
		}
		return s.st.GetPreview(ctx, id)
	}
}

func (s *stubStages) ReextractStructured(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("structured")(ctx, id)
}
func (s *stubStages) RecleanHTML(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("clean")(ctx, id)
}
func (s *stubStages) ReextractGallery(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("gallery")(ctx, id)
}
func (s *stubStages) RerunCall1(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("call1")(ctx, id)
}
func (s *stubStages) RerunCall2(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("call2")(ctx, id)
}
func (s *stubStages) Regenerate(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	return s.run("regenerate")(ctx, id)
}

type fixture struct {
	svc     *Previews
	st      *store.Memory
	q       *queue.Memory
	trigger *countingTrigger
	stages  *stubStages
}

func newFixture(t *testing.T, generic scraper.Scraper) *fixture {
	t.Helper()
	if generic == nil {
		generic = stubScraper{name: "scraperapi"}
	}
	f := &fixture{
		st:      store.NewMemory(),
		q:       queue.NewMemory(),
		trigger: &countingTrigger{},
	}
	f.stages = &stubStages{st: f.st}
	reg := scraper.NewRegistry(generic, stubScraper{name: "firecrawl"})
	f.svc = NewPreviews(f.st, f.q, reg, sites.Default(nil), f.stages, f.trigger, nil)
	return f
}

// complete walks a record through the worker transitions with the given
// final config.
func (f *fixture) complete(t *testing.T, url, finalConfig string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	_, err := f.st.CreatePreview(ctx, id, url)
	require.NoError(t, err)
	require.NoError(t, f.st.MarkScraping(ctx, id, "scraperapi", time.Now()))
	require.NoError(t, f.st.MarkPending(ctx, id))
	require.NoError(t, f.st.SaveFinalConfig(ctx, id, json.RawMessage(finalConfig)))
	require.NoError(t, f.st.Complete(ctx, id))
	return id
}

func requireUserError(t *testing.T, err error, target error) string {
	t.Helper()
	require.Error(t, err)
	msg, ok := AsUserError(err)
	require.True(t, ok, "expected a user error, got %v", err)
	if target != nil {
		assert.ErrorIs(t, err, target)
	}
	return msg
}

func TestGenerate_EnqueuesInOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "https://example.com/listing/123")
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, "  https://example.com/listing/456 ")
	require.NoError(t, err)

	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 2, second.QueuePosition)
	assert.Equal(t, uuid.Version(7), first.PreviewID.Version())
	assert.Equal(t, 2, f.trigger.n)

	p, err := f.st.GetPreview(ctx, second.PreviewID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, p.Status)
	assert.Equal(t, "https://example.com/listing/456", p.ExternalURL)
}

func TestGenerate_RejectsBeforeSideEffects(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		generic scraper.Scraper
		target  error
	}{
		{name: "empty", url: "", target: ErrInvalidURL},
		{name: "no scheme", url: "example.com/listing", target: ErrInvalidURL},
		{name: "ftp", url: "ftp://example.com/x", target: ErrInvalidURL},
		{name: "no host", url: "https:///path", target: ErrInvalidURL},
		{name: "bad escape", url: "https://example.com/%zz", target: ErrInvalidURL},
		{
			name:    "missing credentials",
			url:     "https://example.com/listing/1",
			generic: stubScraper{name: "scraperapi", err: &scraper.ScrapeError{Kind: scraper.ErrKindConfig, Message: "ScraperAPI key is not configured"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.generic)
			_, err := f.svc.Generate(context.Background(), tc.url)
			msg := requireUserError(t, err, tc.target)
			assert.NotEmpty(t, msg)

			n, _ := f.q.Len(context.Background())
			assert.Zero(t, n)
			list, _ := f.st.ListByStatus(context.Background(), []model.Status{model.StatusQueued, model.StatusError}, time.Time{}, 0)
			assert.Empty(t, list)
			assert.Zero(t, f.trigger.n)
		})
	}
}

func TestGenerate_CredentialMessageComesFromProvider(t *testing.T) {
	f := newFixture(t, stubScraper{name: "scraperapi", err: &scraper.ScrapeError{Kind: scraper.ErrKindConfig, Message: "ScraperAPI key is not configured"}})
	_, err := f.svc.Generate(context.Background(), "https://example.com/a")
	assert.Equal(t, "ScraperAPI key is not configured", requireUserError(t, err, nil))
}

func TestGenerate_QueueFailureMarksRecord(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.q.Shutdown(context.Background()))

	_, err := f.svc.Generate(context.Background(), "https://example.com/a")
	requireUserError(t, err, queue.ErrClosed)

	list, err := f.st.ListByStatus(context.Background(), []model.Status{model.StatusError}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ErrorMessage)
	assert.Zero(t, f.trigger.n)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.Generate(ctx, "https://example.com/a")
	require.NoError(t, err)
	b, err := f.svc.Generate(ctx, "https://example.com/b")
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, b.PreviewID)
	require.NoError(t, err)
	assert.Equal(t, jobs.PhaseQueue, st.Phase)
	require.NotNil(t, st.QueuePosition)
	assert.Equal(t, 2, *st.QueuePosition)
	assert.False(t, st.Processing)

	job, err := f.q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, a.PreviewID, job.ID)

	st, err = f.svc.Status(ctx, a.PreviewID)
	require.NoError(t, err)
	assert.Nil(t, st.QueuePosition)
	assert.True(t, st.Processing)
	assert.Equal(t, jobs.PhaseScraping, st.Phase)

	st, err = f.svc.Status(ctx, b.PreviewID)
	require.NoError(t, err)
	assert.Equal(t, 1, *st.QueuePosition)

	require.NoError(t, f.st.Fail(ctx, a.PreviewID, "Request timeout: the website may be slow or unresponsive"))
	st, err = f.svc.Status(ctx, a.PreviewID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, st.Status)
	assert.Equal(t, jobs.PhaseError, st.Phase)
	assert.Contains(t, st.ErrorMessage, "timeout")

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","phase":"error","queuePosition":null,"processing":true,
		"errorMessage":"Request timeout: the website may be slow or unresponsive"}`, string(raw))

	_, err = f.svc.Status(ctx, uuid.New())
	requireUserError(t, err, ErrNotFound)
}

func TestClaim(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.complete(t, "https://www.example.com/a", `{"title":"Stone Cottage in Bath"}`)
	second := f.complete(t, "https://www.example.com/b", `{"title":"Stone cottage in Bath!"}`)
	untitled := f.complete(t, "https://www.example.com/c", `{}`)

	a, err := f.svc.Claim(ctx, first, "ws-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "stone-cottage-in-bath", a.Slug)

	b, err := f.svc.Claim(ctx, second, "ws-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "stone-cottage-in-bath-2", b.Slug)

	c, err := f.svc.Claim(ctx, untitled, "ws-2", "user-2")
	require.NoError(t, err)
	assert.Equal(t, "example-com", c.Slug)

	again, err := f.svc.Claim(ctx, first, "ws-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, a.SiteID, again.SiteID)
	assert.Equal(t, a.Slug, again.Slug)

	p, err := f.st.GetPreview(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, p.SiteID)
	assert.Equal(t, a.SiteID, *p.SiteID)
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	queued, err := f.svc.Generate(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, queued.PreviewID, "ws", "user")
	requireUserError(t, err, ErrNotReady)

	_, err = f.svc.Claim(ctx, uuid.New(), "ws", "user")
	requireUserError(t, err, ErrNotFound)

	done := f.complete(t, "https://example.com/b", `{"title":"x"}`)
	_, err = f.svc.Claim(ctx, done, "", "user")
	requireUserError(t, err, nil)
}

func TestRunStage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.complete(t, "https://example.com/a", `{"title":"x"}`)

	for _, step := range Steps {
		p, err := f.svc.RunStage(ctx, id, step)
		require.NoError(t, err, step)
		assert.Equal(t, id, p.ID)
	}
	assert.Equal(t, []string{"structured", "clean", "gallery", "call1", "call2", "regenerate"}, f.stages.calls)

	_, err := f.svc.RunStage(ctx, id, "rescrape")
	requireUserError(t, err, ErrUnknownStep)

	_, err = f.svc.RunStage(ctx, uuid.New(), StepRerunCall1)
	requireUserError(t, err, ErrNotFound)

	f.stages.err = fmt.Errorf("generated config: %w", pipeline.ErrMissingInput)
	_, err = f.svc.RunStage(ctx, id, StepRerunCall2)
	msg := requireUserError(t, err, pipeline.ErrMissingInput)
	assert.Contains(t, msg, "earlier step")

	f.stages.err = store.ErrInvalidTransition
	_, err = f.svc.RunStage(ctx, id, StepRegenerate)
	requireUserError(t, err, store.ErrInvalidTransition)
}

func TestRunStage_RefusesRecordsInFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	queued, err := f.svc.Generate(ctx, "https://example.com/queued")
	require.NoError(t, err)
	_, err = f.svc.RunStage(ctx, queued.PreviewID, StepRecleanHTML)
	requireUserError(t, err, store.ErrInvalidTransition)

	// A pending record whose job another worker still holds.
	id := f.complete(t, "https://example.com/a", `{"title":"x"}`)
	_, err = f.q.Push(ctx, queue.Job{ID: id, URL: "https://example.com/a"})
	require.NoError(t, err)
	// Pop the queued job first so the processing slot ends up on id.
	for {
		job, err := f.q.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		if job.ID == id {
			break
		}
	}
	_, err = f.svc.RunStage(ctx, id, StepRerunCall1)
	requireUserError(t, err, store.ErrInvalidTransition)
	assert.Empty(t, f.stages.calls)

	require.NoError(t, f.q.Done(ctx, id))
	_, err = f.svc.RunStage(ctx, id, StepRerunCall1)
	require.NoError(t, err)
	assert.Equal(t, []string{"call1"}, f.stages.calls)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Stone Cottage in Bath":    "stone-cottage-in-bath",
		"Piso en Málaga, centro":   "piso-en-malaga-centro",
		"  --Ático_dúplex--  ":     "atico-duplex",
		"example.com":              "example-com",
		"!!!":                      "",
		"Château d'Où / Maison 12": "chateau-dou-maison-12",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
	long := Slugify("a very long title that keeps going well past the sixty character limit for slugs")
	assert.LessOrEqual(t, len(long), maxSlugLen)
	assert.NotEqual(t, '-', rune(long[len(long)-1]))
}

func TestPollStatus(t *testing.T) {
	opts := PollOptions{Interval: time.Millisecond, ErrorBackoff: 2 * time.Millisecond, MaxAttempts: 10}
	id := uuid.New()

	script := []struct {
		status model.Status
		err    error
	}{
		{status: model.StatusQueued},
		{err: errors.New("connection reset")},
		{status: model.StatusScraping},
		{status: model.StatusPending},
		{status: model.StatusCompleted},
	}
	calls := 0
	var seen []model.Status
	opts.OnUpdate = func(r *StatusResult) { seen = append(seen, r.Status) }
	res, err := PollStatus(context.Background(), id, func(context.Context, uuid.UUID) (*StatusResult, error) {
		step := script[calls]
		calls++
		if step.err != nil {
			return nil, step.err
		}
		return &StatusResult{Status: step.status}, nil
	}, opts)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []model.Status{model.StatusQueued, model.StatusScraping, model.StatusPending, model.StatusCompleted}, seen)
}

func TestPollStatus_GivesUp(t *testing.T) {
	calls := 0
	res, err := PollStatus(context.Background(), uuid.New(), func(context.Context, uuid.UUID) (*StatusResult, error) {
		calls++
		return &StatusResult{Status: model.StatusPending, Phase: jobs.PhaseCall1}, nil
	}, PollOptions{Interval: time.Millisecond, MaxAttempts: 3})
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, 3, calls)
	require.NotNil(t, res)
	assert.Equal(t, jobs.PhaseCall1, res.Phase)

	_, err = PollStatus(context.Background(), uuid.New(), func(context.Context, uuid.UUID) (*StatusResult, error) {
		return nil, userErr("Preview not found", ErrNotFound)
	}, PollOptions{Interval: time.Millisecond, MaxAttempts: 3})
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PollStatus(ctx, uuid.New(), func(context.Context, uuid.UUID) (*StatusResult, error) {
		return &StatusResult{Status: model.StatusQueued}, nil
	}, PollOptions{Interval: time.Hour, MaxAttempts: 3})
	assert.ErrorIs(t, err, context.Canceled)
}
