package batch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/resolver"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 24, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

type mockExtractor struct {
	mock.Mock
	clock    *fakeClock
	calledAt []time.Time
}

func (m *mockExtractor) Extract(_ context.Context, pdf []byte, modelID string) (map[string]string, error) {
	m.calledAt = append(m.calledAt, m.clock.Now())
	args := m.Called(string(pdf), modelID)
	fields, _ := args.Get(0).(map[string]string)
	return fields, args.Error(1)
}

func referenceRows() []sheet.ReferenceRow {
	return []sheet.ReferenceRow{
		{
			mapping.ColumnSKU:         "1001",
			mapping.ColumnDependency:  "V1",
			mapping.ColumnDescription: "MA",
			mapping.ColumnAgeMark:     "6+",
		},
		{
			mapping.ColumnSKU:         "1002",
			mapping.ColumnDependency:  "V1",
			mapping.ColumnDescription: "SA",
			mapping.ColumnAgeMark:     "9+",
		},
		{
			mapping.ColumnSKU:         "1003",
			mapping.ColumnDependency:  "V2",
			mapping.ColumnDescription: "MA",
			mapping.ColumnAgeMark:     "4+",
		},
	}
}

func fieldsFor(sku, version, age string) map[string]string {
	return map[string]string{
		"SKU_Number_Front": sku,
		"Version":          version,
		"Age_Mark":         age,
	}
}

func newTestOrchestrator(ext *mockExtractor, clock *fakeClock) *Orchestrator {
	return NewOrchestrator(
		ext,
		mapping.Builtin(),
		resolver.New(resolver.DefaultOptions()),
		compare.New(compare.ListLenient),
		WithSleep(clock.Sleep),
		WithClock(clock.Now),
	)
}

func TestRun_IsolatesPerDocumentFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}
	ext.On("Extract", "pdf-1", mapping.ModelPKGv2Combined).Return(fieldsFor("1001", "V1", "6+"), nil).Once()
	ext.On("Extract", "pdf-3", mapping.ModelPKGv2Combined).Return(fieldsFor("1002", "V1", "12+"), nil).Once()

	docs := []Document{
		{Filename: "1001_V1_MA_front.pdf", Data: []byte("pdf-1")},
		{Filename: "1001-V1-MA.pdf", Data: []byte("pdf-2")},
		{Filename: "1002_V1_SA_back.PDF", Data: []byte("pdf-3")},
	}

	report := newTestOrchestrator(ext, clock).Run(context.Background(), referenceRows(), docs,
		Options{ModelID: mapping.ModelPKGv2Combined}, nil)

	ext.AssertExpectations(t)
	ext.AssertNumberOfCalls(t, "Extract", 2)

	require.Len(t, report.Items, 3)
	for i, it := range report.Items {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, docs[i].Filename, it.Filename)
	}

	first := report.Items[0]
	assert.True(t, first.Succeeded())
	assert.Equal(t, compare.Summary{Total: 3, Correct: 3}, first.Summary)
	require.NotNil(t, first.ParsedFilename)
	assert.Equal(t, "1001", first.ParsedFilename.SKU)

	second := report.Items[1]
	assert.Equal(t, ErrorPrimaryKeyFailed, second.ErrorType)
	assert.Nil(t, second.ParsedFilename)
	assert.Empty(t, second.ComparisonResults)

	third := report.Items[2]
	assert.True(t, third.Succeeded())
	assert.Equal(t, compare.Summary{Total: 3, Correct: 2, Incorrect: 1}, third.Summary)

	agg := report.Aggregate
	assert.Equal(t, 3, agg.TotalDocuments)
	assert.Equal(t, 2, agg.Successful)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, map[ErrorType]int{ErrorPrimaryKeyFailed: 1}, agg.FailedByType)
	assert.Equal(t, compare.Summary{Total: 6, Correct: 5, Incorrect: 1}, agg.Fields)
	// (100 + 66.7) / 2
	assert.Equal(t, 83, agg.AverageMatchRate)
	assert.False(t, report.Cancelled)
	assert.NotEmpty(t, report.ID)
}

func TestRun_UnresolvedKeySkipsExtraction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}

	report := newTestOrchestrator(ext, clock).Run(context.Background(), referenceRows(),
		[]Document{
			{Filename: "1003_V1_MA_front.pdf"},
			{Filename: "1002_V1_MA_front.pdf"},
			{Filename: "4040_V1_MA_front.pdf"},
		},
		Options{ModelID: "unknown-model"}, nil)

	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	require.Len(t, report.Items, 3)
	for _, it := range report.Items {
		assert.Equal(t, ErrorPrimaryKeyFailed, it.ErrorType)
		require.NotNil(t, it.ParsedFilename)
	}
	assert.Contains(t, report.Items[0].Error, `version "V1"`)
	assert.Contains(t, report.Items[1].Error, "description")
	assert.Contains(t, report.Items[2].Error, `no row with SKU "4040"`)
	assert.Equal(t, 0, report.Aggregate.AverageMatchRate)
}

func TestRun_RateLimitCooldown(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}
	ext.On("Extract", "a", mock.Anything).Return(nil, fmt.Errorf("submit: %w", extraction.ErrRateLimited)).Once()
	ext.On("Extract", "b", mock.Anything).Return(fieldsFor("1002", "V1", "9+"), nil).Once()
	ext.On("Extract", "c", mock.Anything).Return(nil, &extraction.ServiceError{Status: 503, Message: "busy"}).Once()

	pacing := 15 * time.Second
	cooldown := 30 * time.Second

	ch := make(chan ProgressEvent, 100)
	report := newTestOrchestrator(ext, clock).Run(context.Background(), referenceRows(),
		[]Document{
			{Filename: "1001_V1_MA_a.pdf", Data: []byte("a")},
			{Filename: "1002_V1_SA_b.pdf", Data: []byte("b")},
			{Filename: "1001_V1_MA_c.pdf", Data: []byte("c")},
		},
		Options{ModelID: mapping.ModelLP5, Pacing: pacing, Cooldown: cooldown}, ch)
	close(ch)

	require.Len(t, ext.calledAt, 3)
	assert.GreaterOrEqual(t, ext.calledAt[1].Sub(ext.calledAt[0]), pacing+cooldown)
	assert.Equal(t, pacing, ext.calledAt[2].Sub(ext.calledAt[1]))
	assert.Equal(t, []time.Duration{pacing + cooldown, pacing}, clock.sleeps)

	assert.Equal(t, ErrorRateLimit, report.Items[0].ErrorType)
	assert.True(t, report.Items[1].Succeeded())
	assert.Equal(t, ErrorNetwork, report.Items[2].ErrorType)
	assert.Equal(t, map[ErrorType]int{ErrorRateLimit: 1, ErrorNetwork: 1}, report.Aggregate.FailedByType)

	var types []string
	for evt := range ch {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []string{
		EventStart,
		EventItemStart, EventItemDone,
		EventCooldown, EventItemStart, EventItemDone,
		EventItemStart, EventItemDone,
		EventDone,
	}, types)
}

func TestRun_CancelBetweenDocuments(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}
	ext.On("Extract", "a", mock.Anything).Return(fieldsFor("1001", "V1", "6+"), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := newTestOrchestrator(ext, clock)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report := o.Run(ctx, referenceRows(),
		[]Document{
			{Filename: "1001_V1_MA_a.pdf", Data: []byte("a")},
			{Filename: "1002_V1_SA_b.pdf", Data: []byte("b")},
		},
		Options{Pacing: time.Second}, nil)

	assert.True(t, report.Cancelled)
	require.Len(t, report.Items, 1)
	assert.Equal(t, 1, report.Aggregate.TotalDocuments)
	ext.AssertNumberOfCalls(t, "Extract", 1)
}

func TestStart_StreamsDoneReport(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}
	ext.On("Extract", "a", mock.Anything).Return(fieldsFor("1001", "V1", "6+"), nil).Once()

	ch := newTestOrchestrator(ext, clock).Start(context.Background(), referenceRows(),
		[]Document{{Filename: "1001_V1_MA_a.pdf", Data: []byte("a")}}, Options{})

	var report *Report
	var itemDone *ItemResult
	for evt := range ch {
		switch evt.Type {
		case EventItemDone:
			itemDone, _ = evt.Data.(*ItemResult)
		case EventDone:
			report, _ = evt.Data.(*Report)
		}
	}
	require.NotNil(t, report)
	require.NotNil(t, itemDone)
	assert.Equal(t, "1001_V1_MA_a.pdf", itemDone.Filename)
	assert.Equal(t, 100, report.Aggregate.AverageMatchRate)
}

func TestRun_ItemDoneSurvivesSlowReader(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	ext := &mockExtractor{clock: clock}
	ext.On("Extract", "x", mock.Anything).Return(fieldsFor("1001", "V1", "6+"), nil)

	const n = 150
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{Filename: fmt.Sprintf("1001_V1_MA_%d.pdf", i), Data: []byte("x")}
	}

	ch := make(chan ProgressEvent)
	var got []int
	var sawDone bool
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for evt := range ch {
			time.Sleep(100 * time.Microsecond)
			switch evt.Type {
			case EventItemDone:
				got = append(got, evt.Index)
			case EventDone:
				sawDone = true
			}
		}
	}()

	report := newTestOrchestrator(ext, clock).Run(context.Background(), referenceRows(), docs, Options{}, ch)
	close(ch)
	<-drained

	require.Len(t, report.Items, n)
	require.Len(t, got, n)
	for i, idx := range got {
		assert.Equal(t, i, idx)
	}
	assert.True(t, sawDone)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ErrorType
	}{
		{nil, ""},
		{fmt.Errorf("poll: %w", extraction.ErrRateLimited), ErrorRateLimit},
		{errors.New("HTTP 429 Too Many Requests"), ErrorRateLimit},
		{errors.New("Rate limit exceeded, retry later"), ErrorRateLimit},
		{fmt.Errorf("%w after 30 attempts", extraction.ErrTimeout), ErrorNetwork},
		{&extraction.ServiceError{Status: 503, Message: "unavailable"}, ErrorNetwork},
		{&extraction.ServiceError{Status: 408}, ErrorNetwork},
		{&extraction.ServiceError{Status: 400, Message: "bad model"}, ErrorUnknown},
		{&extraction.ServiceError{Status: 404, Message: "Model 'pkg_v1429' not found"}, ErrorUnknown},
		{&extraction.ServiceError{Status: 429, Message: "slow down"}, ErrorRateLimit},
		{fmt.Errorf("analyze: %w", &url.Error{
			Op:  "Post",
			URL: "https://example.invalid/documentModels/pkg_v1429:analyze",
			Err: &net.DNSError{Err: "no such host", Name: "example.invalid"},
		}), ErrorNetwork},
		{errors.New("order 14290 rejected"), ErrorUnknown},
		{&net.DNSError{Err: "no such host", Name: "example.invalid"}, ErrorNetwork},
		{extraction.ErrAnalysisFailed, ErrorUnknown},
		{errors.New("boom"), ErrorUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), fmt.Sprint(tc.err))
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	agg := Summarize([]ItemResult{
		{Summary: compare.Summary{Total: 3, Correct: 2, Incorrect: 1}},
		{Summary: compare.Summary{Total: 1, Correct: 1}},
		{},
		{ErrorType: ErrorNetwork, Error: "timeout"},
	})
	assert.Equal(t, 4, agg.TotalDocuments)
	assert.Equal(t, 3, agg.Successful)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, compare.Summary{Total: 4, Correct: 3, Incorrect: 1}, agg.Fields)
	assert.Equal(t, 83, agg.AverageMatchRate)

	assert.Equal(t, 0, Summarize(nil).AverageMatchRate)
}
