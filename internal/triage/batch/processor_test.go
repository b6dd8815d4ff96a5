package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/item-triage/internal/category"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/cuongbtq/item-triage/internal/triage/lock"
	"github.com/cuongbtq/item-triage/internal/triage/progress"
	"github.com/cuongbtq/item-triage/internal/triage/triagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCategory = "iz_no_row_tray"

var fixedNow = time.Date(2026, 10, 18, 23, 55, 0, 0, time.UTC)

// stubCategory matches items whose location is "ocs" and fails Apply for listed barcodes
type stubCategory struct {
	applyErrs map[string]error
	applied   []string
}

func (c *stubCategory) Name() string { return testCategory }

func (c *stubCategory) Matches(item *domain.Item) bool { return item.Location == "ocs" }

func (c *stubCategory) Apply(_ context.Context, tc category.TriageContext) error {
	c.applied = append(c.applied, tc.JobID+"/"+tc.Item.Barcode)
	return c.applyErrs[tc.Item.Barcode]
}

type recordingProgress struct {
	calls [][3]any
	err   error
}

func (r *recordingProgress) UpdateProgress(_ context.Context, jobID string, processed, failed int) error {
	r.calls = append(r.calls, [3]any{jobID, processed, failed})
	return r.err
}

type fixture struct {
	category  *stubCategory
	directory *triagetest.Directory
	staging   *triagetest.StagingStore
	outcomes  *triagetest.OutcomeStore
	progress  *recordingProgress
	lockData  *lock.MemoryStore
	locks     *lock.Manager
	processor *Processor
}

func newFixture() *fixture {
	f := &fixture{
		category:  &stubCategory{applyErrs: map[string]error{}},
		directory: triagetest.NewDirectory(),
		staging:   triagetest.NewStagingStore(),
		outcomes:  triagetest.NewOutcomeStore(),
		progress:  &recordingProgress{},
		lockData:  lock.NewMemoryStore(),
	}
	logger := triagetest.Logger()
	f.locks = lock.NewManager(f.lockData, f.staging, logger).WithClock(func() time.Time { return fixedNow })
	f.processor = New(&Config{
		Logger:     logger,
		Categories: category.NewRegistry(f.category),
		Directory:  f.directory,
		Staging:    f.staging,
		Outcomes:   f.outcomes,
		Progress:   f.progress,
		Locks:      f.locks,
	}).WithClock(func() time.Time { return fixedNow })
	return f
}

func message(keys ...string) domain.BatchMessage {
	items := make([]domain.BatchItem, len(keys))
	for i, k := range keys {
		items[i] = domain.BatchItem{ItemKey: k, InstitutionCode: "gt"}
	}
	return domain.BatchMessage{JobID: "job-1", Category: testCategory, BatchNumber: 1, Items: items}
}

func TestProcessBatch_Outcomes(t *testing.T) {
	f := newFixture()
	f.staging.Stage(testCategory, "gt", "A", "B", "C", "D", "E")
	f.directory.Add(domain.Item{Barcode: "A", InstitutionCode: "gt", Location: "ocs"})
	f.directory.Add(domain.Item{Barcode: "C", InstitutionCode: "gt", Location: "main"})
	f.directory.Add(domain.Item{Barcode: "D", InstitutionCode: "gt", Location: "ocs"})
	f.category.applyErrs["D"] = errors.New("failed to queue update message: channel closed")

	result, err := f.processor.ProcessBatch(context.Background(), message("A", "B", "C", "D"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 3, result.Failed)

	want := map[string]domain.ItemOutcome{
		"A": {JobID: "job-1", ItemKey: "A", InstitutionCode: "gt", Success: true, ProcessedAt: fixedNow},
		"B": {JobID: "job-1", ItemKey: "B", InstitutionCode: "gt", Reason: domain.ReasonNotFound, ProcessedAt: fixedNow},
		"C": {JobID: "job-1", ItemKey: "C", InstitutionCode: "gt", Reason: domain.ReasonNoLongerMeetsRule, ProcessedAt: fixedNow},
		"D": {JobID: "job-1", ItemKey: "D", InstitutionCode: "gt", Reason: "failed to queue update message: channel closed", ProcessedAt: fixedNow},
	}
	for key, expected := range want {
		got, ok := f.outcomes.Get("job-1", key)
		require.True(t, ok, key)
		assert.Equal(t, expected, got, key)
	}

	assert.Equal(t, []string{"job-1/A", "job-1/D"}, f.category.applied)
	// every batch item leaves staging regardless of outcome
	assert.Equal(t, []string{"E"}, f.staging.Keys(testCategory))
	assert.Equal(t, [][3]any{{"job-1", 1, 3}}, f.progress.calls)
}

func TestProcessBatch_NotFoundItemIsUnstaged(t *testing.T) {
	f := newFixture()
	f.staging.Stage(testCategory, "gt", "A")
	f.directory.Errs["A"] = errors.New("directory unavailable after 3 attempts")

	result, err := f.processor.ProcessBatch(context.Background(), message("A"))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Failed)
	got, ok := f.outcomes.Get("job-1", "A")
	require.True(t, ok)
	assert.False(t, got.Success)
	assert.Equal(t, domain.ReasonNotFound, got.Reason)
	assert.Empty(t, f.staging.Keys(testCategory))
}

func TestProcessBatch_ReleasesLockWhenDrained(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.staging.Stage(testCategory, "gt", "A", "B")
	require.Equal(t, lock.Acquired, f.locks.TryAcquire(ctx, testCategory, time.Hour))

	_, err := f.processor.ProcessBatch(ctx, message("A"))
	require.NoError(t, err)
	held, err := f.lockData.Get(ctx, testCategory)
	require.NoError(t, err)
	assert.NotNil(t, held, "lock kept while B is staged")

	_, err = f.processor.ProcessBatch(ctx, message("B"))
	require.NoError(t, err)
	held, err = f.lockData.Get(ctx, testCategory)
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestProcessBatch_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture()
	f.directory.Add(domain.Item{Barcode: "A", InstitutionCode: "gt", Location: "ocs"})

	_, err := f.processor.ProcessBatch(context.Background(), message("A"))
	require.NoError(t, err)
	_, err = f.processor.ProcessBatch(context.Background(), message("A"))
	require.NoError(t, err)

	outcomes, err := f.outcomes.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, []string{"job-1/A", "job-1/A"}, f.category.applied)
}

func TestProcessBatch_Failures(t *testing.T) {
	t.Run("unknown category", func(t *testing.T) {
		f := newFixture()
		msg := message("A")
		msg.Category = "scf_duplicates"

		_, err := f.processor.ProcessBatch(context.Background(), msg)
		assert.ErrorIs(t, err, domain.ErrUnknownCategory)
		assert.Zero(t, f.directory.Calls)
		assert.Empty(t, f.progress.calls)
	})

	t.Run("progress update fails is retryable", func(t *testing.T) {
		f := newFixture()
		f.progress.err = errors.New("too many conflicts")

		result, err := f.processor.ProcessBatch(context.Background(), message("A"))
		require.Error(t, err)
		var retryable *domain.RetryableError
		assert.ErrorAs(t, err, &retryable)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("outcome and staging errors do not stop the batch", func(t *testing.T) {
		f := newFixture()
		f.outcomes.PutErr = errors.New("insert failed")
		f.staging.Stage(testCategory, "gt", "A", "B")
		f.staging.DeleteErr["A"] = errors.New("delete failed")

		result, err := f.processor.ProcessBatch(context.Background(), message("A", "B"))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Failed)
		assert.Equal(t, []string{"A"}, f.staging.Keys(testCategory))
		assert.Len(t, f.progress.calls, 1)
	})
}

func TestProcessBatch_JobCompletesAcrossBatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	jobs := triagetest.NewJobStore()
	require.NoError(t, jobs.Create(ctx, &domain.BatchJob{
		JobID: "job-1", Category: testCategory, Status: domain.JobStatusInProgress,
		TotalItems: 5, TotalBatches: 3, CreatedAt: fixedNow,
	}))
	reports := &countingReports{}
	f.processor.progress = progress.New(&progress.Config{
		Logger:        triagetest.Logger(),
		Jobs:          jobs,
		Reports:       reports,
		RetryInterval: time.Millisecond,
	})

	for _, key := range []string{"A", "B", "C", "D"} {
		f.directory.Add(domain.Item{Barcode: key, InstitutionCode: "gt", Location: "ocs"})
	}
	f.category.applyErrs["D"] = errors.New("boom")

	batches := [][]string{{"A", "B"}, {"C", "D"}, {"E"}}
	for i, keys := range batches {
		msg := message(keys...)
		msg.BatchNumber = i + 1
		_, err := f.processor.ProcessBatch(ctx, msg)
		require.NoError(t, err)
	}

	job, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProcessedItems)
	assert.Equal(t, 2, job.FailedItems)
	assert.Equal(t, job.TotalItems, job.ProcessedItems+job.FailedItems)
	assert.Equal(t, 1, reports.calls)
}

type countingReports struct {
	calls int
}

func (r *countingReports) GenerateFinalReport(context.Context, *domain.BatchJob) error {
	r.calls++
	return nil
}
