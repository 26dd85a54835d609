package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
)

func newValidatedJob() *models.BatchJob {
	return &models.BatchJob{
		TemplateID: "classic",
		Records: []models.CertificateRecord{
			{Row: 2, StudentName: "Ada Lovelace", StudentID: "STU-001"},
			{Row: 3, StudentName: "Alan Turing", StudentID: "STU-002"},
		},
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore(time.Hour, nil)

	id := store.Create(newValidatedJob())
	require.NotEmpty(t, id)

	job, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusValidated, job.Status)
	assert.Len(t, job.Records, 2)
}

func TestJobStoreGetUnknown(t *testing.T) {
	store := NewJobStore(time.Hour, nil)

	_, err := store.Get("missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestJobStoreStartProcessingRejectsSecondStart(t *testing.T) {
	store := NewJobStore(time.Hour, nil)
	id := store.Create(newValidatedJob())

	records, job, err := store.StartProcessing(id)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, models.BatchStatusProcessing, job.Status)

	_, _, err = store.StartProcessing(id)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrJobProcessing.Code, appErr.Code)
}

func TestJobStoreStartProcessingRejectsTerminal(t *testing.T) {
	store := NewJobStore(time.Hour, nil)
	id := store.Create(newValidatedJob())

	_, _, err := store.StartProcessing(id)
	require.NoError(t, err)
	store.Complete(id, nil, &models.BatchSummary{Total: 2})

	_, _, err = store.StartProcessing(id)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestJobStoreRecordsCopyIsIsolated(t *testing.T) {
	store := NewJobStore(time.Hour, nil)
	id := store.Create(newValidatedJob())

	records, _, err := store.StartProcessing(id)
	require.NoError(t, err)

	records[0].CertificateID = "CERT-2026-1-AAAA"

	job, err := store.Get(id)
	require.NoError(t, err)
	assert.Empty(t, job.Records[0].CertificateID)
}

func TestJobStoreCompleteIsTerminal(t *testing.T) {
	store := NewJobStore(time.Hour, nil)
	id := store.Create(newValidatedJob())

	_, _, err := store.StartProcessing(id)
	require.NoError(t, err)

	store.SetProgress(id, models.PhaseProgress{Phase: models.PhaseChainSubmission, Current: 1, Total: 2, Percent: 50})
	job, err := store.Get(id)
	require.NoError(t, err)
	require.NotNil(t, job.Progress)
	assert.Equal(t, models.PhaseChainSubmission, job.Progress.Phase)

	results := []models.BatchRecordResult{{Row: 2, Success: true}, {Row: 3, Success: false}}
	store.Complete(id, results, &models.BatchSummary{Total: 2, BlockchainSuccess: 1})

	job, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	assert.True(t, job.Terminal())
	assert.Nil(t, job.Progress)
	assert.NotNil(t, job.CompletedAt)
	assert.Len(t, job.Results, 2)
}

func TestJobStoreFail(t *testing.T) {
	store := NewJobStore(time.Hour, nil)
	id := store.Create(newValidatedJob())

	_, _, err := store.StartProcessing(id)
	require.NoError(t, err)
	store.Fail(id, "chain session could not be opened")

	job, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, job.Status)
	assert.Equal(t, "chain session could not be opened", job.Error)
}

func TestJobStoreEviction(t *testing.T) {
	store := NewJobStore(time.Minute, nil)
	id := store.Create(newValidatedJob())

	_, _, err := store.StartProcessing(id)
	require.NoError(t, err)
	store.Complete(id, nil, &models.BatchSummary{Total: 2})

	// Not yet expired.
	store.evictExpired(time.Now().UTC())
	_, err = store.Get(id)
	require.NoError(t, err)

	// Past the TTL.
	store.evictExpired(time.Now().UTC().Add(2 * time.Minute))
	_, err = store.Get(id)
	require.Error(t, err)
}

func TestJobStoreEvictionSkipsActiveJobs(t *testing.T) {
	store := NewJobStore(time.Minute, nil)
	id := store.Create(newValidatedJob())

	store.evictExpired(time.Now().UTC().Add(48 * time.Hour))
	_, err := store.Get(id)
	require.NoError(t, err)
}
