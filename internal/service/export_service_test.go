package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/storage"
)

func newExportFixture(t *testing.T, archives *mockArchiveRepo) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	archiveSvc := newArchiveService(archives, &mockStudentReader{}, newMockFeeRepo(), nil, nil)
	return NewExportService(archiveSvc, store, signer, nil, ExportConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
		Workers:   1,
	}, nil)
}

func seedArchive() *mockArchiveRepo {
	repo := newMockArchiveRepo()
	repo.archives["arc-1"] = &models.ArchivedStudent{
		ID:            "arc-1",
		SchoolID:      "school-a",
		AdmissionNo:   "NIF-001",
		FullName:      "Asha Rao",
		ProgramType:   models.ProgramBVoc,
		Course:        "Interior Design",
		AcademicYear:  "2025-26",
		FeeTotal:      191000,
		FeePaid:       191000,
		ArchiveStatus: "completed",
		ArchivedAt:    time.Now().UTC(),
	}
	return repo
}

func waitForJob(t *testing.T, svc *ExportService, id string) *models.ExportJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("export job did not finish")
		case <-time.After(20 * time.Millisecond):
		}
		job, err := svc.GetJob(id)
		require.NoError(t, err)
		if job.Status == models.ExportJobCompleted || job.Status == models.ExportJobFailed {
			return job
		}
	}
}

func TestExportCSVJobLifecycle(t *testing.T) {
	svc := newExportFixture(t, seedArchive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	scope := models.TenantScope{SchoolID: "school-a"}
	job, err := svc.Enqueue(ctx, scope, models.ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobPending, job.Status)

	finished := waitForJob(t, svc, job.ID)
	require.Equal(t, models.ExportJobCompleted, finished.Status)
	assert.NotEmpty(t, finished.Token)
	assert.Contains(t, finished.DownloadURL, "/api/v1/archives/exports/download/")
	require.NotNil(t, finished.ExpiresAt)

	file, _, err := svc.ResolveDownload(finished.Token)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "NIF-001")
	assert.Contains(t, string(content), "Admission No")
}

func TestExportPDFJobProducesFile(t *testing.T) {
	svc := newExportFixture(t, seedArchive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Enqueue(ctx, models.TenantScope{SchoolID: "school-a"}, models.ExportRequest{Format: models.ExportFormatPDF})
	require.NoError(t, err)

	finished := waitForJob(t, svc, job.ID)
	require.Equal(t, models.ExportJobCompleted, finished.Status)

	file, _, err := svc.ResolveDownload(finished.Token)
	require.NoError(t, err)
	defer file.Close()
	header := make([]byte, 4)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := newExportFixture(t, seedArchive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	_, err := svc.Enqueue(ctx, models.TenantScope{SchoolID: "school-a"}, models.ExportRequest{Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportUnknownJob(t *testing.T) {
	svc := newExportFixture(t, seedArchive())
	_, err := svc.GetJob("ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportDownloadRejectsTamperedToken(t *testing.T) {
	svc := newExportFixture(t, seedArchive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Enqueue(ctx, models.TenantScope{SchoolID: "school-a"}, models.ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	finished := waitForJob(t, svc, job.ID)
	require.Equal(t, models.ExportJobCompleted, finished.Status)

	_, _, err = svc.ResolveDownload(finished.Token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
