package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/export"
	"github.com/nif-edu/fees-api/pkg/jobs"
	"github.com/nif-edu/fees-api/pkg/storage"
)

type archiveDatasetBuilder interface {
	BuildDataset(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) (export.Dataset, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportMetrics interface {
	RecordExportJob(format string, success bool)
}

// ExportConfig tunes the asynchronous export pipeline.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Workers         int
	Retries         int
}

type exportJobPayload struct {
	JobID  string
	Scope  models.TenantScope
	Filter models.ArchiveFilter
	Format models.ExportFormat
}

// ExportService renders archive exports in the background and hands out
// signed download tokens.
type ExportService struct {
	archives archiveDatasetBuilder
	storage  exportFileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	metrics  exportMetrics
	logger   *zap.Logger
	cfg      ExportConfig

	queue *jobs.Queue

	mu       sync.RWMutex
	jobsByID map[string]*models.ExportJob

	cleanupCancel context.CancelFunc
}

// NewExportService constructs an ExportService. metrics may be nil.
func NewExportService(archives archiveDatasetBuilder, store exportFileStorage, signer *storage.SignedURLSigner, metrics exportMetrics, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	s := &ExportService{
		archives: archives,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		jobsByID: make(map[string]*models.ExportJob),
	}
	s.queue = jobs.NewQueue("archive-exports", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 10 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers and the file cleanup loop.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	cleanupCtx, cancel := context.WithCancel(ctx)
	s.cleanupCancel = cancel
	go s.cleanupLoop(cleanupCtx)
}

// Stop drains the workers and stops the cleanup loop.
func (s *ExportService) Stop() {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.queue.Stop()
}

// Enqueue registers an export job and queues it for rendering.
func (s *ExportService) Enqueue(ctx context.Context, scope models.TenantScope, req models.ExportRequest) (*models.ExportJob, error) {
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", req.Format))
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		SchoolID:  scope.SchoolID,
		Format:    req.Format,
		Status:    models.ExportJobPending,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobsByID[job.ID] = job
	s.mu.Unlock()

	payload := exportJobPayload{
		JobID:  job.ID,
		Scope:  scope,
		Filter: models.ArchiveFilter{ProgramType: req.ProgramType, Status: req.Status},
		Format: req.Format,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "archive-export", Payload: payload}); err != nil {
		s.failJob(job.ID, err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}

	return s.snapshotJob(job.ID), nil
}

// GetJob returns the tracked state of one export job.
func (s *ExportService) GetJob(id string) (*models.ExportJob, error) {
	job := s.snapshotJob(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *ExportService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, relPath, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		s.logger.Error("unexpected export payload", zap.String("job_id", job.ID))
		return nil
	}

	s.setStatus(payload.JobID, models.ExportJobRunning)

	dataset, err := s.archives.BuildDataset(ctx, payload.Scope, payload.Filter)
	if err != nil {
		s.failJob(payload.JobID, appErrors.FromError(err).Message)
		s.recordOutcome(payload.Format, false)
		return err
	}

	var rendered []byte
	switch payload.Format {
	case models.ExportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Archived Students")
	default:
		err = fmt.Errorf("unsupported format %s", payload.Format)
	}
	if err != nil {
		s.failJob(payload.JobID, err.Error())
		s.recordOutcome(payload.Format, false)
		return err
	}

	filename := buildExportFilename(payload)
	relPath, err := s.storage.Save(filename, rendered)
	if err != nil {
		s.failJob(payload.JobID, err.Error())
		s.recordOutcome(payload.Format, false)
		return err
	}

	token, expiresAt, err := s.signer.Generate(payload.JobID, relPath)
	if err != nil {
		s.failJob(payload.JobID, err.Error())
		s.recordOutcome(payload.Format, false)
		return err
	}

	url := strings.TrimRight(s.cfg.APIPrefix, "/")
	if url == "" {
		url = "/api/v1"
	}
	url = fmt.Sprintf("%s/archives/exports/download/%s", url, token)

	s.completeJob(payload.JobID, relPath, token, url, expiresAt)
	s.recordOutcome(payload.Format, true)
	s.logger.Info("archive export rendered",
		zap.String("job_id", payload.JobID),
		zap.String("format", string(payload.Format)),
		zap.String("file", relPath))
	return nil
}

func buildExportFilename(payload exportJobPayload) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	school := payload.Scope.SchoolID
	if school == "" {
		school = "all"
	}
	return fmt.Sprintf("archives_%s_%s.%s", school, timestamp, payload.Format)
}

func (s *ExportService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
			}
		}
	}
}

func (s *ExportService) setStatus(id string, status models.ExportJobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobsByID[id]; ok {
		job.Status = status
	}
}

func (s *ExportService) failJob(id, reason string) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobsByID[id]; ok {
		job.Status = models.ExportJobFailed
		job.Error = reason
		job.CompletedAt = &now
	}
}

func (s *ExportService) completeJob(id, relPath, token, url string, expiresAt time.Time) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobsByID[id]; ok {
		job.Status = models.ExportJobCompleted
		job.FilePath = relPath
		job.Token = token
		job.DownloadURL = url
		job.CompletedAt = &now
		job.ExpiresAt = &expiresAt
		job.Error = ""
	}
}

func (s *ExportService) snapshotJob(id string) *models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobsByID[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func (s *ExportService) recordOutcome(format models.ExportFormat, success bool) {
	if s.metrics != nil {
		s.metrics.RecordExportJob(string(format), success)
	}
}
