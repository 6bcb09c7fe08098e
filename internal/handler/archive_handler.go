package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nif-edu/fees-api/internal/models"
	"github.com/nif-edu/fees-api/internal/service"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/export"
	"github.com/nif-edu/fees-api/pkg/response"
)

// ArchiveHandler exposes archival and export endpoints.
type ArchiveHandler struct {
	archives *service.ArchiveService
	exports  *service.ExportService
	csv      *export.CSVExporter
}

// NewArchiveHandler constructs ArchiveHandler.
func NewArchiveHandler(archives *service.ArchiveService, exports *service.ExportService) *ArchiveHandler {
	return &ArchiveHandler{archives: archives, exports: exports, csv: export.NewCSVExporter()}
}

// Archive godoc
// @Summary Archive a student
// @Description Snapshots the student and their ledger, then flags the live row
// @Tags Archives
// @Accept json
// @Produce json
// @Param payload body models.ArchiveStudentRequest true "Archive payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /archives [post]
func (h *ArchiveHandler) Archive(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	claims := claimsFromContext(c)

	var req models.ArchiveStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	archived, err := h.archives.Archive(c.Request.Context(), scope, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archived)
}

// List godoc
// @Summary List archived students
// @Tags Archives
// @Produce json
// @Param search query string false "Search by name or admission number"
// @Param programType query string false "Filter by program type"
// @Param status query string false "Filter by archive status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /archives [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	var filter models.ArchiveFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.ProgramType = models.ProgramType(c.Query("programType"))
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	archives, total, err := h.archives.List(c.Request.Context(), scope, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, archives, pagination)
}

// Get godoc
// @Summary Get archived student with snapshot
// @Tags Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Router /archives/{id} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	archived, err := h.archives.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, archived, nil)
}

// Restore godoc
// @Summary Restore an archived student
// @Tags Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Failure 501 {object} response.Envelope
// @Router /archives/{id}/restore [put]
func (h *ArchiveHandler) Restore(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	if err := h.archives.Restore(c.Request.Context(), scope, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ArchiveStudent godoc
// @Summary Archive a student by id
// @Description Shortcut for POST /archives; status defaults to completed
// @Tags Archives
// @Produce json
// @Param id path string true "Student ID"
// @Param status query string false "Archive status (completed, dropped, transferred)"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *ArchiveHandler) ArchiveStudent(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	claims := claimsFromContext(c)

	req := models.ArchiveStudentRequest{
		StudentID: c.Param("id"),
		Status:    c.DefaultQuery("status", "completed"),
	}
	archived, err := h.archives.Archive(c.Request.Context(), scope, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archived)
}

// ExportCSV godoc
// @Summary Download archived students as CSV
// @Description Streams the full filtered set as an attachment
// @Tags Archives
// @Produce text/csv
// @Param programType query string false "Filter by program type"
// @Param status query string false "Filter by archive status"
// @Success 200 {file} file
// @Router /archives/export [get]
func (h *ArchiveHandler) ExportCSV(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	filter := models.ArchiveFilter{
		ProgramType: models.ProgramType(c.Query("programType")),
		Status:      c.Query("status"),
	}
	dataset, err := h.archives.BuildDataset(c.Request.Context(), scope, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	rendered, err := h.csv.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv rendering failed"))
		return
	}

	filename := fmt.Sprintf("archives_%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", rendered)
}

// Export godoc
// @Summary Start an asynchronous archive export
// @Description Queues a CSV or PDF render; poll the returned job for the download link
// @Tags Archives
// @Accept json
// @Produce json
// @Param payload body models.ExportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /archives/exports [post]
func (h *ArchiveHandler) Export(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.exports.Enqueue(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// ExportStatus godoc
// @Summary Get export job status
// @Tags Archives
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /archives/exports/{id} [get]
func (h *ArchiveHandler) ExportStatus(c *gin.Context) {
	job, err := h.exports.GetJob(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export
// @Description Streams the rendered file; the token is signed and expires with the job
// @Tags Archives
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /archives/exports/download/{token} [get]
func (h *ArchiveHandler) Download(c *gin.Context) {
	file, relPath, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not read export file"))
		return
	}

	filename := filepath.Base(relPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", contentTypeFor(filename))
	http.ServeContent(c.Writer, c.Request, filename, info.ModTime(), file)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
