package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nif-edu/fees-api/internal/models"
	"github.com/nif-edu/fees-api/internal/service"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/response"
)

// ExamHandler exposes exam result endpoints.
type ExamHandler struct {
	exams *service.ExamService
}

// NewExamHandler constructs ExamHandler.
func NewExamHandler(exams *service.ExamService) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// List godoc
// @Summary List exam results
// @Tags Exams
// @Produce json
// @Param examId query string false "Filter by exam"
// @Param studentId query string false "Filter by student"
// @Param published query bool false "Filter by published state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exam-results [get]
func (h *ExamHandler) List(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	var filter models.ExamResultFilter
	filter.ExamID = c.Query("examId")
	filter.StudentID = c.Query("studentId")
	if published := c.Query("published"); published != "" {
		if published == "true" {
			v := true
			filter.Published = &v
		} else if published == "false" {
			v := false
			filter.Published = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	results, total, err := h.exams.List(c.Request.Context(), scope, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, results, pagination)
}

// Get godoc
// @Summary Get exam result
// @Tags Exams
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Router /exam-results/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	result, err := h.exams.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Record an exam result
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body models.CreateExamResultRequest true "Result payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exam-results [post]
func (h *ExamHandler) Create(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	var req models.CreateExamResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.exams.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update an unpublished exam result
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Result ID"
// @Param payload body models.UpdateExamResultRequest true "Result payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exam-results/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	scope, _ := scopeFromContext(c)

	var req models.UpdateExamResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.exams.Update(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Publish godoc
// @Summary Publish every result of an exam
// @Description Flips all unpublished results for the exam; published results become immutable
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body object true "Exam selector {exam_id}"
// @Success 200 {object} response.Envelope
// @Router /exam-results/publish [post]
func (h *ExamHandler) Publish(c *gin.Context) {
	scope, _ := scopeFromContext(c)
	claims := claimsFromContext(c)

	var payload struct {
		ExamID string `json:"exam_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "exam_id is required"))
		return
	}

	count, err := h.exams.Publish(c.Request.Context(), scope, payload.ExamID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"published": count}, nil)
}
