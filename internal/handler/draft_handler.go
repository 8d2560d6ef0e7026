package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/service"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
	"github.com/ucmas-ksa/portal-api/pkg/response"
)

// DraftHandler exposes the registration wizard endpoints. Drafts live in
// Redis per owner until committed or expired.
type DraftHandler struct {
	drafts *service.DraftService
}

// NewDraftHandler constructs DraftHandler.
func NewDraftHandler(drafts *service.DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// Create godoc
// @Summary Start a registration draft
// @Tags Drafts
// @Accept json
// @Produce json
// @Param payload body service.CreateDraftRequest true "Draft target"
// @Success 201 {object} response.Envelope
// @Router /drafts [post]
func (h *DraftHandler) Create(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	draft, err := h.drafts.Create(c.Request.Context(), jwtClaims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, draft)
}

// List godoc
// @Summary List the caller's open drafts
// @Tags Drafts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /drafts [get]
func (h *DraftHandler) List(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	drafts, err := h.drafts.List(c.Request.Context(), jwtClaims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drafts, nil)
}

// Get godoc
// @Summary Get a draft
// @Tags Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 200 {object} response.Envelope
// @Router /drafts/{id} [get]
func (h *DraftHandler) Get(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	draft, err := h.drafts.Get(c.Request.Context(), jwtClaims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// SaveStudentStep godoc
// @Summary Save the student step of a draft
// @Tags Drafts
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body models.DraftStudentStep true "Student step"
// @Success 200 {object} response.Envelope
// @Router /drafts/{id}/student [put]
func (h *DraftHandler) SaveStudentStep(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var step models.DraftStudentStep
	if err := c.ShouldBindJSON(&step); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	draft, err := h.drafts.SaveStudentStep(c.Request.Context(), jwtClaims, c.Param("id"), step)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// SaveGuardianStep godoc
// @Summary Save the guardian step of a draft
// @Tags Drafts
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body models.DraftGuardianStep true "Guardian step"
// @Success 200 {object} response.Envelope
// @Router /drafts/{id}/guardian [put]
func (h *DraftHandler) SaveGuardianStep(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var step models.DraftGuardianStep
	if err := c.ShouldBindJSON(&step); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	draft, err := h.drafts.SaveGuardianStep(c.Request.Context(), jwtClaims, c.Param("id"), step)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Commit godoc
// @Summary Commit a completed draft
// @Description Creates the student and its draft enrollment or registration,
// @Description then discards the wizard state
// @Tags Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 201 {object} response.Envelope
// @Router /drafts/{id}/commit [post]
func (h *DraftHandler) Commit(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.drafts.Commit(c.Request.Context(), jwtClaims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Discard a draft
// @Tags Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 204 {object} response.Envelope
// @Router /drafts/{id} [delete]
func (h *DraftHandler) Delete(c *gin.Context) {
	jwtClaims := claimsFromContext(c)
	if jwtClaims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.drafts.Delete(c.Request.Context(), jwtClaims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
