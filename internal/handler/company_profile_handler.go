package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucmas-ksa/portal-api/internal/service"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
	"github.com/ucmas-ksa/portal-api/pkg/response"
)

// CompanyProfileHandler exposes seller profile administration endpoints.
type CompanyProfileHandler struct {
	profiles *service.CompanyProfileService
}

// NewCompanyProfileHandler constructs CompanyProfileHandler.
func NewCompanyProfileHandler(profiles *service.CompanyProfileService) *CompanyProfileHandler {
	return &CompanyProfileHandler{profiles: profiles}
}

// List godoc
// @Summary List company profiles
// @Tags CompanyProfiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /company-profiles [get]
func (h *CompanyProfileHandler) List(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles, nil)
}

// Get godoc
// @Summary Get company profile detail
// @Tags CompanyProfiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /company-profiles/{id} [get]
func (h *CompanyProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Create godoc
// @Summary Create company profile
// @Tags CompanyProfiles
// @Accept json
// @Produce json
// @Param payload body service.CompanyProfileRequest true "Profile payload"
// @Success 201 {object} response.Envelope
// @Router /company-profiles [post]
func (h *CompanyProfileHandler) Create(c *gin.Context) {
	var req service.CompanyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	profile, err := h.profiles.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// Update godoc
// @Summary Update company profile
// @Tags CompanyProfiles
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body service.CompanyProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /company-profiles/{id} [put]
func (h *CompanyProfileHandler) Update(c *gin.Context) {
	var req service.CompanyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Activate godoc
// @Summary Activate company profile
// @Description Marks the profile active and deactivates the previous one
// @Tags CompanyProfiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /company-profiles/{id}/activate [post]
func (h *CompanyProfileHandler) Activate(c *gin.Context) {
	profile, err := h.profiles.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
