package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/validation"
)

type ContractorHandler struct {
	DB *gorm.DB
}

func NewContractorHandler(db *gorm.DB) *ContractorHandler { return &ContractorHandler{DB: db} }

type contractorRequest struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Skills     string          `json:"skills"`
	RateType   string          `json:"rate_type"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	FlatRate   decimal.Decimal `json:"flat_rate"`
	Notes      string          `json:"notes"`
}

func (req *contractorRequest) validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	validation.OneOf("rate_type", req.RateType, []string{models.RateTypeHourly, models.RateTypeFlat}, v)
	validation.NonNegativeDecimal("hourly_rate", req.HourlyRate, v)
	validation.NonNegativeDecimal("flat_rate", req.FlatRate, v)
	return v
}

func (h *ContractorHandler) Collection(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		var contractors []models.Contractor
		if err := h.DB.Where("user_id = ?", uid).Order("name asc").Find(&contractors).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, contractors)
	case http.MethodPost:
		var req contractorRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if v := req.validate(); !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		c := models.Contractor{
			UserID: uid, Name: req.Name, Email: req.Email, Skills: req.Skills,
			RateType: req.RateType, HourlyRate: req.HourlyRate, FlatRate: req.FlatRate, Notes: req.Notes,
		}
		if err := h.DB.Create(&c).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w)
	}
}

func (h *ContractorHandler) Item(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var c models.Contractor
	err := h.DB.Where("user_id = ?", uid).First(&c, queryID(r, "id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, c)
	case http.MethodPut:
		var req contractorRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if v := req.validate(); !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		c.Name = req.Name
		c.Email = req.Email
		c.Skills = req.Skills
		c.RateType = req.RateType
		c.HourlyRate = req.HourlyRate
		c.FlatRate = req.FlatRate
		c.Notes = req.Notes
		if err := h.DB.Save(&c).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if err := h.DB.Delete(&c).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		methodNotAllowed(w)
	}
}
