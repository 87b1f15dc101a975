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

type TemplateHandler struct {
	DB *gorm.DB
}

func NewTemplateHandler(db *gorm.DB) *TemplateHandler { return &TemplateHandler{DB: db} }

type templateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	Taxable     bool            `json:"taxable"`
}

func (h *TemplateHandler) Collection(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		// user_id = 0 rows are the seeded shared templates
		var templates []models.ServiceTemplate
		if err := h.DB.Where("user_id = ? OR user_id = 0", uid).Order("name asc").Find(&templates).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, templates)
	case http.MethodPost:
		var req templateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v := validation.Violations{}
		validation.Required("name", req.Name, v)
		validation.NonNegativeDecimal("default_rate", req.DefaultRate, v)
		if !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		t := models.ServiceTemplate{UserID: uid, Name: req.Name, Description: req.Description, DefaultRate: req.DefaultRate, Taxable: req.Taxable}
		if err := h.DB.Create(&t).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w)
	}
}

func (h *TemplateHandler) Item(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var t models.ServiceTemplate
	err := h.DB.Where("user_id = ?", uid).First(&t, queryID(r, "id")).Error
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
		httpx.JSON(w, http.StatusOK, t)
	case http.MethodPut:
		var req templateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v := validation.Violations{}
		validation.Required("name", req.Name, v)
		validation.NonNegativeDecimal("default_rate", req.DefaultRate, v)
		if !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		t.Name = req.Name
		t.Description = req.Description
		t.DefaultRate = req.DefaultRate
		t.Taxable = req.Taxable
		if err := h.DB.Save(&t).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := h.DB.Delete(&t).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		methodNotAllowed(w)
	}
}
