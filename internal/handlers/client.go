package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/validation"
)

type ClientHandler struct {
	DB *gorm.DB
}

func NewClientHandler(db *gorm.DB) *ClientHandler { return &ClientHandler{DB: db} }

type clientRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes"`
}

// Collection handles GET /clients (list) and POST /clients (create).
func (h *ClientHandler) Collection(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		dbq := h.DB.Where("user_id = ?", uid)
		if q := r.URL.Query().Get("q"); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("lower(name) LIKE ? OR lower(company) LIKE ?", like, like)
		}
		var clients []models.Client
		if err := dbq.Order("name asc").Find(&clients).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, clients)
	case http.MethodPost:
		var req clientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v := validation.Violations{}
		validation.Required("name", req.Name, v)
		validation.Required("email", req.Email, v)
		if !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		client := models.Client{UserID: uid, Name: req.Name, Company: req.Company, Email: req.Email, Phone: req.Phone, Notes: req.Notes}
		if err := h.DB.Create(&client).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusCreated, client)
	default:
		methodNotAllowed(w)
	}
}

// Item handles GET/PUT/DELETE /clients/item?id=N.
func (h *ClientHandler) Item(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var client models.Client
	err := h.DB.Where("user_id = ?", uid).First(&client, queryID(r, "id")).Error
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
		httpx.JSON(w, http.StatusOK, client)
	case http.MethodPut:
		var req clientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v := validation.Violations{}
		validation.Required("name", req.Name, v)
		if !v.Empty() {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
			return
		}
		client.Name = req.Name
		client.Company = req.Company
		client.Email = req.Email
		client.Phone = req.Phone
		client.Notes = req.Notes
		if err := h.DB.Save(&client).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, client)
	case http.MethodDelete:
		if err := h.DB.Delete(&client).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		methodNotAllowed(w)
	}
}
