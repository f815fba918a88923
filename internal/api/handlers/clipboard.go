package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clipboard-service/internal/api/middleware"
	"clipboard-service/internal/models"
	"clipboard-service/internal/repositories/mongodb"
	"clipboard-service/internal/services"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

type ClipboardHandler struct {
	clipboardService *services.ClipboardService
	publicURL        string
}

func NewClipboardHandler(clipboardService *services.ClipboardService, publicURL string) *ClipboardHandler {
	return &ClipboardHandler{
		clipboardService: clipboardService,
		publicURL:        publicURL,
	}
}

type createClipboardRequest struct {
	Title    string     `json:"title" binding:"max=200"`
	Content  string     `json:"content"`
	Password string     `json:"password"`
	ExpireAt *time.Time `json:"expireAt"`
	ReadOnly bool       `json:"readOnly"`
}

type updateClipboardRequest struct {
	Title    *string    `json:"title" binding:"omitempty,max=200"`
	Content  *string    `json:"content"`
	Password *string    `json:"password"`
	ExpireAt *time.Time `json:"expireAt"`
	ReadOnly *bool      `json:"readOnly"`
	Favorite *bool      `json:"favorite"`
}

// Create godoc
// @Summary Create a clipboard entry
// @Tags clipboards
// @Accept json
// @Produce json
// @Router /clipboards [post]
func (h *ClipboardHandler) Create(c *gin.Context) {
	var req createClipboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ExpireAt != nil && req.ExpireAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expireAt must be in the future"})
		return
	}

	clip, err := h.clipboardService.Create(c.Request.Context(), middleware.UserID(c), services.CreateClipboardInput{
		Title:    req.Title,
		Content:  req.Content,
		Password: req.Password,
		ExpireAt: req.ExpireAt,
		ReadOnly: req.ReadOnly,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create clipboard"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": clip})
}

// Get godoc
// @Summary Fetch a clipboard entry
// @Tags clipboards
// @Produce json
// @Param id path string true "Clipboard ID"
// @Param password query string false "Entry password, when protected"
// @Router /clipboards/{id} [get]
func (h *ClipboardHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidClipboardID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		return
	}

	clip, err := h.clipboardService.Get(c.Request.Context(), id, middleware.UserID(c), c.Query("password"))
	if err != nil {
		switch {
		case errors.Is(err, mongodb.ErrClipboardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		case errors.Is(err, services.ErrPasswordRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "password required", "passwordRequired": true})
		case errors.Is(err, services.ErrInvalidPassword):
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch clipboard"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": clip})
}

// List godoc
// @Summary List the authenticated user's clipboard entries
// @Tags clipboards
// @Produce json
// @Security BearerAuth
// @Router /clipboards [get]
func (h *ClipboardHandler) List(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	entries, total, err := h.clipboardService.List(c.Request.Context(), middleware.UserID(c), c.Query("search"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clipboards"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "total": total, "page": page, "limit": limit})
}

// Update godoc
// @Summary Update a clipboard entry
// @Tags clipboards
// @Accept json
// @Produce json
// @Param id path string true "Clipboard ID"
// @Router /clipboards/{id} [put]
func (h *ClipboardHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidClipboardID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		return
	}

	var req updateClipboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clip, err := h.clipboardService.Update(c.Request.Context(), id, middleware.UserID(c), services.UpdateClipboardInput{
		Title:    req.Title,
		Content:  req.Content,
		Password: req.Password,
		ExpireAt: req.ExpireAt,
		ReadOnly: req.ReadOnly,
		Favorite: req.Favorite,
	})
	if err != nil {
		switch {
		case errors.Is(err, mongodb.ErrClipboardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		case errors.Is(err, services.ErrReadOnly), errors.Is(err, services.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to modify this clipboard"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update clipboard"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": clip})
}

// Delete godoc
// @Summary Delete a clipboard entry
// @Tags clipboards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clipboard ID"
// @Router /clipboards/{id} [delete]
func (h *ClipboardHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidClipboardID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		return
	}

	err := h.clipboardService.Delete(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, mongodb.ErrClipboardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		case errors.Is(err, services.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to delete this clipboard"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete clipboard"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "clipboard deleted"})
}

// UploadFile godoc
// @Summary Attach a file to a clipboard entry
// @Tags clipboards
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Clipboard ID"
// @Router /clipboards/{id}/files [post]
func (h *ClipboardHandler) UploadFile(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidClipboardID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	clip, err := h.clipboardService.AttachFile(c.Request.Context(), id, middleware.UserID(c), file)
	if err != nil {
		switch {
		case errors.Is(err, mongodb.ErrClipboardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		case errors.Is(err, services.ErrFileTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds the 15MB limit"})
		case errors.Is(err, services.ErrFileTypeNotAllowed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "file type not allowed"})
		case errors.Is(err, services.ErrReadOnly), errors.Is(err, services.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to modify this clipboard"})
		case errors.Is(err, services.ErrStorageUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage is not available"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload file"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": clip})
}

// QRCode godoc
// @Summary Render the entry's share URL as a QR code
// @Tags clipboards
// @Produce png
// @Param id path string true "Clipboard ID"
// @Router /clipboards/{id}/qr [get]
func (h *ClipboardHandler) QRCode(c *gin.Context) {
	id := c.Param("id")
	if !models.IsValidClipboardID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "clipboard not found"})
		return
	}

	shareURL := fmt.Sprintf("%s/clip/%s", h.publicURL, id)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render QR code"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
