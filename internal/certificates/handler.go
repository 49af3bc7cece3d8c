package certificates

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"badgecerts/badgecerts-backend/internal/auth"
	"badgecerts/badgecerts-backend/internal/export"
	"badgecerts/badgecerts-backend/internal/tokens"
)

// Handler handles HTTP requests for certificate templates
type Handler struct {
	service *Service
	authz   auth.Authorizer
	logger  *zap.Logger
}

// NewHandler creates a new certificates handler
func NewHandler(service *Service, authz auth.Authorizer, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		logger:  logger,
	}
}

// RegisterRoutes registers certificate routes. The router group must run
// the auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	configure := auth.Require(h.authz, auth.CapConfigure, h.logger)

	certs := router.Group("/certificates")
	{
		// Template endpoints
		certs.GET("", configure, h.listTemplates)
		certs.POST("", auth.Require(h.authz, auth.CapCreate, h.logger), h.createTemplate)
		certs.GET("/tokens", h.listTokens)
		certs.GET("/:id", configure, h.getTemplate)
		certs.PUT("/:id", configure, h.updateTemplate)
		certs.DELETE("/:id", configure, h.deleteTemplate)
		certs.GET("/:id/background", configure, h.getBackground)

		// Status endpoints
		certs.PUT("/:id/status", configure, h.setStatus)
		certs.POST("/:id/activate", configure, h.activate)
		certs.POST("/:id/deactivate", configure, h.deactivate)

		// Rendering endpoints
		certs.GET("/:id/preview", configure, h.preview)
		certs.GET("/:id/bulk", h.bulk)
		certs.GET("/:id/recipients/:userId/:hash", configure, h.renderForRecipient)
		certs.GET("/:id/issues", configure, h.listIssues)

		// Badge linking endpoints
		certs.GET("/badges/available", configure, h.availableBadges)
		certs.GET("/:id/badges", configure, h.assignedBadges)
		certs.POST("/:id/badges", configure, h.assignBadge)
		certs.DELETE("/:id/badges/:badgeId", configure, h.unassignBadge)

		// Export endpoints
		certs.GET("/courses/:courseId/export", configure, h.exportCourse)
	}

	my := router.Group("/my/certificates")
	my.Use(auth.Require(h.authz, auth.CapViewOwn, h.logger))
	{
		my.GET("", h.listMyCertificates)
		my.GET("/:hash", h.downloadMyCertificate)
	}
}

// =====================================================
// Template Endpoints
// =====================================================

// listTemplates handles GET /api/v1/certificates
func (h *Handler) listTemplates(c *gin.Context) {
	filters := &TemplateFilters{
		Sort:      c.Query("sort"),
		Direction: c.Query("dir"),
		Page:      h.getIntParam(c, "page", 1),
		PageSize:  h.getIntParam(c, "page_size", 0),
	}

	if v := c.Query("type"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
		typ := Type(n)
		filters.Type = &typ
	}
	if v := c.Query("course_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
			return
		}
		filters.CourseID = &id
	}
	if v := c.Query("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !Status(n).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status := Status(n)
		filters.Status = &status
	}
	if c.Query("mine") == "true" {
		userID := h.getUserID(c)
		filters.CreatedBy = &userID
	}
	if search := c.Query("search"); search != "" {
		filters.Search = &search
	}

	response, err := h.service.ListTemplates(c.Request.Context(), filters)
	if err != nil {
		h.respondError(c, "Failed to list certificate templates", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// createTemplate handles POST /api/v1/certificates as JSON or multipart with
// a background file
func (h *Handler) createTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		if err := c.ShouldBindWith(&req, binding.FormMultipart); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name, content, err := h.readBackground(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Background, req.BackgroundName = content, name
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Official && !h.authorize(c, auth.CapAssignOfficial, 0) {
		return
	}

	template, err := h.service.CreateTemplate(c.Request.Context(), h.getUserID(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create certificate template", err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// listTokens handles GET /api/v1/certificates/tokens
func (h *Handler) listTokens(c *gin.Context) {
	vocabulary := make([]gin.H, len(tokens.Vocabulary))
	for i, tok := range tokens.Vocabulary {
		vocabulary[i] = gin.H{"token": tok, "description": tok.Describe()}
	}
	c.JSON(http.StatusOK, gin.H{"tokens": vocabulary})
}

// getTemplate handles GET /api/v1/certificates/:id
func (h *Handler) getTemplate(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	template, err := h.service.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get certificate template", err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// updateTemplate handles PUT /api/v1/certificates/:id
func (h *Handler) updateTemplate(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	var req UpdateTemplateRequest
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		if err := c.ShouldBindWith(&req, binding.FormMultipart); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := c.FormFile("background"); err == nil {
			name, content, err := h.readBackground(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			req.Background, req.BackgroundName = &content, &name
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Official != nil && !h.authorize(c, auth.CapAssignOfficial, 0) {
		return
	}

	template, err := h.service.UpdateTemplate(c.Request.Context(), h.getUserID(c), id, &req)
	if err != nil {
		h.respondError(c, "Failed to update certificate template", err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// deleteTemplate handles DELETE /api/v1/certificates/:id
func (h *Handler) deleteTemplate(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteTemplate(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete certificate template", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// getBackground handles GET /api/v1/certificates/:id/background
func (h *Handler) getBackground(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	template, data, err := h.service.Background(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to load background", err)
		return
	}

	name := template.BackgroundName
	if name == "" {
		name = "background.svg"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, "image/svg+xml", data)
}

// =====================================================
// Status Endpoints
// =====================================================

// setStatus handles PUT /api/v1/certificates/:id/status
func (h *Handler) setStatus(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template, err := h.service.SetStatus(c.Request.Context(), h.getUserID(c), id, *req.Status)
	if err != nil {
		h.respondError(c, "Failed to change certificate template status", err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// activate handles POST /api/v1/certificates/:id/activate
func (h *Handler) activate(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	template, err := h.service.Activate(c.Request.Context(), h.getUserID(c), id)
	if err != nil {
		h.respondError(c, "Failed to activate certificate template", err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// deactivate handles POST /api/v1/certificates/:id/deactivate
func (h *Handler) deactivate(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	template, err := h.service.Deactivate(c.Request.Context(), h.getUserID(c), id)
	if err != nil {
		h.respondError(c, "Failed to deactivate certificate template", err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// =====================================================
// Rendering Endpoints
// =====================================================

// preview handles GET /api/v1/certificates/:id/preview
func (h *Handler) preview(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	rendered, err := h.service.Preview(c.Request.Context(), h.getUserID(c), id)
	if err != nil {
		h.respondError(c, "Failed to preview certificate", err)
		return
	}

	h.sendPDF(c, rendered)
}

// bulk handles GET /api/v1/certificates/:id/bulk. Bulk rights may be granted
// per course, so the check needs the template first.
func (h *Handler) bulk(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	template, err := h.service.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get certificate template", err)
		return
	}
	var courseID int64
	if template.CourseID != nil {
		courseID = *template.CourseID
	}
	if !h.authorize(c, auth.CapBulk, courseID) {
		return
	}

	rendered, err := h.service.RenderBulk(c.Request.Context(), h.getUserID(c), id)
	if err != nil {
		h.respondError(c, "Failed to render certificates", err)
		return
	}

	h.sendPDF(c, rendered)
}

// renderForRecipient handles GET /api/v1/certificates/:id/recipients/:userId/:hash
func (h *Handler) renderForRecipient(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	rendered, err := h.service.RenderForRecipient(c.Request.Context(), h.getUserID(c), id, userID, c.Param("hash"))
	if err != nil {
		h.respondError(c, "Failed to render certificate", err)
		return
	}

	h.sendPDF(c, rendered)
}

// listIssues handles GET /api/v1/certificates/:id/issues
func (h *Handler) listIssues(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	logs, err := h.service.IssueLogs(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to list certificate issues", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": logs})
}

// =====================================================
// Badge Linking Endpoints
// =====================================================

// availableBadges handles GET /api/v1/certificates/badges/available
func (h *Handler) availableBadges(c *gin.Context) {
	var courseID *int64
	if v := c.Query("course_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
			return
		}
		courseID = &id
	}

	badges, err := h.service.AvailableBadges(c.Request.Context(), courseID)
	if err != nil {
		h.respondError(c, "Failed to list available badges", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

// assignedBadges handles GET /api/v1/certificates/:id/badges
func (h *Handler) assignedBadges(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	badges, err := h.service.AssignedBadges(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to list assigned badges", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

type assignBadgeRequest struct {
	BadgeID int64 `json:"badge_id" binding:"required,gt=0"`
}

// assignBadge handles POST /api/v1/certificates/:id/badges
func (h *Handler) assignBadge(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}

	var req assignBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.AssignBadge(c.Request.Context(), id, req.BadgeID); err != nil {
		h.respondError(c, "Failed to assign badge", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// unassignBadge handles DELETE /api/v1/certificates/:id/badges/:badgeId
func (h *Handler) unassignBadge(c *gin.Context) {
	id, ok := h.templateID(c)
	if !ok {
		return
	}
	badgeID, err := strconv.ParseInt(c.Param("badgeId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid badge ID"})
		return
	}

	if err := h.service.UnassignBadge(c.Request.Context(), id, badgeID); err != nil {
		h.respondError(c, "Failed to unassign badge", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// =====================================================
// Export Endpoints
// =====================================================

// exportCourse handles GET /api/v1/certificates/courses/:courseId/export
func (h *Handler) exportCourse(c *gin.Context) {
	courseID, err := strconv.ParseInt(c.Param("courseId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	table, err := h.service.ExportCourse(c.Request.Context(), courseID)
	if err != nil {
		h.respondError(c, "Failed to export certificates", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		h.respondError(c, "Failed to write export", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table.Name+"."+string(format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// =====================================================
// My Certificates Endpoints
// =====================================================

// listMyCertificates handles GET /api/v1/my/certificates
func (h *Handler) listMyCertificates(c *gin.Context) {
	filters := &UserCertificateFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 0),
	}
	if search := c.Query("search"); search != "" {
		filters.Search = &search
	}
	if v := c.Query("visible"); v != "" {
		visible := v == "true" || v == "1"
		filters.Visible = &visible
	}
	if v := c.Query("course_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course ID"})
			return
		}
		filters.CourseID = &id
	}

	response, err := h.service.UserCertificates(c.Request.Context(), h.getUserID(c), filters)
	if err != nil {
		h.respondError(c, "Failed to list user certificates", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// downloadMyCertificate handles GET /api/v1/my/certificates/:hash
func (h *Handler) downloadMyCertificate(c *gin.Context) {
	rendered, err := h.service.RenderIssued(c.Request.Context(), h.getUserID(c), c.Param("hash"))
	if err != nil {
		h.respondError(c, "Failed to render certificate", err)
		return
	}

	h.sendPDF(c, rendered)
}

// =====================================================
// Helper Methods
// =====================================================

func (h *Handler) getUserID(c *gin.Context) int64 {
	if actor, ok := auth.ActorFromContext(c); ok {
		return actor.UserID
	}
	return 0
}

func (h *Handler) getIntParam(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func (h *Handler) templateID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid certificate template ID"})
		return uuid.Nil, false
	}
	return id, true
}

// authorize writes 403 and returns false unless the actor holds capability
func (h *Handler) authorize(c *gin.Context, capability auth.Capability, courseID int64) bool {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
		return false
	}
	allowed, err := h.authz.Allowed(c.Request.Context(), actor, capability, courseID)
	if err != nil {
		h.respondError(c, "Failed to check capability", err)
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("missing capability %s", capability)})
		return false
	}
	return true
}

// readBackground reads the uploaded background file, at most one byte past
// the configured limit so validation can reject oversized uploads
func (h *Handler) readBackground(c *gin.Context) (string, string, error) {
	header, err := c.FormFile("background")
	if err != nil {
		return "", "", fmt.Errorf("background file is required")
	}
	f, err := header.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open background: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.service.settings.MaxBackgroundBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("failed to read background: %w", err)
	}
	return header.Filename, string(data), nil
}

func (h *Handler) sendPDF(c *gin.Context, rendered *Rendered) {
	c.Header("Content-Disposition", rendered.ContentDisposition())
	c.Header("X-Certificate-Pages", strconv.Itoa(rendered.Pages))
	if rendered.MissingContent {
		c.Header("X-Certificate-Missing-Content", "true")
	}
	c.Data(http.StatusOK, "application/pdf", rendered.Body)
}

// respondError maps service errors to status codes
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoRecipients):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrLocked), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden), errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
