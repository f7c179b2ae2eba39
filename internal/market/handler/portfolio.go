package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// imageFields are the multipart fields portfolio images are read from
var imageFields = []string{"images", "images[]"}

// PortfolioHandler handles portfolio publishing endpoints
type PortfolioHandler struct {
	portfolios *service.PortfolioService
	logger     log.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolios *service.PortfolioService, logger log.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, logger: logger.With(log.Component("portfolio_handler"))}
}

// KeywordsRequest adds keywords to a portfolio
type KeywordsRequest struct {
	PortfolioID int64    `json:"portfolio_id"`
	Keywords    []string `json:"keywords"`
}

// RegisterRoutes registers the portfolio routes
func (h *PortfolioHandler) RegisterRoutes(router *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	group := router.Group("/portfolio")
	{
		group.GET("/get-all", h.ListPublic)
		group.GET("/get-by-id/:portfolio_id", h.Get)
		group.GET("/get-by-user/:user_id", h.ListByAccount)

		group.POST("/add", requireAuth, h.Add)
		group.PUT("/update/:portfolio_id", requireAuth, h.Update)
		group.DELETE("/delete/:portfolio_id", requireAuth, h.Delete)
		group.DELETE("/delete-by-user/:user_id", requireAuth, h.DeleteByAccount)
		group.DELETE("/video/:portfolio_id", requireAuth, h.DeleteVideo)
		group.POST("/images/:portfolio_id", requireAuth, h.AddImages)
		group.DELETE("/images/:image_id", requireAuth, h.DeleteImage)
		group.POST("/keywords", requireAuth, h.AddKeywords)
		group.DELETE("/keywords/:keyword_id", requireAuth, h.DeleteKeyword)
	}
}

// media reads the optional video and document and the images of a
// portfolio form
func (h *PortfolioHandler) media(c *gin.Context) (images []*filestore.Upload, video, document *filestore.Upload, err error) {
	if images, err = formUploads(c, imageFields...); err != nil {
		return
	}
	if video, err = formUpload(c, "video"); err != nil {
		return
	}
	document, err = formUpload(c, "document")
	return
}

// Add handles POST /api/portfolio/add
func (h *PortfolioHandler) Add(c *gin.Context) {
	accountID, err := formInt64(c, "user_id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	in := &service.AddPortfolioInput{
		AccountID:   accountID,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
	}
	if in.AccountID == 0 {
		// Admin and account ids are separate sequences
		if who := caller(c); who != nil && who.Role == market.RoleUser {
			in.AccountID = who.ID
		}
	}
	if _, err := formJSON(c, "keywords", &in.Keywords); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if in.Images, in.Video, in.Document, err = h.media(c); err != nil {
		respondError(c, h.logger, err)
		return
	}

	p, result, err := h.portfolios.Add(c.Request.Context(), caller(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Portfolio added successfully.",
		"data":     p,
		"warnings": warnings(result),
	})
}

// Update handles PUT /api/portfolio/update/:portfolio_id
func (h *PortfolioHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	in := &service.UpdatePortfolioInput{
		PortfolioID: id,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
	}

	var err error
	if in.Version, err = formInt64(c, "version"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if in.ReplaceImages, err = formBool(c, "replace_images"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	var keywords []string
	present, err := formJSON(c, "keywords", &keywords)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if present {
		in.Keywords = keywords
		if in.Keywords == nil {
			in.Keywords = []string{}
		}
	}
	if in.Images, in.Video, in.Document, err = h.media(c); err != nil {
		respondError(c, h.logger, err)
		return
	}

	p, result, err := h.portfolios.Update(c.Request.Context(), caller(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Portfolio updated successfully.",
		"data":     p,
		"warnings": warnings(result),
	})
}

// ListPublic handles GET /api/portfolio/get-all
func (h *PortfolioHandler) ListPublic(c *gin.Context) {
	q := &service.PortfolioQuery{Search: c.Query("q")}
	var ok bool
	if q.IsPremium, ok = queryBool(c, "is_premium"); !ok {
		return
	}
	if q.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if q.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}

	page, err := h.portfolios.ListPublic(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /api/portfolio/get-by-id/:portfolio_id
func (h *PortfolioHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	p, err := h.portfolios.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

// ListByAccount handles GET /api/portfolio/get-by-user/:user_id
func (h *PortfolioHandler) ListByAccount(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	portfolios, err := h.portfolios.ListByAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": portfolios})
}

// Delete handles DELETE /api/portfolio/delete/:portfolio_id
func (h *PortfolioHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	result, err := h.portfolios.Delete(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Portfolio deleted successfully.", result)
}

// DeleteByAccount handles DELETE /api/portfolio/delete-by-user/:user_id
func (h *PortfolioHandler) DeleteByAccount(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	deleted, result, err := h.portfolios.DeleteByAccount(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "All portfolios for the user deleted successfully.",
		"deleted":  deleted,
		"warnings": warnings(result),
	})
}

// DeleteVideo handles DELETE /api/portfolio/video/:portfolio_id
func (h *PortfolioHandler) DeleteVideo(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	result, err := h.portfolios.DeleteVideo(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Video deleted successfully.", result)
}

// AddImages handles POST /api/portfolio/images/:portfolio_id
func (h *PortfolioHandler) AddImages(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	uploads, err := formUploads(c, imageFields...)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	images, err := h.portfolios.AddImages(c.Request.Context(), caller(c), id, uploads)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Images uploaded successfully.", "images": images})
}

// DeleteImage handles DELETE /api/portfolio/images/:image_id
func (h *PortfolioHandler) DeleteImage(c *gin.Context) {
	id, ok := idParam(c, "image_id")
	if !ok {
		return
	}
	result, err := h.portfolios.DeleteImage(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Image deleted successfully.", result)
}

// AddKeywords handles POST /api/portfolio/keywords
func (h *PortfolioHandler) AddKeywords(c *gin.Context) {
	var req KeywordsRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.portfolios.AddKeywords(c.Request.Context(), caller(c), req.PortfolioID, req.Keywords)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// DeleteKeyword handles DELETE /api/portfolio/keywords/:keyword_id
func (h *PortfolioHandler) DeleteKeyword(c *gin.Context) {
	id, ok := idParam(c, "keyword_id")
	if !ok {
		return
	}
	if err := h.portfolios.DeleteKeyword(c.Request.Context(), caller(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Keyword deleted successfully.", nil)
}
