package analysis

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codeverdict/core/internal/middleware"
	"github.com/codeverdict/core/internal/pkg/response"
)

// AnalyzeDTO is the body of POST /repos/analyze.
type AnalyzeDTO struct {
	URL     string `json:"url"  binding:"required"`
	Name    string `json:"name"`
	Refresh bool   `json:"refresh"`
}

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the repository routes. extra runs after authMW on
// mutating routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, extra ...gin.HandlerFunc) {
	g := rg.Group("/repos", authMW)
	g.GET("", h.list)
	g.POST("/analyze", append(extra, h.analyze)...)
	g.GET("/:id/analyses", h.history)
}

func (h *Handler) list(c *gin.Context) {
	res, err := h.svc.ListRepositories(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) analyze(c *gin.Context) {
	var dto AnalyzeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "url is required")
		return
	}
	run := h.svc.AnalyzeRepository
	if dto.Refresh {
		run = h.svc.Reanalyze
	}
	res, err := run(c.Request.Context(), middleware.CurrentUserID(c), dto.URL, dto.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) history(c *gin.Context) {
	res, err := h.svc.GetAnalysis(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	h.log.Debug("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	response.Failed(c, status, PublicMessage(err))
}
