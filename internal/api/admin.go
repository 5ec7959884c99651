package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/router"
)

// ActionInfo describes a mapped action
type ActionInfo struct {
	Name                  string `json:"name"`
	Module                string `json:"module"`
	Kind                  string `json:"kind"`
	Method                string `json:"method"`
	Pattern               string `json:"pattern"`
	Cached                bool   `json:"cached"`
	CacheProvider         string `json:"cacheProvider,omitempty"`
	CacheTTLSeconds       int    `json:"cacheTtlSeconds,omitempty"`
	CSRF                  bool   `json:"csrf"`
	SensitiveToBruteForce bool   `json:"sensitiveToBruteForce"`
	Description           string `json:"description,omitempty"`
}

// AdminHandler handles the administration API
type AdminHandler struct {
	actions  *router.Actions
	gatherer prometheus.Gatherer
	title    string
	version  string
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(actions *router.Actions, gatherer prometheus.Gatherer, version string) *AdminHandler {
	return &AdminHandler{
		actions:  actions,
		gatherer: gatherer,
		title:    "Cherrycake Gateway",
		version:  version,
	}
}

// RegisterRoutes registers the admin API routes
func (h *AdminHandler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/actions", h.GetAllActions)
		apiGroup.GET("/actions/:name", h.GetAction)
		apiGroup.GET("/actions/:name/url", h.BuildURL)
		apiGroup.DELETE("/actions/:name/cache", h.ResetCache)
		apiGroup.GET("/openapi", h.GetOpenAPI)
	}

	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// Describe returns the description of every mapped action, in dispatch order
func Describe(actions *router.Actions) []ActionInfo {
	names := actions.Names()
	infos := make([]ActionInfo, 0, len(names))
	for _, name := range names {
		a, err := actions.GetAction(name)
		if err != nil {
			continue
		}
		infos = append(infos, ActionInfo{
			Name:                  name,
			Module:                a.ModuleName,
			Kind:                  a.ModuleKind.String(),
			Method:                a.MethodName,
			Pattern:               a.Request.Pattern(),
			Cached:                a.Cache.Enabled,
			CacheProvider:         a.Cache.Provider,
			CacheTTLSeconds:       int(a.Cache.TTL.Seconds()),
			CSRF:                  a.Request.CSRF(),
			SensitiveToBruteForce: a.SensitiveToBruteForce,
			Description:           a.Request.Description(),
		})
	}
	return infos
}

// GetAllActions returns all mapped actions
func (h *AdminHandler) GetAllActions(c *gin.Context) {
	c.JSON(http.StatusOK, Describe(h.actions))
}

// GetAction returns a specific mapped action
func (h *AdminHandler) GetAction(c *gin.Context) {
	name := c.Param("name")
	for _, info := range Describe(h.actions) {
		if info.Name == name {
			c.JSON(http.StatusOK, info)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
}

// BuildURL renders the URL of an action from the query parameters
func (h *AdminHandler) BuildURL(c *gin.Context) {
	params := queryParams(c)
	opts := request.URLOptions{Locale: params["locale"], CacheBust: params["cb"]}
	delete(params, "locale")
	delete(params, "cb")

	u, err := h.actions.BuildURL(c.Param("name"), params, opts)
	if err != nil {
		if errors.Is(err, router.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": u})
}

// ResetCache drops the cached outcome of an action for the query parameters
func (h *AdminHandler) ResetCache(c *gin.Context) {
	if err := h.actions.ResetCache(c.Request.Context(), c.Param("name"), queryParams(c)); err != nil {
		if errors.Is(err, router.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetOpenAPI returns the OpenAPI document of the mapped actions
func (h *AdminHandler) GetOpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, h.actions.OpenAPI(h.title, h.version))
}

func queryParams(c *gin.Context) map[string]string {
	query := c.Request.URL.Query()
	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}
	return params
}
