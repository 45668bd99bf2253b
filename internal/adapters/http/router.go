package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/app/orch"
	"github.com/lectern/meshcall/internal/config"
)

type handRequest struct {
	Raised bool `json:"raised"`
}

type voiceRequest struct {
	Active bool `json:"active"`
}

type nameRequest struct {
	Name string `json:"name"`
}

// SetupRouter wires the local control surface around a running session.
func SetupRouter(cfg *config.Config, c *orch.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("addr", cfg.ControlAddr).Msg("control router setup")

	api := r.Group("/api")

	api.GET("/status", func(g *gin.Context) {
		g.JSON(http.StatusOK, gin.H{
			"room":         c.Room,
			"name":         c.Identity.Name,
			"role":         c.Identity.Role,
			"muted":        c.Media.Muted(),
			"videoOff":     c.Media.VideoOff(),
			"audioOnly":    c.Media.AudioOnly(),
			"participants": c.Roster.Snapshot(),
			"handsRaised":  c.Roster.HandsRaised(),
			"voiceActive":  c.Roster.VoiceActive(),
			"connections":  c.Registry.Count(),
		})
	})

	api.POST("/mute", func(g *gin.Context) {
		g.JSON(http.StatusOK, gin.H{"muted": c.ToggleMute()})
	})

	api.POST("/video", func(g *gin.Context) {
		g.JSON(http.StatusOK, gin.H{"videoOff": c.ToggleVideo()})
	})

	api.POST("/hand", func(g *gin.Context) {
		var req handRequest
		if err := g.ShouldBindJSON(&req); err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		if err := c.RaiseHand(req.Raised); err != nil {
			g.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		g.JSON(http.StatusOK, gin.H{"raised": req.Raised})
	})

	api.POST("/voice", func(g *gin.Context) {
		var req voiceRequest
		if err := g.ShouldBindJSON(&req); err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		if err := c.SetVoiceActive(req.Active); err != nil {
			g.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		g.JSON(http.StatusOK, gin.H{"active": req.Active})
	})

	api.POST("/name", func(g *gin.Context) {
		var req nameRequest
		if err := g.ShouldBindJSON(&req); err != nil || req.Name == "" {
			g.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
			return
		}
		if err := c.ChangeName(req.Name); err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		g.JSON(http.StatusOK, gin.H{"name": req.Name})
	})

	api.POST("/leave", func(g *gin.Context) {
		c.Leave()
		g.JSON(http.StatusOK, gin.H{"left": true})
	})

	api.POST("/end", func(g *gin.Context) {
		c.EndClass(g.Request.Context())
		g.JSON(http.StatusOK, gin.H{"ended": true})
	})

	return r
}
