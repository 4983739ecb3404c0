package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/speechgate/auth"
	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/model"
	"github.com/kbukum/speechgate/server"
	"github.com/kbukum/speechgate/server/middleware"
	"github.com/kbukum/speechgate/store"
	"github.com/kbukum/speechgate/validation"
)

// Models is the registry surface the admin API drives.
type Models interface {
	Register(ctx context.Context, reg model.Registration) (string, error)
	Load(ctx context.Context, id string) (model.Status, error)
	Unload(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	GetStatus() []model.Status
}

// TranscriptLister is implemented by stores that can list archived
// transcripts.
type TranscriptLister interface {
	Transcripts(ctx context.Context, limit int) ([]store.Transcript, error)
}

// AdminOptions configures admin route protection.
type AdminOptions struct {
	// Validator, when set, requires a bearer token on every admin route.
	Validator auth.TokenValidator
	// RateLimit caps requests per minute per caller; 0 disables it.
	RateLimit int
}

// Admin serves the /asr model administration endpoints.
type Admin struct {
	models Models
	store  store.Store
	log    *logger.Logger
}

// NewAdmin creates the admin handlers.
func NewAdmin(models Models, st store.Store, log *logger.Logger) *Admin {
	return &Admin{models: models, store: st, log: log.WithComponent("admin")}
}

// RegisterRoutes mounts the admin endpoints under /asr.
func (a *Admin) RegisterRoutes(r gin.IRouter, opts AdminOptions) {
	g := r.Group("/asr")
	if opts.Validator != nil {
		g.Use(middleware.Auth(opts.Validator))
	}
	if opts.RateLimit > 0 {
		g.Use(middleware.RateLimit(opts.RateLimit))
	}

	g.POST("/models/register", a.register)
	g.POST("/models/load/:id", a.load)
	g.POST("/models/unload/:id", a.unload)
	g.GET("/models/status", a.status)
	g.GET("/models", a.list)
	g.DELETE("/models/:id", a.remove)
	if _, ok := a.store.(TranscriptLister); ok {
		g.GET("/transcripts", a.transcripts)
	}
}

func (a *Admin) register(c *gin.Context) {
	var reg model.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(reg); err != nil {
		server.RespondWithError(c, err)
		return
	}

	id, err := a.models.Register(c.Request.Context(), reg)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"status": "registered", "model_id": id})
}

// modelID reads the :id path parameter. Model ids are UUIDs; anything else
// is rejected before the registry lookup.
func modelID(c *gin.Context) (string, bool) {
	id, err := validation.ValidateUUID("id", c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return "", false
	}
	return id.String(), true
}

func (a *Admin) load(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	st, err := a.models.Load(c.Request.Context(), id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}

	body := gin.H{"model_id": id, "state": st.State, "latency": st.Latency}
	if st.State == model.StateReady {
		body["status"] = "loaded"
	} else {
		body["status"] = "error"
		body["error"] = st.Error
	}
	server.RespondOK(c, body)
}

func (a *Admin) unload(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	released, err := a.models.Unload(c.Request.Context(), id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	status := "skipped"
	if released {
		status = "success"
	}
	server.RespondOK(c, gin.H{"status": status, "model_id": id})
}

func (a *Admin) status(c *gin.Context) {
	server.RespondOK(c, a.models.GetStatus())
}

// modelView is a persisted row as the admin API shows it. The encrypted
// key is never returned.
type modelView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`
	Framework string    `json:"framework"`
	Device    string    `json:"device,omitempty"`
	Language  string    `json:"language,omitempty"`
	Path      string    `json:"path,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Region    string    `json:"region,omitempty"`
	HasAPIKey bool      `json:"has_api_key"`
	Status    string    `json:"status"`
	Loaded    bool      `json:"loaded"`
	Latency   *float64  `json:"latency"`
	Logo      string    `json:"logo"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Admin) list(c *gin.Context) {
	rows, err := a.store.GetAllModels(c.Request.Context())
	if err != nil {
		a.log.Warn("Model listing failed", logger.ErrorFields("get_all_models", err))
		server.RespondWithError(c, err)
		return
	}
	out := make([]modelView, 0, len(rows))
	for _, m := range rows {
		logo := m.Logo
		if logo == "" {
			logo = store.LogoFor(m.Type)
		}
		out = append(out, modelView{
			ID: m.ID, Name: m.Name, Type: m.Type, Framework: m.Framework,
			Device: m.Device, Language: m.Language, Path: m.Path,
			Endpoint: m.Endpoint, Region: m.Region, HasAPIKey: m.APIKey != "",
			Status: m.Status, Loaded: m.Loaded, Latency: m.Latency,
			Logo: logo, CreatedAt: m.CreatedAt,
		})
	}
	server.RespondOK(c, out)
}

func (a *Admin) remove(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	if err := a.models.Delete(c.Request.Context(), id); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"status": "deleted", "model_id": id})
}

func (a *Admin) transcripts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			server.RespondWithError(c, apperrors.InvalidInput("limit", "must be between 1 and 1000"))
			return
		}
		limit = n
	}
	rows, err := a.store.(TranscriptLister).Transcripts(c.Request.Context(), limit)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, t := range rows {
		out = append(out, gin.H{"model": t.Model, "text": t.Text, "language": t.Language, "created_at": t.CreatedAt})
	}
	server.RespondOK(c, out)
}
