package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/buildinfo"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/security"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency for the health endpoint.
type Check func(ctx context.Context) error

// Stats is the read side used by the admin dashboard.
type Stats interface {
	Count(ctx context.Context) (int64, error)
	CountTransactions(ctx context.Context) (int64, error)
	SumSuccessful(ctx context.Context) (decimal.Decimal, error)
}

// API holds the HTTP handlers that are not transport webhooks.
type API struct {
	checks map[string]Check
	stats  Stats
	tokens *security.Tokens
}

// NewAPI builds the handler set. A nil tokens disables the admin routes.
func NewAPI(checks map[string]Check, stats Stats, tokens *security.Tokens) *API {
	return &API{checks: checks, stats: stats, tokens: tokens}
}

// Register mounts /healthz and, when tokens are configured, /admin.
func (a *API) Register(r gin.IRouter) {
	r.GET("/healthz", a.Health)
	if a.tokens == nil || a.stats == nil {
		return
	}
	admin := r.Group("/admin", RequireAdmin(a.tokens))
	admin.GET("/stats", a.AdminStats)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Build  buildinfo.Info    `json:"build"`
}

// Health reports each dependency as "ok" or "error" and answers 503 when one failed.
func (a *API) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{
		Status: "ok",
		Checks: make(map[string]string, len(names)),
		Build:  buildinfo.Current(),
	}
	for _, name := range names {
		if err := a.checks[name](ctx); err != nil {
			resp.Checks[name] = "error"
			resp.Status = "degraded"
			logger.HTTP.WarnContext(ctx, "health check failed",
				slog.String("event", "health.check"),
				slog.String("status", "fail"),
				slog.String("op", name),
				slog.String("err", err.Error()),
			)
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

type statsResponse struct {
	Users        int64  `json:"users"`
	Transactions int64  `json:"transactions"`
	Revenue      string `json:"revenue"`
}

// AdminStats returns the same totals the admin chat menu shows.
func (a *API) AdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	usersTotal, err := a.stats.Count(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	txTotal, err := a.stats.CountTransactions(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	revenue, err := a.stats.SumSuccessful(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{Users: usersTotal, Transactions: txTotal, Revenue: revenue.StringFixed(2)})
}

func (a *API) fail(c *gin.Context, err error) {
	logger.HTTP.ErrorContext(c.Request.Context(), "admin stats failed",
		slog.String("event", "admin.stats"),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
}
