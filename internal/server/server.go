package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quotara/internal/addon"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	"github.com/smallbiznis/quotara/internal/authorization"
	"github.com/smallbiznis/quotara/internal/config"
	"github.com/smallbiznis/quotara/internal/namespace"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/smallbiznis/quotara/internal/notification"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	"github.com/smallbiznis/quotara/internal/observability"
	obsmiddleware "github.com/smallbiznis/quotara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quotara/internal/observability/tracing"
	"github.com/smallbiznis/quotara/internal/quota"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	"github.com/smallbiznis/quotara/internal/seat"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	namespace.Module,
	addon.Module,
	seat.Module,
	quota.Module,
	notification.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	genID  *snowflake.Node

	authzSvc        authorization.Service
	namespaceSvc    namespacedomain.Service
	addOnSvc        addondomain.Service
	seatSvc         seatdomain.Service
	quotaSvc        quotadomain.Service
	notificationSvc notificationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	NamespaceSvc    namespacedomain.Service
	AddOnSvc        addondomain.Service
	SeatSvc         seatdomain.Service
	QuotaSvc        quotadomain.Service
	NotificationSvc notificationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		namespaceSvc:    p.NamespaceSvc,
		addOnSvc:        p.AddOnSvc,
		seatSvc:         p.SeatSvc,
		quotaSvc:        p.QuotaSvc,
		notificationSvc: p.NotificationSvc,
	}

	svc.registerV1Routes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/v1")

	// -------- Namespaces --------
	v1.POST("/namespaces", s.CreateNamespace)
	v1.GET("/namespaces/:id", s.GetNamespace)
	v1.POST("/namespaces/:id/members", s.AddMember)
	v1.POST("/namespaces/:id/group_links", s.AddGroupLink)
	v1.POST("/namespaces/:id/bans", s.BanUser)
	v1.POST("/projects", s.CreateProject)
	v1.POST("/users", s.CreateUser)

	// -------- Add-on purchases --------
	v1.POST("/add_on_purchases", s.CreateAddOnPurchase)
	v1.PATCH("/add_on_purchases/:id", s.RenewAddOnPurchase)
	v1.GET("/namespaces/:id/add_on_purchases", s.ListAddOnPurchases)

	// -------- Seat assignments --------
	v1.POST("/add_on_purchases/:id/assignments", s.AuthRequired(), s.authorizePurchaseAction(authorization.ObjectSeatAssignment, authorization.ActionSeatManage), s.CreateAssignment)
	v1.DELETE("/add_on_purchases/:id/assignments/:user_id", s.AuthRequired(), s.authorizePurchaseAction(authorization.ObjectSeatAssignment, authorization.ActionSeatManage), s.DeleteAssignment)
	v1.GET("/namespaces/:id/eligible_users", s.ListEligibleUsers)
	v1.GET("/namespaces/:id/assigned_users", s.ListAssignedUsers)

	// -------- Usage --------
	v1.POST("/usage", s.RecordUsage)
	v1.GET("/usage/instance", s.GetInstanceUsage)
	v1.GET("/usage/namespaces", s.ListNamespaceUsage)

	// -------- Compute-minute callouts --------
	v1.GET("/namespaces/:id/compute_minutes_callout", s.AuthRequired(), s.GetComputeMinutesCallout)
	v1.POST("/namespaces/:id/callout_dismissals", s.AuthRequired(), s.DismissCallout)
}
