package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gate-services/configs"
	mongodb "github.com/avvvet/gate-services/internal/db"
	"github.com/avvvet/gate-services/internal/gatesvc/broker"
	handlers "github.com/avvvet/gate-services/internal/gatesvc/handlers"
	"github.com/avvvet/gate-services/internal/gatesvc/service"
	"github.com/avvvet/gate-services/internal/gatesvc/storage"
	"github.com/avvvet/gate-services/internal/gatesvc/store"
	"github.com/avvvet/gate-services/internal/gatesvc/store/memory"
	nats "github.com/avvvet/gate-services/internal/nats"
)

const SERVICE_NAME = "gate"

func main() {
	config.LoadEnv(SERVICE_NAME)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME+"_service_"+instanceId, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer backend.Close()
	log.Printf("%s store ready", cfg.Store.Driver)

	audit, closeAudit := openAudit(ctx, cfg.Audit)
	defer closeAudit()

	accessService := service.NewAccessService(backend.Cards, backend.Sessions,
		service.WithAudit(audit),
		service.WithAuditTimeout(cfg.Audit.Timeout),
		service.WithStoreTimeout(cfg.Store.Timeout),
		service.WithInstanceId(instanceId),
	)
	cardService := service.NewCardService(backend.Cards, backend.Sessions)
	reportService := service.NewReportService(backend.Cards, backend.Sessions,
		service.WithLocation(cfg.ReportLocation()),
	)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME+"_service_"+instanceId, cfg.Nats)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	b := broker.NewBroker(n.Conn, accessService, broker.Config{
		InboundTopic: cfg.Gate.InboundTopic,
		QueueGroup:   cfg.Gate.QueueGroup,
		EventsTopic:  cfg.Gate.EventsTopic,
		Workers:      cfg.Gate.Workers,
		InstanceId:   instanceId,
	})
	if err := b.Start(); err != nil {
		log.Errorf("Error: unable to subscribe to gate topic %v", err)
		os.Exit(1)
	}
	log.WithFields(log.Fields{
		"topic":   cfg.Gate.InboundTopic,
		"queue":   cfg.Gate.QueueGroup,
		"workers": cfg.Gate.Workers,
	}).Info("listening for gate scans")

	go b.Heartbeat(ctx, cfg.Gate.HeartbeatTopic, cfg.Gate.HeartbeatInterval)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.HTTP.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the admin api from any over requests
	r.Use(httprate.LimitByIP(cfg.HTTP.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(cfg.HTTP.GatePort, cardService, accessService, reportService, audit)
	if cfg.HTTP.JWTSecret == "" {
		log.Warn("JWT_SECRET_KEY is empty, admin tokens are signed with an empty key")
	}
	h.InitAuth(cfg.HTTP.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.GatePort,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Warnf("gate broker did not drain: %v", err)
	}
	accessService.WaitAudits()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

// openAudit uses MongoDB when MONGODB_URI is set and an in-memory ring
// otherwise. A mongo failure at startup degrades to memory.
func openAudit(ctx context.Context, cfg config.AuditConfig) (store.Audit, func()) {
	fallback := func() (store.Audit, func()) {
		log.Infof("audit trail kept in memory (last %d decisions)", cfg.MemoryLimit)
		return memory.NewAuditStore(cfg.MemoryLimit), func() {}
	}

	if cfg.MongoURI == "" {
		return fallback()
	}

	client, mdb, err := mongodb.ConnectToDB(ctx, cfg.MongoURI)
	if err != nil {
		log.Errorf("mongo audit unavailable: %v", err)
		return fallback()
	}

	if err := mongodb.CreateTTLIndexForCollection(ctx, mdb, cfg.Collection); err != nil {
		log.Warnf("audit ttl index: %v", err)
	}
	if err := mongodb.CreateCardIndex(ctx, mdb, cfg.Collection); err != nil {
		log.Warnf("audit card index: %v", err)
	}
	log.Infof("audit trail in mongo collection %s", cfg.Collection)

	return store.NewAuditStore(mdb, cfg.Collection, cfg.Retention), func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			log.Errorf("mongo disconnect: %v", err)
		}
	}
}
