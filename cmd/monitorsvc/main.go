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
	"github.com/avvvet/gate-services/internal/monitorsvc/broker"
	"github.com/avvvet/gate-services/internal/monitorsvc/handlers"
	"github.com/avvvet/gate-services/internal/monitorsvc/routes"
	"github.com/avvvet/gate-services/internal/monitorsvc/ws"
	"github.com/avvvet/gate-services/internal/nats"
)

const SERVICE_NAME = "monitor"

func main() {
	config.LoadEnv(SERVICE_NAME)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME+"_service_"+instanceId, cfg.Log)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME+"_service_"+instanceId, cfg.Nats)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.HTTP.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.HTTP.RateLimit, 1*time.Minute))

	// Initialize websocket hub and the broker feeding it
	s := ws.NewWs()
	b := broker.NewBroker(n.Conn, s)

	h := handlers.NewHandler(s, b, cfg.HTTP.MonitorPort, cfg.HTTP.CORSOrigins)
	routes.InitAuth(cfg.HTTP.JWTSecret)
	routes.SetRoutes(r, h)

	subEvents, err := b.SubscribeEvents(cfg.Gate.EventsTopic)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", cfg.Gate.EventsTopic, err)
		os.Exit(1)
	}
	subHeartbeat, err := b.SubscribeHeartbeats(cfg.Gate.HeartbeatTopic)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", cfg.Gate.HeartbeatTopic, err)
		os.Exit(1)
	}

	// Create server with timeout settings. No write timeout: websockets are long lived.
	server := &http.Server{
		Addr:        ":" + cfg.HTTP.MonitorPort,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	subEvents.Unsubscribe()
	subHeartbeat.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
