package config

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

var InstanceId string

// LoadEnv loads ./.env into the process environment. A missing file is not
// fatal: in containers the variables usually come from the orchestrator.
func LoadEnv(service string) {
	log.Infof("%s service configuration and env variables loading started ...", service)
	if err := godotenv.Load("./.env"); err != nil {
		log.Warnf("no .env file loaded: %v", err)
		return
	}

	log.Info(".env file loaded.")
}

func CreateUniqueInstance(service string) string {
	id, err := uuid.NewV4() // instance identifier
	if err != nil {
		log.Errorf("error generating instanceId: %s", err)
		os.Exit(1)
	}
	InstanceId = id.String()
	log.Infof(service+" service with Instance ID: %s is ready", id)
	return id.String()
}

func GetInstanceId() string {
	return InstanceId
}

func CORS(origins []string) *cors.Cors {
	corsOptions := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return corsOptions
}

// Logging configures the global logrus logger. With LOG_TO_FILE enabled the
// output goes to <LOG_DIR>/<service>.log, otherwise it stays on stderr.
func Logging(service string, cfg LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("invalid log level %q, falling back to info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)

	if !cfg.ToFile {
		return
	}

	_, err = os.Stat(cfg.Dir)
	if os.IsNotExist(err) {
		err = os.MkdirAll(cfg.Dir, 0755)
		if err != nil {
			log.Warnf("unable to create folder for log %s", err)
			return
		}
	}

	logFilePath := filepath.Join(cfg.Dir, service+".log")

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}

	log.SetOutput(file)

	log.Infof("log to file started for service: %s", service)
}

func CustomLoggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.WithFields(log.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"remote":     r.RemoteAddr,
					"status":     ww.Status(),
					"duration":   time.Since(start).String(),
				}).Infof("%s %s", r.Method, r.RequestURI)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
