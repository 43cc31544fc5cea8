package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/openedx/platform-plugin-aspects/internal/clickhouse"
	"github.com/openedx/platform-plugin-aspects/internal/config"
	"github.com/openedx/platform-plugin-aspects/internal/database"
	"github.com/openedx/platform-plugin-aspects/internal/handlers"
	"github.com/openedx/platform-plugin-aspects/internal/models"
	"github.com/openedx/platform-plugin-aspects/internal/modulestore"
	"github.com/openedx/platform-plugin-aspects/internal/registry"
	"github.com/openedx/platform-plugin-aspects/internal/scheduler"
	"github.com/openedx/platform-plugin-aspects/internal/signals"
	"github.com/openedx/platform-plugin-aspects/internal/sinks"
	"github.com/openedx/platform-plugin-aspects/internal/superset"
	"github.com/openedx/platform-plugin-aspects/internal/tags"
	"github.com/openedx/platform-plugin-aspects/internal/tasks"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Host database ---
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to host database: %v", err)
	}

	// --- NATS / JetStream ---
	nc, err := nats.Connect(cfg.NatsURL, nats.Timeout(10*time.Second), nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1), nats.ReconnectWait(3*time.Second))
	if err != nil {
		log.Fatalf("Failed to connect to NATS at %s: %v", cfg.NatsURL, err)
	}
	defer nc.Close()
	log.Printf("Successfully connected to NATS at %s", cfg.NatsURL)

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("Failed to create JetStream context: %v", err)
	}

	// --- ClickHouse ---
	chClient := clickhouse.NewClient(cfg.ClickHouse)

	// --- Model registry ---
	// With the CCX feature off, unbinding the model makes every CCX lookup a
	// registry miss, which the sinks treat as "feature inactive".
	if !cfg.CustomCoursesEnabled {
		delete(cfg.ModelConfig, "custom_course_edx")
	}
	reg := registry.New(cfg.ModelConfig)
	models.RegisterHostModels(reg, db)

	// --- Tag lineage resolution ---
	tagStore := tags.NewGormTagStore(db)
	tagResolver := tags.NewResolver(tagStore)

	// --- Course content store ---
	store := modulestore.NewHTTPModuleStore(cfg.ContentStoreURL)

	// --- Sinks ---
	blockSink := sinks.NewXBlockSink(store, tagResolver)
	courseSink := sinks.NewCourseOverviewSink(reg, chClient, tagResolver, blockSink)
	scheduledSinks := []sinks.Sink{
		sinks.NewUserProfileSink(reg, chClient),
		sinks.NewExternalIDSink(reg, chClient),
		sinks.NewCourseEnrollmentSink(reg, chClient),
		sinks.NewTaxonomySink(reg, chClient),
		sinks.NewTagSink(reg, chClient, tagResolver),
		sinks.NewObjectTagSink(reg, chClient, tagResolver),
	}
	// Retirement is strictly event-driven; it never joins the periodic dump.
	dataSinks := append(append([]sinks.Sink{}, scheduledSinks...), sinks.NewUserRetirementSink(reg, chClient))

	// --- Task dispatch and worker ---
	dispatcher := tasks.NewDispatcher(js)
	worker := tasks.NewWorker(js, courseSink, dataSinks)
	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start dump worker: %v", err)
	}

	// Handlers for host lifecycle events. The HTTP surface and any host event
	// bridge publish through these.
	signals.Connect(dispatcher)

	// --- Periodic full dump ---
	dumpScheduler := scheduler.NewScheduler(cfg.DumpSchedule, scheduledSinks)
	if err := dumpScheduler.Start(); err != nil {
		log.Fatalf("Failed to start dump scheduler: %v", err)
	}

	// --- HTTP server ---
	supersetClient := superset.NewClient(cfg.Superset, cfg.DashboardLocales)
	handler := handlers.NewHandler(
		cfg,
		supersetClient,
		handlers.NewGormAccessChecker(db),
		handlers.NewGormCourseLocator(db),
		dispatcher,
	)

	router := gin.Default()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServicePort),
		Handler: router,
	}

	go func() {
		log.Printf("Starting aspects service on port %s", cfg.ServicePort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, exiting...")

	dumpScheduler.Stop()
	worker.Stop()
	if err := server.Close(); err != nil {
		log.Printf("Error closing HTTP server: %v", err)
	}
	log.Println("Aspects service stopped gracefully.")
}
