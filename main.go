// Command resv-notifier monitors a reservation-availability calendar and
// pushes a LINE notification when bookable slots open up.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"resv-notifier/history"
	"resv-notifier/notify"
	"resv-notifier/pkg/monitor"
	"resv-notifier/poll"
	"resv-notifier/scraper"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const historyObject = "notified-slots.txt"

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	calendarURL := os.Getenv("CALENDAR_URL")
	if calendarURL == "" {
		logger.Error("CALENDAR_URL environment variable required")
		os.Exit(1)
	}

	cfg := loadConfig(logger)

	// History storage: local file for development, GCS bucket otherwise
	bucket := os.Getenv("HISTORY_BUCKET")
	localPath := os.Getenv("HISTORY_PATH")
	if bucket == "" && localPath == "" {
		localPath = "./data/notified-slots.txt"
		logger.Info("No HISTORY_BUCKET set, defaulting to local history file", "path", localPath)
	}

	var client *storage.Client
	if bucket != "" {
		var err error
		if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
			client, err = storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
		} else {
			client, err = storage.NewClient(ctx)
		}
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}
	store := history.New(client, bucket, historyObject, localPath, logger)

	// Delivery: LINE push when credentials exist, mock otherwise
	var provider notify.Provider
	channelToken := os.Getenv("LINE_CHANNEL_TOKEN")
	userID := os.Getenv("LINE_USER_ID")
	if channelToken == "" || userID == "" {
		logger.Info("Mock notification mode enabled (no LINE credentials)")
		provider = notify.NewMockProvider(logger)
	} else {
		provider = notify.NewLineProvider(channelToken, userID, logger)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	mon := poll.New(
		scraper.New(httpClient, logger),
		store,
		notify.New(provider, calendarURL, logger),
		calendarURL,
		cfg,
		logger,
	)

	// With PORT set, expose an HTTP trigger for scheduler-driven
	// deployments; otherwise run one check and exit.
	if port := os.Getenv("PORT"); port != "" {
		serve(mon, port, logger)
		return
	}

	if err := mon.Check(ctx); err != nil {
		logger.Error("Availability check failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig assembles the monitor configuration from the environment.
func loadConfig(logger *slog.Logger) monitor.Config {
	cfg := monitor.DefaultConfig()

	if v := os.Getenv("MIN_PARTY_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Error("Invalid MIN_PARTY_SIZE", "value", v)
			os.Exit(1)
		}
		cfg.MinPartySize = n
	}

	if v := os.Getenv("DEDUP_POLICY"); v != "" {
		switch monitor.Policy(v) {
		case monitor.PolicyOncePerDay, monitor.PolicyStateChange:
			cfg.Policy = monitor.Policy(v)
		default:
			logger.Error("Invalid DEDUP_POLICY", "value", v,
				"expected", fmt.Sprintf("%s or %s", monitor.PolicyOncePerDay, monitor.PolicyStateChange))
			os.Exit(1)
		}
	}

	if v := os.Getenv("TIME_LABELS"); v != "" {
		var labels []string
		for _, label := range strings.Split(v, ",") {
			if label = strings.TrimSpace(label); label != "" {
				labels = append(labels, label)
			}
		}
		if len(labels) == 0 {
			logger.Error("TIME_LABELS set but contains no labels", "value", v)
			os.Exit(1)
		}
		cfg.TimeLabels = labels
	}

	return cfg
}

// serve exposes /pollz (POST, runs one check) and /healthz.
func serve(mon *poll.Monitor, port string, logger *slog.Logger) {
	http.HandleFunc("/pollz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		logger.Info("Poll endpoint triggered")
		if err := mon.Check(r.Context()); err != nil {
			logger.Error("Poll check failed", "error", err)
			http.Error(w, "Check failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"completed"}`); err != nil {
			logger.Warn("Failed to write response", "error", err)
		}
	})

	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprint(w, "ok"); err != nil {
			logger.Warn("Failed to write response", "error", err)
		}
	})

	logger.Info("Starting HTTP server", "port", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
