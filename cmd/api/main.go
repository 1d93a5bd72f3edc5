package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"podcast-insights-go/internal/analyze"
	"podcast-insights-go/internal/audio"
	"podcast-insights-go/internal/config"
	"podcast-insights-go/internal/export"
	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/pipeline"
	"podcast-insights-go/internal/render"
	"podcast-insights-go/internal/retry"
	"podcast-insights-go/internal/scheduler"
	"podcast-insights-go/internal/store"
	"podcast-insights-go/internal/transcribe"
	"podcast-insights-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "podcast-insights-go").Info("starting service")

	cfg := config.Load()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer st.Close()
	log.WithField("database", cfg.DatabasePath).Info("database ready")

	aiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		aiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	aiClient := openai.NewClientWithConfig(aiCfg)
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	retryCfg := retry.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		CapDelay:    cfg.RetryCapDelay,
	}

	var transcriber transcribe.Transcriber
	switch cfg.TranscribeStrategy {
	case config.StrategyPolling:
		transcriber = transcribe.NewPolling(transcribe.PollingConfig{
			BaseURL: cfg.PollingBaseURL,
			APIKey:  cfg.PollingAPIKey,
			TempDir: cfg.TempDir,
			Retry:   retryCfg,
		}, httpClient)
	case config.StrategyWhisper:
		prep := audio.NewPreparer(cfg.FFmpegPath, cfg.FFprobePath, cfg.TranscodeTimeout)
		transcriber = transcribe.NewWhisper(aiClient, prep, cfg.WhisperModel, cfg.MaxUploadBytes, retryCfg)
	default:
		log.WithField("strategy", cfg.TranscribeStrategy).Fatal("unknown transcription strategy")
	}
	log.WithField("strategy", cfg.TranscribeStrategy).Info("transcription strategy selected")

	engine := analyze.NewEngine(aiClient, analyze.Config{
		Model:               cfg.AnalysisModel,
		SinglePassThreshold: cfg.SinglePassThreshold,
		ChunkBudget:         cfg.ChunkBudget,
		SummaryTargetChars:  cfg.SummaryTargetChars,
		KeyPointCount:       cfg.KeyPointCount,
		Retry:               retryCfg,
	})

	proc := pipeline.NewProcessor(st, transcriber, engine, render.NewMarkdown(cfg.OutputDir), httpClient, pipeline.Config{
		MinTranscriptChars: cfg.MinTranscriptChars,
		TempDir:            cfg.TempDir,
	})

	sched := scheduler.New(st, scheduler.NopRefresher{}, st, proc, scheduler.Config{
		MaxConcurrentFeeds: cfg.MaxConcurrentFeeds,
		UpdateWindow:       time.Duration(cfg.UpdateWindowHours) * time.Hour,
	})
	exporter := export.New(st)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/feeds", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "feeds")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			http.Error(w, "title and url required", http.StatusBadRequest)
			return
		}
		id, err := st.UpsertFeed(r.Context(), req.Title, req.URL)
		if err != nil {
			reqLog.WithError(err).Error("feed upsert failed")
			http.Error(w, "feed upsert failed", http.StatusInternalServerError)
			return
		}
		reqLog.WithField("feed_id", id).Info("feed registered")
		writeJSON(w, map[string]int64{"feed_id": id})
	})

	mux.HandleFunc("/episodes", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "episodes")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FeedID      int64     `json:"feed_id"`
			Title       string    `json:"title"`
			AudioURL    string    `json:"audio_url"`
			PublishedAt time.Time `json:"published_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FeedID == 0 || req.AudioURL == "" {
			http.Error(w, "feed_id and audio_url required", http.StatusBadRequest)
			return
		}
		if req.PublishedAt.IsZero() {
			req.PublishedAt = time.Now()
		}
		id, created, err := st.InsertEpisode(r.Context(), types.Episode{
			FeedID:      req.FeedID,
			Title:       req.Title,
			AudioURL:    req.AudioURL,
			PublishedAt: req.PublishedAt,
		})
		if err != nil {
			reqLog.WithError(err).Error("episode insert failed")
			http.Error(w, "episode insert failed", http.StatusInternalServerError)
			return
		}
		reqLog.WithField("episode_id", id).WithField("created", created).Info("episode registered")
		writeJSON(w, map[string]any{"episode_id": id, "created": created})
	})

	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "run")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var (
			sum scheduler.RunSummary
			err error
		)
		if raw := r.URL.Query().Get("feed_id"); raw != "" {
			feedID, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				http.Error(w, "bad feed_id", http.StatusBadRequest)
				return
			}
			reqLog = reqLog.WithField("feed_id", feedID)
			sum, err = sched.RunFeed(r.Context(), feedID)
		} else {
			sum, err = sched.RunAll(r.Context())
		}
		if err != nil {
			reqLog.WithError(err).Warn("run finished with error")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sum)
	})

	mux.HandleFunc("/reprocess", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "reprocess")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		episodeID, err := strconv.ParseInt(r.URL.Query().Get("episode_id"), 10, 64)
		if err != nil {
			http.Error(w, "bad episode_id", http.StatusBadRequest)
			return
		}
		reqLog = reqLog.WithField("episode_id", episodeID)
		ep, err := st.GetEpisode(r.Context(), episodeID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		sum, err := sched.ReprocessEpisode(r.Context(), ep)
		if err != nil {
			reqLog.WithError(err).Warn("reprocess failed")
		}
		writeJSON(w, sum)
	})

	mux.HandleFunc("/retry-failed", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "retry-failed")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sum, err := sched.RetryFailed(r.Context())
		if err != nil {
			reqLog.WithError(err).Warn("retry sweep failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, sum)
	})

	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "export")
		path := r.URL.Query().Get("path")
		if path == "" {
			path = "podcast-insights-report.xlsx"
		}
		if err := exporter.Write(r.Context(), path); err != nil {
			reqLog.WithError(err).Error("export failed")
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		reqLog.WithField("path", path).Info("report written")
		writeJSON(w, map[string]string{"path": path})
	})

	if cfg.TickerInterval > 0 {
		log.WithField("interval", cfg.TickerInterval.String()).Info("scheduled runs enabled")
		go func() {
			ticker := time.NewTicker(cfg.TickerInterval)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := sched.RunScheduled(context.Background()); err != nil && !errors.Is(err, scheduler.ErrBusy) {
					log.WithError(err).Warn("scheduled run failed")
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
