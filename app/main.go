package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podcastify/podcastify/app/api"
	"github.com/podcastify/podcastify/app/cfg"
	"github.com/podcastify/podcastify/app/feed"
	"github.com/podcastify/podcastify/app/publish"
	"github.com/podcastify/podcastify/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if appCfg == nil {
		// Help was shown
		return 0
	}

	setupLogger(appCfg.Debug)

	slog.Debug("Starting podcastify", "version", appCfg.Version, "feeds_dir", appCfg.FeedsDir)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load feed configurations", "error", err)
		return 1
	}
	if configCache.GetConfigCount() == 0 {
		slog.Error("No feed configurations found", "feeds_dir", appCfg.FeedsDir)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{}

	if appCfg.Serve {
		return serve(ctx, appCfg, configCache, httpClient)
	}

	publisher, err := newPublisher(appCfg)
	if err != nil {
		slog.Error("Failed to configure publisher", "error", err)
		return 1
	}

	feedConfigs := configCache.GetEnabledConfigs()
	taskList := make([]tasks.TaskInterface, 0, len(feedConfigs))
	for _, feedConfig := range feedConfigs {
		taskList = append(taskList, tasks.NewConvertFeedTask(feedConfig, httpClient, appCfg.UserAgent, publisher))
	}

	if len(taskList) == 0 {
		slog.Warn("All feeds are disabled, nothing to do")
		return 0
	}

	if err := tasks.NewRunner(appCfg.WorkerCount).Run(ctx, taskList); err != nil {
		slog.Error("Conversion failed", "error", err)
		return 1
	}

	return 0
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newPublisher(appCfg *cfg.Cfg) (publish.Publisher, error) {
	hostname, err := os.Hostname()
	if err != nil && appCfg.PublishMode == cfg.PublishModeAuto {
		slog.Warn("Failed to read host name, assuming a non-production host", "error", err)
	}

	mode, err := publish.Select(appCfg.PublishMode, hostname, appCfg.ProductionHostPattern)
	if err != nil {
		return nil, err
	}

	switch mode {
	case publish.ModeLocal:
		slog.Debug("Publishing locally", "dir", appCfg.LocalDir)
		return publish.NewLocalPublisher(appCfg.LocalDir), nil
	default:
		slog.Debug("Publishing remotely", "host", appCfg.RemoteHost, "dir", appCfg.RemoteDir)
		return publish.NewSFTPPublisher(publish.SSHConfig{
			Host:           appCfg.RemoteHost,
			User:           appCfg.RemoteUser,
			KeyFile:        appCfg.SSHKey,
			KnownHostsFile: appCfg.SSHKnownHosts,
			Timeout:        time.Minute,
		}, appCfg.RemoteDir), nil
	}
}

func serve(ctx context.Context, appCfg *cfg.Cfg, configCache *feed.ConfigCache, httpClient *http.Client) int {
	handler := api.NewHandler(configCache, httpClient, appCfg.UserAgent, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting preview server", "port", appCfg.Port, "feed", fmt.Sprintf("http://localhost:%s/feeds/<name>", appCfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("Shutting down preview server")
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return 1
	}

	return exitCode
}
