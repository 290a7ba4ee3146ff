// Command bridge runs the audio bridge HTTP/WS server.
package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/audiobridge/config"
	"github.com/rapidaai/audiobridge/internal/callback"
	"github.com/rapidaai/audiobridge/internal/carrier"
	"github.com/rapidaai/audiobridge/internal/engine"
	"github.com/rapidaai/audiobridge/internal/ingress"
	"github.com/rapidaai/audiobridge/internal/registry"
	"github.com/rapidaai/audiobridge/internal/voiceai"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
	"github.com/rapidaai/audiobridge/router"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		panic(fmt.Errorf("loading config: %w", err))
	}

	logger := commons.NewLogger(commons.LogConfig{
		Level:   cfg.LogLevel,
		Console: true,
		FilePath: cfg.LogFile,
	})

	logStartup(logger, cfg)

	carrierClient, err := carrier.New(carrier.Config{
		Provider:     cfg.CarrierProvider,
		APIKey:       cfg.CarrierAPIKey,
		APISecret:    cfg.CarrierAPISecret,
		ConnectionID: cfg.CarrierConnectionID,
		FromNumber:   cfg.CarrierFromNumber,
	}, logger)
	if err != nil {
		logger.Fatalf("constructing carrier client: %v", err)
	}

	// The summary and moderation clients are independent; construct them
	// concurrently via errgroup.
	ctx := context.Background()
	var summarizer *voiceai.Summarizer
	var moderator voiceai.Moderator

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := voiceai.NewSummarizer(gctx, cfg.VoiceModelAPIKey, cfg.SummaryModelName)
		if err != nil {
			logger.Warnw("summary generation disabled: failed to construct summarizer", "error", err)
			return nil
		}
		summarizer = s
		return nil
	})
	g.Go(func() error {
		m, err := voiceai.NewModerator(gctx, cfg.VoiceModelAPIKey, cfg.SummaryModelName)
		if err != nil {
			logger.Warnw("briefing moderation disabled: failed to construct moderator", "error", err)
			return nil
		}
		moderator = m
		return nil
	})
	_ = g.Wait()

	reg := registry.New()
	emitter := callback.New(cfg.BridgeSecret, logger)

	eng := engine.New(reg, carrierClient, emitter, summarizer, logger, engine.Options{
		PublicURL:        cfg.PublicURL,
		VoiceModelAPIKey: cfg.VoiceModelAPIKey,
		VoiceModelName:   cfg.VoiceModelName,
		VoiceName:        cfg.VoiceName,
		CarrierBigEndian: cfg.CarrierL16BigEndian,
	})

	server := &ingress.Server{
		Engine:       eng,
		Moderator:    moderator,
		BridgeSecret: cfg.BridgeSecret,
		Logger:       logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	router.Register(r, server)

	logger.Infof("audio bridge listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func logStartup(logger commons.Logger, cfg *config.AppConfig) {
	logger.Infof("starting audio bridge: provider=%s public_url=%s carrier_key=%s",
		cfg.CarrierProvider, cfg.PublicURL, maskSecret(cfg.CarrierAPIKey))
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
