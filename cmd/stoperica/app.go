package main

import (
	"context"
	"os"

	"backend-stoperica/internal/config"
	"backend-stoperica/internal/db"
	"backend-stoperica/internal/history"
	"backend-stoperica/internal/identity"
	"backend-stoperica/internal/kvstore"
	"backend-stoperica/internal/live"
	"backend-stoperica/internal/logging"
	"backend-stoperica/internal/proximity"
	"backend-stoperica/internal/summary"
	"backend-stoperica/internal/upload"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type globalFlags struct {
	dataPath string
	endpoint string
	verbose  bool
}

// app holds everything a command may need. Network pieces are created lazily
// so that local-only commands work offline.
type app struct {
	cfg      config.Config
	kv       *kvstore.Store
	history  *history.Store
	markers  *proximity.MarkerStore
	prefs    *identity.Cache
	client   *upload.Client
	uploader *upload.Uploader

	rdb *redis.Client
}

func loadApp(flags *globalFlags) (*app, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	cfg := config.Load()
	if flags.dataPath != "" {
		cfg.DataPath = flags.dataPath
	}
	if flags.endpoint != "" {
		cfg.UploadEndpoint = flags.endpoint
	}
	level := cfg.LogLevel
	if flags.verbose {
		level = "debug"
	}
	logging.Setup(level, true, os.Stderr)

	kv, err := kvstore.Open(cfg.DataPath)
	if err != nil {
		return nil, err
	}

	hist := history.NewStore(kv)
	client := upload.NewClient(cfg.UploadEndpoint)
	uploader := upload.NewUploader(client, hist)
	hist.SetRemote(uploader)

	return &app{
		cfg:      cfg,
		kv:       kv,
		history:  hist,
		markers:  proximity.NewMarkerStore(kv),
		prefs:    identity.NewCache(kv),
		client:   client,
		uploader: uploader,
	}, nil
}

func (a *app) Close() {
	a.uploader.Wait()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.kv.Close()
}

// identity signs in when needed. Failing to reach the server is not fatal:
// the cached username is still used and uploads queue up for a retry.
func (a *app) identity(ctx context.Context) identity.Identity {
	id, err := identity.Ensure(ctx, a.prefs, a.client)
	if err != nil {
		log.Warn().Err(err).Msg("working offline")
		id, _ = a.prefs.Load(ctx)
	}
	if id.Username == identity.DefaultUsername && a.cfg.Username != "" {
		id.Username = a.cfg.Username
	}
	return id
}

func (a *app) summaryConfig() summary.Config {
	return summary.Config{
		TrackLengthM:      a.cfg.TrackLengthM,
		ReferenceStdDevMs: a.cfg.ReferenceStdDevMs,
		TopSpeedFactor:    a.cfg.TopSpeedFactor,
	}
}

func (a *app) proximityConfig() proximity.Config {
	return proximity.Config{
		ThresholdM: a.cfg.ProximityThresholdM,
		Cooldown:   a.cfg.ProximityCooldown,
	}
}

func (a *app) liveClient(ctx context.Context) (*live.Client, error) {
	if a.rdb == nil {
		rdb, err := db.DialRedis(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
	}
	id := a.identity(ctx)
	userID := id.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	return live.NewClient(live.NewStore(a.rdb), nil, live.Identity{
		ClientID: uuid.NewString(),
		UserID:   userID,
		Username: id.Username,
	}, live.Options{
		BroadcastInterval: a.cfg.LiveBroadcastInterval,
		SessionTimeout:    a.cfg.LiveSessionTimeout,
		PresenceTTL:       a.cfg.PresenceTTL,
	}), nil
}
