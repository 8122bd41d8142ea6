package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/nwah/tripplanner/api"
	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/session"
	"github.com/nwah/tripplanner/storage"
)

func main() {
	// Load configuration
	if err := LoadConfig("config.toml"); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := run(GetConfig()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(cfg Config) error {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kv, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer kv.Close()
	manager := storage.NewManager(kv, cfg.Storage, logger.Named("storage"))

	navCfg := GetNavConfig()
	geocoder := nav.NewNominatim(navCfg, logger.Named("nominatim"))
	places := nav.NewOverpass(navCfg, cfg.Session.Denylist, logger.Named("overpass"))
	router, err := newRouter(navCfg, logger)
	if err != nil {
		return err
	}

	sessions := api.NewSessions(func(renderer nav.Renderer) *session.Controller {
		return session.New(cfg.Session, session.Deps{
			Geocoder: geocoder,
			Places:   places,
			Router:   router,
			Renderer: renderer,
			Storage:  manager,
		}, logger.Named("session"))
	}, logger.Named("sessions"))
	defer sessions.CloseAll()

	serverCfg := api.DefaultConfig(cfg.Port)
	lookups := nav.NewHandlers(geocoder, places, router, logger.Named("lookup"))
	srv := api.NewServer(serverCfg, api.NewRouter(serverCfg, lookups, sessions, logger.Named("http")))

	logger.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("router", navCfg.Router),
		zap.String("mode", cfg.Session.Mode),
		zap.String("storage", cfg.Storage.Path))
	return api.ListenAndServe(srv, logger)
}

func newRouter(cfg nav.NavConfig, logger *zap.Logger) (nav.Router, error) {
	if nav.RouterKind(cfg.Router) == nav.RouterGoogle {
		return nav.NewGoogle(cfg, logger.Named("google"))
	}
	return nav.NewOSRM(cfg, logger.Named("osrm")), nil
}
