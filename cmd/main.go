// Server entry point: reads configuration, wires the dataset holder, map sessions and the
// HTTP API, then serves the UI bundle next to them.
package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"hotspot-map/internal/api"
	"hotspot-map/internal/dataset"
	"hotspot-map/internal/locate"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/middleware"
	"hotspot-map/internal/migrate"
	"hotspot-map/internal/overlay"
	"hotspot-map/internal/raster"
	"hotspot-map/internal/scene"
	"hotspot-map/internal/session"
	"hotspot-map/internal/store"
	"hotspot-map/internal/surface"
	"hotspot-map/internal/utils"
	"hotspot-map/internal/version"
)

const kakaoSDK = "https://dapi.kakao.com/v2/maps/sdk.js"

func envSeconds(key string, def int) time.Duration {
	if s := os.Getenv(key); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

// openSource picks the dataset backend from DATASET_SOURCE. The returned store is non-nil
// only for postgres.
func openSource(rc *redis.Client) (dataset.Source, *store.Store, error) {
	l := logger.L()
	kind := strings.ToLower(os.Getenv("DATASET_SOURCE"))
	switch kind {
	case "", "file":
		dir := os.Getenv("DATASET_DIR")
		if dir == "" {
			dir = filepath.Join("data", "datasets")
		}
		l.Debug("config_dataset_dir", "dir", dir)
		return dataset.FileSource{Dir: dir}, nil, nil
	case "http":
		base := os.Getenv("DATASET_BASE_URL")
		if base == "" {
			return nil, nil, errors.New("DATASET_BASE_URL is required for DATASET_SOURCE=http")
		}
		l.Debug("config_dataset_base_url", "url", base)
		return &dataset.HTTPSource{
			BaseURL:  base,
			Client:   &http.Client{Timeout: 15 * time.Second},
			Cache:    rc,
			CacheTTL: envSeconds("DATASET_CACHE_TTL_S", 600),
		}, nil, nil
	case "postgres":
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		st := store.AttachDB(db)
		return st, st, nil
	default:
		return nil, nil, errors.New("unknown DATASET_SOURCE " + strconv.Quote(kind))
	}
}

// sdkCheck gates the map surface on a configured SDK key.
func sdkCheck(key string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if key == "" {
			return errors.New("KAKAO_MAP_API_KEY is not set")
		}
		return nil
	}
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		defer rc.Close()
	}

	src, st, err := openSource(rc)
	if err != nil {
		l.Error("dataset_source_error", "err", err)
		os.Exit(1)
	}
	if st != nil {
		defer st.Close()
	}

	holder := &dataset.Holder{}
	go holder.Run(ctx, src, 2*time.Second, envSeconds("DATASET_REFRESH_S", 0))

	geo := locate.OpenFromEnv()
	defer geo.Close()

	kakaoKey := os.Getenv("KAKAO_MAP_API_KEY")
	rasterCfg := raster.ConfigFromEnv()
	if rasterCfg.AuthKey == "" {
		l.Warn("config_koroad_key_missing")
	}
	sessions := session.NewManager(session.Options{
		NewLoader:   func() surface.Loader { return scene.NewLoader(sdkCheck(kakaoKey)) },
		Data:        holder,
		Overlay:     overlay.OptionsFromEnv(),
		Raster:      rasterCfg,
		Prober:      raster.NewProberFromEnv(rc),
		LoadTimeout: 10 * time.Second,
	}, session.IdleTTLFromEnv())
	go sessions.Run(ctx, time.Minute)

	deps := api.Deps{Data: holder, Sessions: sessions, Locator: geo}
	if st != nil {
		deps.Imports = st
	}
	apiMux := api.BuildRoutes(deps)

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.Handle("/", http.FileServer(http.Dir(ui)))

	sdkURL := kakaoSDK + "?autoload=false&libraries=clusterer&appkey=" + url.QueryEscape(kakaoKey)
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'"))
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte("window.__MAP_SDK_URL__='" + sdkURL + "'"))
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'"))
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "hotspot-map.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		if err := s.ListenAndServeTLS(certPath, keyPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
	}
}
