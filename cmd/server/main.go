package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/staticsnack/server/internal/api"
	"github.com/staticsnack/server/internal/auth"
	"github.com/staticsnack/server/internal/config"
	"github.com/staticsnack/server/internal/ghapp"
	"github.com/staticsnack/server/internal/pipeline"
	"github.com/staticsnack/server/internal/store"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load(os.Getenv("SNACK_CONFIG"))
	if err != nil {
		log.Fatalf("[snack] config: %v", err)
	}
	if cfg.GitHub.AppID == 0 {
		log.Fatal("[snack] SNACK_GITHUB_APP_ID not set")
	}
	if cfg.GitHub.PrivateKey == nil {
		log.Fatal("[snack] GitHub App private key not configured")
	}

	var st store.Store
	switch cfg.Storage.Backend {
	case config.StorageBackendRedis:
		st, err = store.NewRedisStore(cfg.Storage.Redis.StoreConfig())
		if err != nil {
			log.Fatalf("[snack] storage: %v", err)
		}
	default:
		log.Print("[snack] using in-memory storage; data will not survive restarts")
		st = store.NewMemoryStore()
	}

	resolver := ghapp.NewResolver(cfg.GitHub.AppID, cfg.GitHub.PrivateKey)
	svc := pipeline.NewService(st, resolver)
	handler := api.NewHandler(svc, api.AllowAll())

	actorMW := auth.ExtractActor("anonymous")
	authMW := actorMW
	if secret := os.Getenv("SNACK_API_SECRET"); secret != "" {
		bearer := auth.BearerAuth(secret)
		authMW = func(next http.Handler) http.Handler {
			return bearer(actorMW(next))
		}
	}
	router := api.NewRouter(handler, authMW)

	log.Printf("[snack] server listening on %s", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, router))
}
