package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"colist-api/api"
	"colist-api/config"
	"colist-api/identity"
	"colist-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	base, err := storage.New(cfg.StorageConnectionString, cfg.ListsTable, cfg.TasksTable, cfg.PurgeQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
	cache := storage.NewCache(base, rc, cfg.SnapshotCacheTTL)
	events := storage.NewEvents(rc, cfg.ChangeChannel, logger)
	store := storage.NewLive(cache, events, logger)

	go storage.NewPurgeWorker(base, logger).Run(context.Background())

	var auth *identity.Verifier
	if cfg.AuthTestMode {
		auth = identity.NewVerifier(nil, "", "")
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = identity.NewVerifier(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, store, auth, logger)

	e.Logger.Fatal(e.Start(cfg.HTTPAddr))
}

// redisOptions accepts both redis URLs and the comma separated
// host,password,ssl form Azure hands out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
