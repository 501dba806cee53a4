// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/handlers"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/jason-s-yu/lobbyd/internal/registry"
	"github.com/jason-s-yu/lobbyd/internal/session"
	"github.com/jason-s-yu/lobbyd/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}

	// Property store backend: redis by default, memory for single-node dev.
	var st store.Store
	switch backend := os.Getenv("STORE_BACKEND"); backend {
	case "", "redis":
		rdb, err := store.ConnectRedis()
		if err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		st = store.NewRedis(rdb)
	case "memory":
		logger.Warn("using in-memory property store; state is lost on restart")
		st = store.NewMemory()
	default:
		log.Fatalf("unknown STORE_BACKEND %q", backend)
	}

	// The account database is optional; without it websocket joins get
	// synthesized guest usernames and the user endpoints answer 503.
	var users handlers.UserStore
	if os.Getenv("PG_HOST") != "" {
		db, err := database.Connect(context.Background())
		if err != nil {
			log.Fatalf("database connect failed: %v", err)
		}
		defer db.Close()
		users = db
	} else {
		logger.Warn("PG_HOST not set; running without an account database")
	}

	engine := session.NewEngine(logger, st)
	reg := registry.NewService(logger, st, engine)
	srv := handlers.NewServer(logger, reg, engine, users)

	mux := http.NewServeMux()
	logReq := middleware.LogMiddleware(logger)

	// user endpoints
	mux.Handle("/user/create", logReq(handlers.CreateUserHandler(srv)))
	mux.Handle("/user/login", logReq(handlers.LoginHandler(srv)))

	// match RPCs
	mux.Handle("/match/create", logReq(handlers.CreateMatchHandler(srv)))
	mux.Handle("/match/find", logReq(handlers.FindMatchHandler(srv)))
	mux.Handle("/match/list", logReq(handlers.ListMatchesHandler(srv)))
	mux.Handle("/match/properties", logReq(handlers.GetUserPropertiesHandler(srv)))

	// presence transport
	mux.Handle("/match/ws/", logReq(handlers.MatchWSHandler(srv)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
