package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/digitduel/server/internal/broker"
	"github.com/digitduel/server/internal/history"
	"github.com/digitduel/server/internal/httpserver"
	"github.com/digitduel/server/internal/ws"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := openDB(getEnv("DB_PATH", "./data/duel.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	hist := history.NewStore(db)
	b := broker.New(broker.WithRecorder(hist))
	gw := ws.NewGateway(b)
	srv := httpserver.New(db, hist, gw, b)

	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Msg("starting duel server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
