package main

import (
	"net/http"
	"os"

	"notebridge/config/database"
	"notebridge/pkg/logger"
	"notebridge/router"
	"notebridge/socket"
	"notebridge/stream"

	"github.com/joho/godotenv"
)

func main() {
	logger.Init()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	db := database.Connect()
	defer db.Close()

	// The room hub relays live edits; the stream hub feeds notebook
	// subscribers. Both are process-local and die with the process.
	rooms := socket.NewHub(db)
	feed := stream.NewHub()

	handler := router.Setup(db, rooms, feed)

	addr := os.Getenv("addr")
	if addr == "" {
		addr = ":8080"
	}
	logger.Sugar.Infof("NoteBridge backend listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
