// Package main is a minimal HTTP health check binary for distroless
// containers. It exits 0 when the staffhub /health endpoint answers 200 and 1
// otherwise. The port follows STAFFHUB_PORT so it matches the server.
package main

import (
	"net/http"
	"os"
	"time"
)

func healthURL() string {
	port := os.Getenv("STAFFHUB_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

func main() {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(healthURL())
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
