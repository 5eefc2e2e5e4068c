package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// A small smoke-test client for a running weathersync server. It triggers a
// manual refresh, waits for the sync to land, and prints what the server
// reports for current weather, the week history and cache stats.
func main() {
	logger := log.New(os.Stdout, "e2e-client: ", log.LstdFlags)

	baseURL := flag.String("url", "http://localhost:8080", "base URL of the weathersync server")
	lat := flag.Float64("lat", 0, "optional latitude to query")
	lon := flag.Float64("lon", 0, "optional longitude to query")
	flag.Parse()

	client := resty.New().SetBaseURL(*baseURL).SetTimeout(10 * time.Second)

	resp, err := client.R().Get("/health")
	if err != nil {
		logger.Fatalf("Server not reachable at %s: %v", *baseURL, err)
	}
	logger.Printf("Health: %s", resp.String())

	logger.Println("Triggering a manual sync...")
	resp, err = client.R().Post("/api/sync/refresh")
	if err != nil {
		logger.Fatalf("Failed to trigger sync: %v", err)
	}
	logger.Printf("Refresh: %s", resp.String())

	// The refresh is asynchronous; give the sync a moment to finish.
	time.Sleep(2 * time.Second)

	current := "/api/weather/current"
	if *lat != 0 || *lon != 0 {
		current = fmt.Sprintf("%s?lat=%v&lon=%v", current, *lat, *lon)
	}
	for _, path := range []string{current, "/api/weather/week", "/api/weather/stats"} {
		resp, err := client.R().Get(path)
		if err != nil {
			logger.Fatalf("GET %s failed: %v", path, err)
		}
		logger.Printf("GET %s -> %d", path, resp.StatusCode())
		printBody(logger, resp)
	}
}

func printBody(logger *log.Logger, resp *resty.Response) {
	body := strings.TrimSpace(resp.String())
	if body == "" {
		return
	}
	if len(body) > 2000 {
		body = body[:2000] + "..."
	}
	fmt.Println(body)
}
