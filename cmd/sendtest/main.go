// cmd/sendtest/main.go
//
// Operator smoke tool: schedules a campaign against a running server from a
// local token file (one recipient token per line).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	tokenFile := flag.String("tokens", "", "path to recipient token file (required)")
	title := flag.String("title", "Test broadcast", "notification title")
	body := flag.String("body", "Scheduled by sendtest", "notification body")
	authToken := flag.String("auth", "", "delivery bearer credential (required)")
	delay := flag.Duration("in", time.Minute, "how far in the future to schedule")
	flag.Parse()

	if *tokenFile == "" || *authToken == "" {
		flag.Usage()
		os.Exit(2)
	}

	payload, err := os.ReadFile(*tokenFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read token file:", err)
		os.Exit(1)
	}

	reqBody, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": *title,
			"body":  *body,
		},
		"recipients":   string(payload),
		"auth_token":   *authToken,
		"scheduled_at": time.Now().Add(*delay).Format(time.RFC3339),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode request:", err)
		os.Exit(1)
	}

	resp, err := http.Post(*server+"/campaigns", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintln(os.Stderr, "schedule request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("status %d\n%s\n", resp.StatusCode, out)
	if resp.StatusCode != http.StatusCreated {
		os.Exit(1)
	}
}
