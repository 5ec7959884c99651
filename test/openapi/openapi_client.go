package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

const (
	apiBaseURL = "http://localhost:8080"
)

func main() {
	baseURL := apiBaseURL
	if v := os.Getenv("CHERRYCAKE_URL"); v != "" {
		baseURL = v
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	fmt.Println("=== Export the OpenAPI document ===")
	data, err := fetch(client, baseURL+"/api/openapi")
	if err != nil {
		log.Fatalf("Failed to export OpenAPI document: %v", err)
	}

	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		log.Fatalf("Failed to load OpenAPI document: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		log.Fatalf("OpenAPI document is invalid: %v", err)
	}

	fmt.Printf("  OpenAPI Version: %s\n", doc.OpenAPI)
	fmt.Printf("  Title: %s\n", doc.Info.Title)
	fmt.Printf("  Version: %s\n", doc.Info.Version)

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for path := range paths {
		keys = append(keys, path)
	}
	sort.Strings(keys)

	fmt.Printf("  Paths: %d\n", len(keys))
	for _, path := range keys {
		for method, op := range paths[path].Operations() {
			fmt.Printf("    - %s %s (%s)\n", method, path, op.OperationID)
		}
	}

	if len(os.Args) > 1 {
		if err := os.WriteFile(os.Args[1], data, 0644); err != nil {
			log.Printf("Warning: Failed to save OpenAPI document: %v", err)
		} else {
			fmt.Printf("OpenAPI document saved to %s\n", os.Args[1])
		}
	}
}

func fetch(client *http.Client, u string) ([]byte, error) {
	resp, err := client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	return body, nil
}
