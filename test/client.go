package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080"
	csrfCookie     = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
)

func main() {
	baseURL := defaultBaseURL
	if v := os.Getenv("CHERRYCAKE_URL"); v != "" {
		baseURL = v
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("Failed to create cookie jar: %v", err)
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Jar:     jar,
	}

	// Step 1: Health check, which also issues the CSRF cookie
	fmt.Println("Step 1: Checking health...")
	health, err := getJSON(client, baseURL+"/health", http.StatusOK)
	if err != nil {
		log.Fatalf("Failed to check health: %v", err)
	}
	fmt.Printf("Status: %s\n", health["status"])

	// Step 2: List mapped actions
	fmt.Println("\nStep 2: Listing mapped actions...")
	var actions []map[string]interface{}
	if err := decode(client, http.MethodGet, baseURL+"/api/actions", nil, http.StatusOK, &actions); err != nil {
		log.Fatalf("Failed to list actions: %v", err)
	}
	for i, a := range actions {
		fmt.Printf("%d. %s %s -> %s.%s\n", i+1, a["name"], a["pattern"], a["module"], a["method"])
	}

	// Step 3: Create a product
	fmt.Println("\nStep 3: Creating a product...")
	token := cookieValue(jar, baseURL, csrfCookie)
	if token == "" {
		log.Fatalf("No CSRF cookie issued")
	}
	slug := fmt.Sprintf("smoke-%d", time.Now().Unix())
	created, err := postJSON(client, baseURL+"/products/new", token, map[string]interface{}{
		"slug":        slug,
		"name":        "Smoke test product",
		"description": "Created by the smoke client",
		"price":       1234,
	})
	if err != nil {
		log.Fatalf("Failed to create product: %v", err)
	}
	fmt.Printf("Product created with ID: %s\n", created["id"])

	// Step 4: Show it, then list the first page
	fmt.Println("\nStep 4: Reading it back...")
	shown, err := getJSON(client, baseURL+"/product/"+url.PathEscape(slug), http.StatusOK)
	if err != nil {
		log.Fatalf("Failed to show product: %v", err)
	}
	fmt.Printf("Product: %s (%v cents)\n", shown["name"], shown["priceCents"])

	page, err := getJSON(client, baseURL+"/products?page=1", http.StatusOK)
	if err != nil {
		log.Fatalf("Failed to list products: %v", err)
	}
	fmt.Printf("Listing: %v products in total\n", page["total"])

	// Step 5: Unknown products are not found
	fmt.Println("\nStep 5: Requesting an unknown product...")
	if _, err := getJSON(client, baseURL+"/product/does-not-exist", http.StatusNotFound); err != nil {
		log.Fatalf("Unexpected response: %v", err)
	}
	fmt.Println("Not found, as expected")

	// Step 6: A wrong coupon is declined after the brute force delay
	fmt.Println("\nStep 6: Trying a wrong coupon...")
	start := time.Now()
	if _, err := getJSON(client, baseURL+"/product/red-shoes/coupon?code=WRONG", http.StatusNotFound); err != nil {
		log.Fatalf("Unexpected response: %v", err)
	}
	fmt.Printf("Declined after %s\n", time.Since(start).Round(time.Millisecond))

	fmt.Println("\nSmoke test completed successfully!")
}

// Helper functions
func cookieValue(jar http.CookieJar, baseURL, name string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	for _, c := range jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func getJSON(client *http.Client, u string, wantStatus int) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := decode(client, http.MethodGet, u, nil, wantStatus, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func postJSON(client *http.Client, u, token string, reqBody map[string]interface{}) (map[string]interface{}, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, u, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeader, token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

func decode(client *http.Client, method, u string, body io.Reader, wantStatus int, v interface{}) error {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
