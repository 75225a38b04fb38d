//go:build ignore
// +build ignore

// Package main is a manual concurrency stress test for the borrow endpoint.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <token1> [token2 ...]
//
// Or with environment variables:
//
//	BOOK_ID=<uuid>  TOKENS=<t1>,<t2>,...  go run ./scripts/concurrency_test.go
//
// Each token must belong to a different student. Every goroutine posts
// POST /loans for the same book at the same moment; exactly one should get a
// 201 and the rest a 400 with code BookUnavailable.
//
// Prerequisites:
//   - The server is running against a migrated database.
//   - The book exists and is available.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type borrowResult struct {
	Student    int
	StatusCode int
	Code       string
	LoanID     string
	Err        error
}

func main() {
	serverAddr := os.Getenv("API_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	bookID := os.Getenv("BOOK_ID")
	var tokens []string
	if env := os.Getenv("TOKENS"); env != "" {
		tokens = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		tokens = args[1:]
	}

	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<uuid> TOKENS=<t1,t2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <token1> [token2 ...]")
	}
	if len(tokens) == 0 {
		log.Fatal("At least one student token must be provided via TOKENS env or positional args")
	}

	fmt.Printf("=== Borrow Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Book     : %s\n", bookID)
	fmt.Printf("Students : %d\n\n", len(tokens))

	results := make([]borrowResult, len(tokens))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, tok := range tokens {
		wg.Add(1)
		go func(idx int, token string) {
			defer wg.Done()
			<-start
			results[idx] = attemptBorrow(serverAddr, bookID, strings.TrimSpace(token))
			results[idx].Student = idx + 1
		}(i, tok)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var borrowed, rejected, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] student=%-3d err=%v\n", r.Student, r.Err)
		case r.StatusCode == http.StatusCreated:
			borrowed++
			fmt.Printf("  [LOAN] student=%-3d status=%d loan=%s\n", r.Student, r.StatusCode, r.LoanID)
		case r.StatusCode == http.StatusBadRequest && r.Code == "BookUnavailable":
			rejected++
			fmt.Printf("  [BUSY] student=%-3d status=%d code=%s\n", r.Student, r.StatusCode, r.Code)
		default:
			failures++
			fmt.Printf("  [FAIL] student=%-3d status=%d code=%s\n", r.Student, r.StatusCode, r.Code)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Borrowed    : %d\n", borrowed)
	fmt.Printf("Unavailable : %d\n", rejected)
	fmt.Printf("Failures    : %d\n", failures)
	fmt.Printf("Total       : %d\n\n", len(tokens))

	if borrowed > 1 {
		fmt.Printf("[BROKEN] %d students hold the same book.\n", borrowed)
		os.Exit(2)
	}
	if failures > 0 {
		fmt.Printf("[WARNING] %d request(s) failed; check server logs.\n", failures)
		os.Exit(1)
	}
	fmt.Println("[OK] at most one active loan was created.")
}

// attemptBorrow posts POST /loans for bookID with the given student token.
func attemptBorrow(serverAddr, bookID, token string) borrowResult {
	body, _ := json.Marshal(map[string]string{"book_id": bookID})
	req, err := http.NewRequest(http.MethodPost, serverAddr+"/loans", bytes.NewReader(body))
	if err != nil {
		return borrowResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return borrowResult{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return borrowResult{StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return borrowResult{StatusCode: resp.StatusCode, Code: parsed.Code, LoanID: parsed.ID}
}
