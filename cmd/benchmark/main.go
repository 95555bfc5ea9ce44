package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL     string
	concurrency   int
	duration      time.Duration
	memberToken   string
	approverToken string
)

// Metrics
var (
	totalRequests uint64
	submitted     uint64
	resolved      uint64
	rateLimited   uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&memberToken, "member-token", os.Getenv("MEMBER_TOKEN"), "Bearer token of a member account")
	flag.StringVar(&approverToken, "approver-token", os.Getenv("APPROVER_TOKEN"), "Bearer token of an accountant; resolves each submission when set")
}

func main() {
	flag.Parse()
	if memberToken == "" {
		log.Fatal("member token required (-member-token or MEMBER_TOKEN)")
	}
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Resolving: %v",
		concurrency, duration, approverToken != "")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		id, ok := submitWithdrawal(client)
		if ok && approverToken != "" {
			resolveWithdrawal(client, id)
		}
	}
}

type submissionEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		ID int64 `json:"id,string"`
	} `json:"data"`
}

func submitWithdrawal(client *http.Client) (int64, bool) {
	amount := int64(1000 + rand.Intn(9000))
	payload := map[string]any{
		"amount":       fmt.Sprintf("%d", amount),
		"bank_details": "BENCH-0001 / Benchmark Bank",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", targetURL+"/api/v1/withdraw", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+memberToken)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0, false
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddUint64(&submitted, 1)
		var env submissionEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return 0, false
		}
		return env.Data.ID, true
	case http.StatusTooManyRequests:
		atomic.AddUint64(&rateLimited, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
	return 0, false
}

func resolveWithdrawal(client *http.Client, id int64) {
	body := []byte(`{"status":"APPROVED","note":""}`)
	req, _ := http.NewRequest("PUT", fmt.Sprintf("%s/withdraw/%d", targetURL, id), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+approverToken)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddUint64(&resolved, 1)
	case http.StatusTooManyRequests:
		atomic.AddUint64(&rateLimited, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]any{
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": float64(total) / d.Seconds(),
		"submitted":      atomic.LoadUint64(&submitted),
		"resolved":       atomic.LoadUint64(&resolved),
		"rate_limited":   atomic.LoadUint64(&rateLimited),
		"failed":         atomic.LoadUint64(&failOther),
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
}
