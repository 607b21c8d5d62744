package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/martin8756/termelesinaplo/benchmark/client"
	"github.com/spf13/pflag"
)

type createResponse struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

type RequestResult struct {
	Name     string
	Method   string
	Endpoint string
	Status   int
	Latency  time.Duration
}

func main() {
	baseURL := pflag.String("url", "http://127.0.0.1:3000", "Base URL of the service")
	password := pflag.String("password", "1234", "Admin password")
	iterations := pflag.IntP("iterations", "n", 1, "Number of iterations to run")
	output := pflag.StringP("output", "o", "", "CSV output file (default benchmark_n_<iterations>.csv)")
	pflag.Parse()

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("benchmark_n_%d.csv", *iterations)
	}
	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Error creating CSV file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Iteration", "Step", "Method", "Endpoint", "Status", "Latency_ms"}
	if err := writer.Write(header); err != nil {
		fmt.Printf("Error writing CSV header: %v\n", err)
		return
	}

	requestClient, err := client.NewHTTPClient(*baseURL)
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		return
	}
	opts := &client.RequestOptions{
		Headers: map[string]string{
			"Accept":        "application/json",
			"Cache-Control": "no-cache",
			"User-Agent":    "termelesinaplo-benchmark/1.0",
		},
		Timeout: 10 * time.Second,
	}

	for i := 0; i < *iterations; i++ {
		fmt.Printf("\n[Iteration %d/%d]\n", i+1, *iterations)
		results, err := runBenchmark(requestClient, opts, *password)
		if err != nil {
			fmt.Printf("Iteration %d aborted: %v\n", i+1, err)
		}

		for _, result := range results {
			record := []string{
				strconv.Itoa(i + 1),
				result.Name,
				result.Method,
				result.Endpoint,
				strconv.Itoa(result.Status),
				strconv.FormatFloat(float64(result.Latency.Microseconds())/1000, 'f', 3, 64),
			}
			if err := writer.Write(record); err != nil {
				fmt.Printf("Error writing record to CSV: %v\n", err)
			}
		}

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("\nBenchmark complete. Results saved to %s\n", filename)
}

// runBenchmark walks one login, create, read, filter and delete cycle
func runBenchmark(requestClient *client.HTTPClient, opts *client.RequestOptions, password string) ([]RequestResult, error) {
	var results []RequestResult
	record := func(name, method, endpoint string, resp *client.Response) {
		results = append(results, RequestResult{
			Name:     name,
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Latency:  resp.Latency,
		})
		fmt.Printf("%-14s %-6s %-28s %d [Delay: %v]\n", name, method, endpoint, resp.StatusCode, resp.Latency)
	}

	// 1. Login
	resp, err := requestClient.POST("/api/login", map[string]string{"password": password}, opts)
	if err != nil {
		return results, err
	}
	record("Login", http.MethodPost, "/api/login", resp)
	if resp.StatusCode != http.StatusOK {
		return results, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	// 2. Create record (JSON)
	today := time.Now().Format("2006-01-02")
	resp, err = requestClient.POST("/api/records", map[string]interface{}{
		"date":     today,
		"machine":  "BENCH-1",
		"product":  "Benchmark part",
		"quantity": 100,
		"rejects":  3,
		"note":     "benchmark",
	}, opts)
	if err != nil {
		return results, err
	}
	record("Create JSON", http.MethodPost, "/api/records", resp)
	var created createResponse
	if err := client.UnmarshalBody(resp, &created); err != nil || !created.OK {
		return results, fmt.Errorf("create failed with status %d", resp.StatusCode)
	}

	// 3. Create record (form)
	resp, err = requestClient.PostForm("/add", url.Values{
		"date":     {today},
		"machine":  {"BENCH-2"},
		"product":  {"Benchmark part"},
		"quantity": {"50"},
		"scrap":    {"1"},
	}, opts)
	if err != nil {
		return results, err
	}
	record("Create form", http.MethodPost, "/add", resp)
	var createdForm createResponse
	if err := client.UnmarshalBody(resp, &createdForm); err != nil || !createdForm.OK {
		return results, fmt.Errorf("form create failed with status %d", resp.StatusCode)
	}

	// 4. Recent records
	resp, err = requestClient.GET("/api/records", opts)
	if err != nil {
		return results, err
	}
	record("List", http.MethodGet, "/api/records", resp)

	// 5. Admin filter with totals
	query := url.Values{"from": {today}, "to": {today}, "machine": {"BENCH"}}
	resp, err = requestClient.GET("/api/admin/records?"+query.Encode(), opts)
	if err != nil {
		return results, err
	}
	record("Admin query", http.MethodGet, "/api/admin/records", resp)

	// 6. Clean up
	for _, id := range []int64{created.ID, createdForm.ID} {
		endpoint := "/api/admin/records/" + strconv.FormatInt(id, 10)
		resp, err = requestClient.DELETE(endpoint, opts)
		if err != nil {
			return results, err
		}
		record("Delete", http.MethodDelete, "/api/admin/records/:id", resp)
	}

	// 7. Logout
	resp, err = requestClient.POST("/api/logout", nil, opts)
	if err != nil {
		return results, err
	}
	record("Logout", http.MethodPost, "/api/logout", resp)

	return results, nil
}
