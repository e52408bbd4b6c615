package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/stock-manager/internal/adapter/storage"
	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/service"
)

const (
	totalRequests   = 2000
	concurrency     = 50
	bucketSizePages = 1
)

func main() {
	dataFile := flag.String("data", "", "ledger memory file (a temp file when empty)")
	flag.Parse()

	path := *dataFile
	if path == "" {
		dir, err := os.MkdirTemp("", "stock-manager-stress")
		if err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "ledger.mem")
	}

	// Initialize ledger
	mem, err := storage.OpenFileMemory(path, 0)
	if err != nil {
		log.Fatalf("failed to open memory: %v", err)
	}
	st, err := service.OpenStorage(mem, bucketSizePages)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	ledger := service.NewLedger(st, 0)
	startID := st.ItemIDs.Get()

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	ids := make([]uint64, totalRequests)

	// Spawn concurrent requests
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(n int) {
			defer wg.Done()
			defer func() { <-sem }()

			item, err := ledger.AddItem(domain.ItemPayload{
				Name:  fmt.Sprintf("item-%d", n),
				Price: float64(n),
			})
			if err != nil {
				failCount.Add(1)
				return
			}
			ids[n] = item.ID
			successCount.Add(1)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	fmt.Println("=== Stress Test Results ===")
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Concurrency:    %d\n", concurrency)
	fmt.Printf("Success:        %d\n", successCount.Load())
	fmt.Printf("Failed:         %d\n", failCount.Load())
	fmt.Printf("Elapsed:        %v\n", elapsed)
	fmt.Printf("Throughput:     %.2f creates/sec\n", float64(totalRequests)/elapsed.Seconds())

	// Verify ids are unique and contiguous
	seen := make(map[uint64]bool, totalRequests)
	for _, id := range ids {
		if id < startID || id >= startID+totalRequests || seen[id] {
			fmt.Printf("FAIL: id %d duplicated or outside [%d, %d)\n", id, startID, startID+totalRequests)
			os.Exit(1)
		}
		seen[id] = true
	}

	// Verify state survives a reopen
	if err := mem.Close(); err != nil {
		log.Fatalf("failed to close memory: %v", err)
	}
	mem, err = storage.OpenFileMemory(path, 0)
	if err != nil {
		log.Fatalf("failed to reopen memory: %v", err)
	}
	defer mem.Close()
	st, err = service.OpenStorage(mem, bucketSizePages)
	if err != nil {
		log.Fatalf("failed to reopen storage: %v", err)
	}

	counter, stored := st.ItemIDs.Get(), st.Items.Len()
	fmt.Printf("Counter after reopen: %d\n", counter)
	fmt.Printf("Items after reopen:   %d\n", stored)

	if failCount.Load() == 0 && counter == startID+totalRequests && stored >= totalRequests {
		fmt.Println("PASS: ids unique, contiguous and durable")
	} else {
		fmt.Println("FAIL: ledger state does not match")
		os.Exit(1)
	}
}
