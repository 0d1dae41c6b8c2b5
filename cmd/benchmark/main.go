package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragqa/config"
	"ragqa/internal/app"
	"ragqa/internal/logging"
)

func main() {
	dir := flag.String("dir", ".", "Project directory (config and documents)")
	query := flag.String("q", "", "Query to test")
	runs := flag.Int("n", 5, "Number of timed retrievals")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./project -q \"query\"")
		fmt.Println("\nMeasures:")
		fmt.Println("  1. Index build time (extraction, chunking, embedding)")
		fmt.Println("  2. Retrieval latency and similarity of the top chunks")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Logging.Level = "warn"
	log := logging.New(cfg.Logging)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, *dir, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error wiring pipeline: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	start := time.Now()
	report, err := a.QA.Rebuild(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Index build failed: %v\n", err)
		os.Exit(1)
	}
	buildTime := time.Since(start)

	stats, _ := a.Retriever.Stats()
	fmt.Printf("Documents: %d (%d skipped, %d failed)\n", report.Documents, len(report.Skipped), len(report.Failed))
	fmt.Printf("Chunks:    %d (~%d tokens)\n", stats.Chunks, stats.ApproxTokens)
	fmt.Printf("Model:     %s (dimension %d)\n", stats.Model, stats.Dimension)
	fmt.Printf("Build:     %s\n\n", buildTime.Round(time.Millisecond))

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	var total time.Duration
	for i := 0; i < *runs; i++ {
		t0 := time.Now()
		if _, err := a.Retriever.Retrieve(ctx, *query); err != nil {
			fmt.Fprintf(os.Stderr, "Retrieval error: %v\n", err)
			os.Exit(1)
		}
		total += time.Since(t0)
	}

	result, err := a.Retriever.Retrieve(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d matches:\n\n", len(result.Chunks))
	totalScore := 0.0
	for i, r := range result.Chunks {
		preview := []rune(strings.ReplaceAll(r.Chunk.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += r.Score
		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s #%d\n", i+1, rating, r.Score, filepath.Base(r.Chunk.Source), r.Chunk.Index)
		fmt.Printf("   %s\n\n", string(preview))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", totalScore/float64(len(result.Chunks)))
	fmt.Printf("  Top-1 similarity:   %.3f\n", result.Chunks[0].Score)
	if *runs > 0 {
		fmt.Printf("  Retrieval latency:  %s avg over %d runs\n", (total / time.Duration(*runs)).Round(time.Microsecond), *runs)
	}
}
