package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/domain"
	"ragqa/internal/usecase"
)

var indexQuiet bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index over the documents directory and report stats",
	Long: `Extract, chunk and embed every document in the documents directory, then
print what was indexed. The index lives in memory only; with the embedding
cache enabled, later runs reuse the stored vectors.

Examples:
  ragqa index
  ragqa index -d /path/to/project`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexQuiet, "quiet", false, "hide the progress bar")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.Build(ctx, GetConfig(), GetRootDir(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	docsDir := GetConfig().DocsDir(GetRootDir())
	fmt.Printf("Indexing %s...\n", docsDir)

	report, err := buildWithProgress(ctx, a.Retriever, docsDir, !indexQuiet)
	printReport(report)

	var ec *domain.EmptyCorpusError
	if errors.As(err, &ec) {
		fmt.Println(ec.Message())
		return nil
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if stats, ok := a.Retriever.Stats(); ok {
		fmt.Printf("\nIndex:\n")
		fmt.Printf("  Documents:      %d\n", stats.Documents)
		fmt.Printf("  Chunks:         %d\n", stats.Chunks)
		fmt.Printf("  Dimension:      %d\n", stats.Dimension)
		fmt.Printf("  Approx tokens:  %d\n", stats.ApproxTokens)
		fmt.Printf("  Model:          %s\n", stats.Model)
	}
	if a.EmbeddingCache != nil {
		hits, misses := a.EmbeddingCache.Stats()
		fmt.Printf("  Embedding cache: %d hits, %d misses\n", hits, misses)
	}
	return nil
}

// buildWithProgress builds the index from dir, drawing a progress bar over
// the embedded chunks when show is set.
func buildWithProgress(ctx context.Context, r *usecase.Retriever, dir string, show bool) (*domain.BuildReport, error) {
	var progress usecase.ProgressFunc
	if show {
		var (
			bar       *progressbar.ProgressBar
			barMu     sync.Mutex
			startTime time.Time
		)
		progress = func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()

			if bar == nil {
				startTime = time.Now()
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowBytes(false),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(os.Stderr)
					}),
				)
			}

			bar.Set(done)
			if done > 0 && done < total {
				rate := float64(done) / time.Since(startTime).Seconds()
				if rate > 0 {
					eta := time.Duration(float64(total-done)/rate) * time.Second
					bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
				}
			}
		}
	}

	return r.BuildFromDir(ctx, dir, progress)
}

func printReport(report *domain.BuildReport) {
	if report == nil {
		return
	}
	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Documents indexed: %d\n", report.Documents)
	fmt.Printf("  Chunks created:    %d\n", report.Chunks)
	fmt.Printf("  Skipped:           %d (unsupported format)\n", len(report.Skipped))
	if report.Duration > 0 {
		fmt.Printf("  Duration:          %s\n", formatDuration(report.Duration))
	}

	if len(report.Failed) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range report.Failed {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
