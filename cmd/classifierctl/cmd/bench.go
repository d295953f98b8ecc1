package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	classifier "github.com/plexsphere/classifierd"
)

var (
	benchCount       int
	benchConcurrency int

	benchHeader = color.New(color.FgCyan).FprintfFunc()
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Classify a batch of random packet headers and report throughput",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchCount, "count", 100000, "number of synthetic packets to classify")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 0, "bounded concurrency for ClassifyBatch (0 = unbounded)")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, _ []string) error {
	c, n, err := buildClassifier()
	if err != nil {
		return err
	}
	defer c.Close()

	w := cmd.OutOrStdout()
	benchHeader(w, "classifying %d synthetic packets against %d rules\n", benchCount, n)

	hdrs := randomHeaders(benchCount)

	start := time.Now()
	results := c.ClassifyBatch(context.Background(), hdrs, benchConcurrency)
	elapsed := time.Since(start)

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}

	rate := float64(len(hdrs)) / elapsed.Seconds()
	fmt.Fprintf(w, "elapsed:    %s\n", elapsed)
	fmt.Fprintf(w, "throughput: %.0f packets/sec\n", rate)
	fmt.Fprintf(w, "matched:    %d/%d\n", matched, len(results))
	return nil
}

func randomHeaders(n int) []classifier.PacketHeader {
	rng := rand.New(rand.NewSource(1))
	protos := []classifier.Protocol{1, 6, 17}
	hdrs := make([]classifier.PacketHeader, n)
	for i := range hdrs {
		hdrs[i] = classifier.PacketHeader{
			SrcIP:    rng.Uint32(),
			DstIP:    rng.Uint32(),
			SrcPort:  uint16(rng.Intn(65536)),
			DstPort:  uint16(rng.Intn(65536)),
			Protocol: protos[rng.Intn(len(protos))],
		}
	}
	return hdrs
}
