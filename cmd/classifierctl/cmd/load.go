package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	loadOK   = color.New(color.FgGreen).FprintfFunc()
	loadErr  = color.New(color.FgRed).FprintfFunc()
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a rule file and report whether it is well-formed",
	Long:  "Parse and load the rule file named by --rules into a throwaway classifier, reporting any rejected rule.",
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, _ []string) error {
	c, n, err := buildClassifier()
	if err != nil {
		loadErr(cmd.ErrOrStderr(), "load failed: %v\n", err)
		return err
	}
	defer c.Close()

	w := cmd.OutOrStdout()
	loadOK(w, "loaded %d rules (%d enabled)\n", n, c.EnabledLen())
	diag := c.Diagnostics()
	fmt.Fprintf(w, "src trie:  depth=%d nodes=%d\n", diag.SrcTrieDepth, diag.SrcTrieNodes)
	fmt.Fprintf(w, "dst trie:  depth=%d nodes=%d\n", diag.DstTrieDepth, diag.DstTrieNodes)
	fmt.Fprintf(w, "src ports: height=%d size=%d\n", diag.SrcPortTreeHeight, diag.SrcPortTreeSize)
	fmt.Fprintf(w, "dst ports: height=%d size=%d\n", diag.DstPortTreeHeight, diag.DstPortTreeSize)
	if diag.PrefilterEnabled {
		fmt.Fprintf(w, "prefilter: bits=%d hashes=%d popcount=%d est_fp_rate=%.5f\n",
			diag.PrefilterBits, diag.PrefilterHashes, diag.PrefilterPopCount, diag.PrefilterEstimatedFPRate)
	}
	return nil
}
