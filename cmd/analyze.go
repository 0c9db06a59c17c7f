package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deepbiz/directory/internal/analysis"
)

var analyzeForce bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <company-url>",
	Short: "Analyze one company website through the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		resp, err := newAnalysisService(st).Analyze(ctx, args[0], analyzeForce)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		return writeAnalysis(os.Stdout, resp)
	},
}

type analysisOutput struct {
	Cached  bool    `json:"cached"`
	Entry   any     `json:"entry"`
	Tokens  any     `json:"tokens_used,omitempty"`
	CostUSD float64 `json:"cost,omitempty"`
}

func writeAnalysis(w io.Writer, resp *analysis.Response) error {
	out := analysisOutput{Cached: resp.Cached, Entry: resp.Entry, CostUSD: resp.Cost}
	if resp.Usage != nil {
		out.Tokens = resp.Usage
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "re-analyze even when a valid entry is cached")
	rootCmd.AddCommand(analyzeCmd)
}
