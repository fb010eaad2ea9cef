package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
)

var (
	expandDocs          string
	expandStrategy      string
	expandMax           int
	expandConsensus     bool
	expandConsensusDocs int
	expandJSON          bool
)

var expandCmd = &cobra.Command{
	Use:   "expand [query]",
	Short: "Propose expansion terms for a query",
	Long: `Scores every candidate term over the given feedback documents and
prints the best ones, excluding the query's own terms. With --consensus
only terms found in several feedback documents are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

func init() {
	expandCmd.Flags().StringVarP(&expandDocs, "docs", "d", "", "comma-separated ids of the top-ranked documents")
	expandCmd.Flags().StringVarP(&expandStrategy, "strategy", "s", "", "scoring strategy: tfidf or tsv (default from config)")
	expandCmd.Flags().IntVarP(&expandMax, "max", "n", 0, "maximum number of expansion terms (default from config)")
	expandCmd.Flags().BoolVar(&expandConsensus, "consensus", false, "keep only terms shared by several feedback documents")
	expandCmd.Flags().IntVar(&expandConsensusDocs, "consensus-docs", 0, "minimum number of other documents a consensus term must appear in")
	expandCmd.Flags().BoolVar(&expandJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(expandCmd)
}

func runExpand(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(expandDocs) == "" {
		return errors.New("--docs is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, closeFn, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Expand(ctx, expansion.Request{
		Query:         args[0],
		Documents:     strings.Split(expandDocs, ","),
		Strategy:      expandStrategy,
		MaxTerms:      expandMax,
		Consensus:     expandConsensus,
		ConsensusDocs: expandConsensusDocs,
	})
	if err != nil {
		return fmt.Errorf("expansion failed: %w", err)
	}
	if expandJSON {
		return printJSON(cmd, res)
	}
	return printExpansion(cmd, res)
}

func printExpansion(cmd *cobra.Command, res *expansion.Result) error {
	cmd.Printf("Query: %s (%s, %d documents)\n", res.Query, res.Strategy, res.Documents)
	if len(res.Missing) > 0 {
		cmd.Printf("Not indexed: %s\n", strings.Join(res.Missing, ", "))
	}
	if len(res.Terms) == 0 {
		cmd.Println("No expansion terms found.")
	}
	for i, t := range res.Terms {
		line := fmt.Sprintf("  [%d] %-24s %.6g  (in %d/%d docs)", i+1, t.Text, t.Weight, t.Rt, t.R)
		if t.NumConsensusDocs >= 0 {
			line += fmt.Sprintf("  consensus %d", t.NumConsensusDocs)
		}
		cmd.Println(line)
	}
	for _, term := range slices.Sorted(maps.Keys(res.Alternatives)) {
		cmd.Printf("Also indexed as: %s -> %s\n", term, strings.Join(res.Alternatives[term], ", "))
	}
	return nil
}

// openService opens the index and, unless vectors are read from the segment
// itself, the configured doc store.
func openService(ctx context.Context, cfg *config.Config) (*expansion.Service, func(), error) {
	backend, err := docstore.ParseBackend(cfg.DocStore.Backend)
	if err != nil {
		return nil, nil, err
	}
	var store docstore.Store
	if backend != docstore.BackendSegment {
		store, err = docstore.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
	}
	svc, err := expansion.Opener(cfg, store, nil)(ctx)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return svc, func() {
		svc.Close()
		if store != nil {
			store.Close()
		}
	}, nil
}
