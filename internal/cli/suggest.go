package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [term]",
	Short: "List mixed-case spellings of a short lowercase term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ix, err := indexer.Open(cfg.Indexer)
		if err != nil {
			return err
		}
		defer ix.Close()

		alts := ix.CaseStore.Suggest(args[0])
		if len(alts) == 0 {
			cmd.Println("No alternatives found.")
			return nil
		}
		cmd.Println(strings.Join(alts, "\n"))
		return nil
	},
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of the built index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ix, err := indexer.Open(cfg.Indexer)
		if err != nil {
			return err
		}
		defer ix.Close()

		st := ix.Stats()
		if statsJSON {
			return printJSON(cmd, st)
		}
		cmd.Printf("Index:          %s\n", st.BaseName)
		cmd.Printf("Segment:        %s\n", ix.Segment.Path())
		cmd.Printf("Processor:      %s\n", st.Processor)
		cmd.Printf("Documents:      %d\n", st.Documents)
		cmd.Printf("Terms:          %d\n", st.Terms)
		cmd.Printf("Tokens:         %d\n", st.Tokens)
		cmd.Printf("Scored terms:   %d\n", st.TransformSize)
		cmd.Printf("Case anchors:   %d\n", st.CaseAnchors)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(suggestCmd, statsCmd)
}
