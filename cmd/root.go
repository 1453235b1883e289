// Command stormgen generates a Wikipedia-style corporate analysis report
// from a DART filing corpus plus optional live web search, driving the
// four-stage STORM pipeline end to end and publishing job status and
// report artifacts through the configured external sinks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stormgen",
	Short: "Generates corporate analysis reports from a DART filing corpus",
	Long:  "Drives persona generation, knowledge curation, outline generation, and article generation/polishing against a DART KnowledgeStore, optionally augmented with live web search.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if v, _ := cmd.Flags().GetString("question-asker-model"); v != "" {
			cfg.Anthropic.QuestionAskerModel = v
		}
		if v, _ := cmd.Flags().GetString("conv-simulator-model"); v != "" {
			cfg.Anthropic.ConvSimulatorModel = v
		}
		if v, _ := cmd.Flags().GetString("article-polish-model"); v != "" {
			cfg.Anthropic.ArticlePolishModel = v
		}
		if noWeb, _ := cmd.Flags().GetBool("no-web"); noWeb {
			cfg.Pipeline.WebRetrieverEnabled = false
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("no-web", false, "disable the web retriever even if pipeline.web_retriever_enabled is true")
	rootCmd.PersistentFlags().String("question-asker-model", "", "override the question_asker_lm model name")
	rootCmd.PersistentFlags().String("conv-simulator-model", "", "override the conv_simulator_lm model name")
	rootCmd.PersistentFlags().String("article-polish-model", "", "override the article_polish_lm model name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
