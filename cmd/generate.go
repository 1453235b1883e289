package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/article"
	"github.com/dart-insight/storm-report/internal/config"
	"github.com/dart-insight/storm-report/internal/cost"
	"github.com/dart-insight/storm-report/internal/curator"
	"github.com/dart-insight/storm-report/internal/embed"
	"github.com/dart-insight/storm-report/internal/jobstatus"
	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/orchestrator"
	"github.com/dart-insight/storm-report/internal/outline"
	"github.com/dart-insight/storm-report/internal/persona"
	"github.com/dart-insight/storm-report/internal/retriever"
	"github.com/dart-insight/storm-report/internal/sink"
	"github.com/dart-insight/storm-report/internal/store"
	"github.com/dart-insight/storm-report/internal/webfetch"
	"github.com/dart-insight/storm-report/pkg/anthropic"
	"github.com/dart-insight/storm-report/pkg/perplexity"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a corporate analysis report",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().String("topic", "", "the report topic, e.g. \"2024 사업 개요\" (required)")
	generateCmd.Flags().String("company", "", "the target company name, e.g. \"삼성전자\"")
	_ = generateCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	company, _ := cmd.Flags().GetString("company")

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	o, roles, calc, cleanup, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wire orchestrator: %w", err)
	}
	defer cleanup()

	result, err := o.Run(ctx, topic, company)
	logCostAttribution(cfg, roles, calc)
	if err != nil {
		return eris.Wrap(err, "generate")
	}

	zap.L().Info("report generated", zap.String("job_id", result.JobID))
	fmt.Println(result.JobID)
	return nil
}

// logCostAttribution emits one structured log line per configured role
// with its cumulative token usage converted to an estimated USD cost,
// per spec's cost-attribution requirement.
func logCostAttribution(cfg *config.Config, roles llm.RoleSet, calc *cost.Calculator) {
	var total float64
	for _, role := range llm.Roles {
		lm, ok := roles[role]
		if !ok {
			continue
		}
		u := lm.Usage()
		model := modelForRole(cfg, role)
		c := calc.Claude(model, false, int(u.InputTokens), int(u.OutputTokens), int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens))
		total += c
		zap.L().Info("cost attribution",
			zap.String("role", string(role)),
			zap.String("model", model),
			zap.Int64("input_tokens", u.InputTokens),
			zap.Int64("output_tokens", u.OutputTokens),
			zap.Float64("usd", c),
		)
	}
	zap.L().Info("cost attribution total", zap.Float64("usd", total), zap.Float64("max_usd", cfg.Pipeline.MaxCostPerReportUSD))
}

func modelForRole(cfg *config.Config, role llm.Role) string {
	switch role {
	case llm.RoleQuestionAsker:
		return cfg.Anthropic.QuestionAskerModel
	case llm.RoleConvSimulator:
		return cfg.Anthropic.ConvSimulatorModel
	case llm.RoleOutlineGen:
		return cfg.Anthropic.OutlineGenModel
	case llm.RoleArticleGen:
		return cfg.Anthropic.ArticleGenModel
	case llm.RoleArticlePolish:
		return cfg.Anthropic.ArticlePolishModel
	default:
		return ""
	}
}

// buildOrchestrator wires every pipeline component from cfg: the
// KnowledgeStore, embedder, retrievers, five LanguageModel roles, the
// five stage components, and the JobStatus/ReportSink external
// interfaces. The returned cleanup closes every pool/client opened here.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, llm.RoleSet, *cost.Calculator, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	knowledgeStore, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, eris.Wrap(err, "wire: knowledge store")
	}
	closers = append(closers, knowledgeStore.Close)

	embedder, err := embed.NewGeminiEmbedder(ctx, embed.GeminiEmbedderConfig{
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, eris.Wrap(err, "wire: embedder")
	}

	aliases, err := knowledgeStore.CompanyAliases(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, eris.Wrap(err, "wire: company aliases")
	}
	reranker := retriever.NewEntityAwareRerankerWithConfig(aliases, retriever.RerankConfig{
		BoostMultiplier:     cfg.Pipeline.BoostMultiplier,
		PenaltyMultiplier:   cfg.Pipeline.PenaltyMultiplier,
		DropUnmatchedTables: cfg.Pipeline.DropUnmatchedTables,
	})
	tagger := retriever.NewSourceTagger()

	internalRetriever, err := retriever.NewInternalRetriever(ctx, knowledgeStore, embedder, reranker, tagger, retriever.InternalRetrieverConfig{
		WindowExpandFactor: cfg.Pipeline.WindowExpandFactor,
		Window:             cfg.Pipeline.WindowSize,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, eris.Wrap(err, "wire: internal retriever")
	}

	var webRetriever retriever.WebRetriever
	if cfg.Pipeline.WebRetrieverEnabled {
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		webRetriever = retriever.NewPerplexityWebRetriever(perplexityClient)
	}

	hybridRetriever := retriever.NewHybridRetriever(internalRetriever, webRetriever, retriever.HybridRetrieverConfig{
		Threshold: cfg.Pipeline.InternalMinScore,
	})

	history, err := llm.NewHistory(filepath.Join(cfg.Sink.RunsDir, "llm_call_history.jsonl"))
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, eris.Wrap(err, "wire: call history")
	}
	closers = append(closers, func() { _ = history.Close() })

	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)
	roles := llm.RoleSet{
		llm.RoleQuestionAsker: llm.NewClaudeModel(anthropicClient, llm.ClaudeConfig{
			Role: llm.RoleQuestionAsker, Model: cfg.Anthropic.QuestionAskerModel, History: history,
		}),
		llm.RoleConvSimulator: llm.NewClaudeModel(anthropicClient, llm.ClaudeConfig{
			Role: llm.RoleConvSimulator, Model: cfg.Anthropic.ConvSimulatorModel, History: history,
		}),
		llm.RoleOutlineGen: llm.NewClaudeModel(anthropicClient, llm.ClaudeConfig{
			Role: llm.RoleOutlineGen, Model: cfg.Anthropic.OutlineGenModel, History: history,
		}),
		llm.RoleArticleGen: llm.NewClaudeModel(anthropicClient, llm.ClaudeConfig{
			Role: llm.RoleArticleGen, Model: cfg.Anthropic.ArticleGenModel, History: history,
		}),
		llm.RoleArticlePolish: llm.NewClaudeModel(anthropicClient, llm.ClaudeConfig{
			Role: llm.RoleArticlePolish, Model: cfg.Anthropic.ArticlePolishModel, History: history,
		}),
	}

	calc := cost.NewCalculator(cost.RatesFromConfig(costRatesFromConfig(cfg.Pricing)))

	personaGen := persona.NewGenerator(roles.Get(llm.RoleQuestionAsker), webfetch.NewFetcher(), persona.Config{
		MaxPerspective: cfg.Pipeline.MaxPerspective,
	})
	curate := curator.NewCurator(roles.Get(llm.RoleQuestionAsker), roles.Get(llm.RoleConvSimulator), hybridRetriever, curator.Config{
		MaxConvTurn:             cfg.Pipeline.MaxConvTurn,
		MaxSearchQueriesPerTurn: cfg.Pipeline.MaxSearchQueriesPerTurn,
		SearchTopK:              cfg.Pipeline.SearchTopK,
		MaxThreadNum:            cfg.Pipeline.MaxThreadNum,
	})
	outlineGen := outline.NewGenerator(roles.Get(llm.RoleOutlineGen))
	articleGen := article.NewGenerator(roles.Get(llm.RoleArticleGen), embedder, article.Config{
		RetrieveTopK: cfg.Pipeline.RetrieveTopK,
		MaxThreadNum: cfg.Pipeline.MaxThreadNum,
	})
	polisher := article.NewPolisher(roles.Get(llm.RoleArticlePolish))

	publisher, sinkImpl, err := buildExternalInterfaces(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}

	o := orchestrator.New(personaGen, curate, outlineGen, articleGen, polisher, roles, publisher, sinkImpl)
	return o, roles, calc, cleanup, nil
}

// buildExternalInterfaces constructs the JobStatus publisher and
// ReportSink per cfg.Sink.Driver, appending any opened pool's Close to
// closers.
func buildExternalInterfaces(ctx context.Context, cfg *config.Config, closers *[]func()) (jobstatus.Publisher, sink.ReportSink, error) {
	switch cfg.Sink.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "wire: sink pool")
		}
		*closers = append(*closers, pool.Close)

		publisher := jobstatus.NewPostgresPublisher(pool)
		if err := publisher.Migrate(ctx); err != nil {
			return nil, nil, eris.Wrap(err, "wire: migrate jobs table")
		}
		reportSink := sink.NewPostgresSink(pool)
		if err := reportSink.Migrate(ctx); err != nil {
			return nil, nil, eris.Wrap(err, "wire: migrate reports table")
		}
		return publisher, reportSink, nil
	default:
		publisher := jobstatus.NewChannelPublisher(16)
		*closers = append(*closers, publisher.Close)
		return publisher, sink.NewFilesystemSink(cfg.Sink.RunsDir), nil
	}
}

// costRatesFromConfig converts config.PricingConfig into cost.PricingConfig
// (structurally identical, kept as distinct types to avoid internal/cost
// importing internal/config).
func costRatesFromConfig(p config.PricingConfig) cost.PricingConfig {
	anthropicRates := make(map[string]cost.ModelPricing, len(p.Anthropic))
	for model, mp := range p.Anthropic {
		anthropicRates[model] = cost.ModelPricing{
			Input:         mp.Input,
			Output:        mp.Output,
			BatchDiscount: mp.BatchDiscount,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	return cost.PricingConfig{
		Anthropic:  anthropicRates,
		Gemini:     cost.GeminiPricing{PerMTok: p.Gemini.PerMTok},
		Perplexity: cost.PerplexityPricing{PerQuery: p.Perplexity.PerQuery},
	}
}
