// Package main is the entry point for the Divan CLI. Divan is a council-based
// decision engine: scored knowledge retrieval, a nineteen-minister court with
// red-line vetoes, a final-authority gate, and an outcome feedback loop that
// learns bounded scoring priors.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/divan/internal/bus"
	"github.com/normanking/divan/internal/config"
	"github.com/normanking/divan/internal/data"
	"github.com/normanking/divan/internal/engine"
	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/pkg/types"
)

var (
	version  = "0.1.0"
	cfgPath  string
	dbPath   string
	logLevel string
	log      *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "divan",
		Short: "Divan - council-based decision engine with learned priors",
		Long: `Divan convenes a court of specialist ministers over your decision:
  • Knowledge scored on five factors and ranked per minister
  • Four routing modes: quick, war, meeting, darbar
  • Red-line vetoes that no majority can outvote
  • A final-authority gate with constraint and distortion checks
  • An outcome feedback loop that learns bounded scoring priors

Run a decision:     divan decide "should we raise the round now"
Record what happened: divan outcome <decision-id> --failure --regret 0.7
Watch the audit stream: divan serve`,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.divan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.divan/divan.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Divan v%s\n", version)
		},
	})

	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(outcomeCmd())
	rootCmd.AddCommand(ministersCmd())
	rootCmd.AddCommand(knowledgeCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	if logLevel != "" {
		cfg.Level = logging.ParseLevel(logLevel)
	}

	log = logging.New(cfg)
	logging.SetGlobal(log)

	// The data layer logs through zerolog; keep its console output and
	// level in step with ours.
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	switch cfg.Level {
	case logging.LevelDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case logging.LevelWarn:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case logging.LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRING
// ═══════════════════════════════════════════════════════════════════════════════

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initializeEngine(ctx context.Context) (*engine.Engine, *data.Store, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("prepare data directories: %w", err)
	}

	store, err := data.NewDBWithTimeout(cfg.Storage.Path, cfg.Storage.BusyTimeoutMs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store at %s: %w", cfg.Storage.Path, err)
	}

	eng, err := engine.New(ctx, cfg, store)
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		eng.Close()
		if err := store.Close(); err != nil {
			log.Warn("store close: %v", err)
		}
	}
	return eng, store, cfg, cleanup, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STYLES
// ═══════════════════════════════════════════════════════════════════════════════

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	styleSupport = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleOppose  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	styleNeutral = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	styleRedLine = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	verdictStyles = map[types.Verdict]lipgloss.Style{
		types.VerdictAccept:               styleSupport.Bold(true),
		types.VerdictAcceptWithMitigation: styleNeutral.Bold(true),
		types.VerdictDefer:                styleNeutral.Bold(true),
		types.VerdictReject:               styleOppose.Bold(true),
	}
)

func init() {
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

func stanceStyle(s types.Stance) lipgloss.Style {
	switch s {
	case types.StanceSupport:
		return styleSupport
	case types.StanceOppose:
		return styleOppose
	default:
		return styleNeutral
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// DECIDE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func decideCmd() *cobra.Command {
	var modeFlag string
	var domainsFlag []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decide <text>",
		Short: "Run a decision through the council",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			mode := types.Mode(modeFlag)
			if modeFlag != "" && !types.ValidMode(mode) {
				return fmt.Errorf("unknown mode %q (quick, war, meeting, darbar)", modeFlag)
			}

			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			req := engine.DecideRequest{Text: text, Mode: mode}
			if len(domainsFlag) > 0 {
				req.Domains = &types.DomainClassification{Domains: domainsFlag, Confidence: 1.0}
			}

			rec, err := eng.Decide(ctx, req)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(rec)
			}
			renderDecision(rec)
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "force routing mode (quick, war, meeting, darbar)")
	cmd.Flags().StringSliceVar(&domainsFlag, "domains", nil, "override classified domains (e.g. finance,legal)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw decision record as JSON")
	return cmd
}

func renderDecision(rec *types.DecisionRecord) {
	fmt.Println(styleTitle.Render(fmt.Sprintf("Decision %s", rec.ID)))
	fmt.Printf("%s %s    %s %s\n",
		styleHeader.Render("mode:"), rec.Mode,
		styleHeader.Render("domains:"), strings.Join(rec.Domains.Domains, ", "))

	if rec.Mode == types.ModeQuick {
		fmt.Println(styleMuted.Render("Low stakes: answered directly, council not convened."))
	} else {
		fmt.Println()
		fmt.Println(styleHeader.Render("COUNCIL"))
		renderCouncil(rec)
	}

	fmt.Println()
	vs, ok := verdictStyles[rec.Gate.FinalOutcome]
	if !ok {
		vs = styleNeutral
	}
	fmt.Printf("%s %s  %s\n",
		styleHeader.Render("verdict:"),
		vs.Render(string(rec.Gate.FinalOutcome)),
		styleMuted.Render(rec.Gate.Reason))
}

func renderCouncil(rec *types.DecisionRecord) {
	c := rec.Council
	fmt.Printf("  %s (%s, consensus %.0f%%, confidence %.0f%%)\n",
		stanceStyle(stanceFor(c.Recommendation)).Render(string(c.Recommendation)),
		c.Outcome, c.ConsensusStrength*100, c.AvgConfidence*100)
	fmt.Printf("  %s\n", styleMuted.Render(truncate(c.Reasoning, 100)))

	if len(c.RedLineConcerns) > 0 {
		for _, concern := range c.RedLineConcerns {
			fmt.Printf("  %s %s\n", styleRedLine.Render("RED LINE"), concern)
		}
	}
	if len(c.DissentingMinisters) > 0 {
		fmt.Printf("  %s %s\n", styleHeader.Render("dissent:"), strings.Join(c.DissentingMinisters, ", "))
	}
	if len(c.OmittedMinisters) > 0 {
		fmt.Printf("  %s %s\n", styleMuted.Render("omitted:"), strings.Join(c.OmittedMinisters, ", "))
	}
	fmt.Printf("  %s %s\n", styleHeader.Render("bench:"), strings.Join(c.MinistersInvolved, ", "))
	if len(rec.Judges) > 0 {
		for _, j := range rec.Judges {
			fmt.Printf("  %s %s: %s\n",
				styleMuted.Render("judge"), j.Domain, stanceStyle(j.Stance).Render(string(j.Stance)))
		}
	}
	fmt.Printf("  %s %s\n", styleHeader.Render("reading:"), c.Interpretation)
}

func stanceFor(r types.Recommendation) types.Stance {
	switch r {
	case types.RecommendSupport, types.RecommendSupportWithCaution:
		return types.StanceSupport
	case types.RecommendOppose:
		return types.StanceOppose
	default:
		return types.StanceNeutral
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// OUTCOME COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func outcomeCmd() *cobra.Command {
	var success, failure, secondaryDamage bool
	var regret, recoveryDays float64
	var notes string

	cmd := &cobra.Command{
		Use:   "outcome <decision-id>",
		Short: "Record the observed result of a past decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if success == failure {
				return fmt.Errorf("exactly one of --success or --failure is required")
			}

			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec := &types.OutcomeRecord{
				DecisionID:       args[0],
				Success:          success,
				RegretScore:      regret,
				RecoveryTimeDays: recoveryDays,
				SecondaryDamage:  secondaryDamage,
				Notes:            notes,
			}
			if err := eng.RecordOutcome(ctx, rec); err != nil {
				return err
			}

			state := styleSupport.Render("success")
			if failure {
				state = styleOppose.Render("failure")
			}
			fmt.Printf("Outcome recorded for %s: %s (regret %.2f)\n", args[0], state, regret)
			return nil
		},
	}

	cmd.Flags().BoolVar(&success, "success", false, "the decision worked out")
	cmd.Flags().BoolVar(&failure, "failure", false, "the decision went badly")
	cmd.Flags().Float64Var(&regret, "regret", 0, "regret score 0.0-1.0")
	cmd.Flags().Float64Var(&recoveryDays, "recovery-days", 0, "days to recover from the outcome")
	cmd.Flags().BoolVar(&secondaryDamage, "secondary-damage", false, "the outcome caused collateral damage")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// MINISTERS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func ministersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ministers",
		Short: "List the court roster with doctrine titles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Println(styleTitle.Render("THE COURT"))
			for _, m := range eng.Ministers().Voting() {
				title := doctrineTitle(eng, m.Domain())
				fmt.Printf("  %-16s %-12s %s\n", m.Domain(), styleMuted.Render(m.Posture()), title)
			}
			fmt.Println(styleHeader.Render("judges (advisory, never counted):"))
			for _, m := range eng.Ministers().Judges() {
				title := doctrineTitle(eng, m.Domain())
				fmt.Printf("  %-16s %-12s %s\n", m.Domain(), styleMuted.Render(m.Posture()), title)
			}
			return nil
		},
	}
}

func doctrineTitle(eng *engine.Engine, domain string) string {
	if d, ok := eng.Doctrines().ForDomain(domain); ok {
		return d.Title
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE COMMAND GROUP
// ═══════════════════════════════════════════════════════════════════════════════

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "knowledge",
		Aliases: []string{"k"},
		Short:   "Inspect and seed the knowledge library",
	}

	var listDomain string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			entries := eng.Library().AllEntries()
			if listDomain != "" {
				entries = eng.Library().EntriesForDomain(listDomain)
			}
			if len(entries) == 0 {
				fmt.Println("No knowledge entries found.")
				return nil
			}
			if eng.Library().UsingFallback() {
				fmt.Println(styleMuted.Render("(store empty: built-in fallback set in use)"))
			}

			sort.Slice(entries, func(i, j int) bool {
				if entries[i].Domain != entries[j].Domain {
					return entries[i].Domain < entries[j].Domain
				}
				return entries[i].ID < entries[j].ID
			})
			for _, e := range entries {
				fmt.Printf("  %-24s [%s/%s] %s\n",
					styleMuted.Render(e.ID), e.Domain, e.Type, truncate(e.Content, 70))
			}
			fmt.Printf("\n%d entries\n", len(entries))
			return nil
		},
	}
	listCmd.Flags().StringVar(&listDomain, "domain", "", "restrict to one minister domain")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one knowledge entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			entry, err := store.GetKnowledge(ctx, args[0])
			if err != nil {
				return fmt.Errorf("knowledge %s: %w", args[0], err)
			}
			return printJSON(entry)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := eng.Library().Search(ctx, query, 20)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if len(results) == 0 {
				fmt.Printf("No matches for %q.\n", query)
				return nil
			}
			for _, e := range results {
				fmt.Printf("  %-24s [%s/%s] %s\n",
					styleMuted.Render(e.ID), e.Domain, e.Type, truncate(e.Content, 70))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Seed the store with the doctrine principle entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, store, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var created, skipped int
			for _, entry := range eng.Doctrines().SeedEntries() {
				if err := store.CreateKnowledge(ctx, entry); err != nil {
					skipped++
					log.Debug("seed %s skipped: %v", entry.ID, err)
					continue
				}
				created++
			}
			fmt.Printf("Seeded %d entries (%d already present).\n", created, skipped)
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRAIN AND STATS COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func trainCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training pass over recorded outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := eng.Train(ctx, force)
			if err != nil {
				return err
			}

			fmt.Printf("Trained %d buckets from %d samples (%d below the sample floor).\n",
				report.TrainedBuckets, report.Samples, report.SkippedBuckets)

			cache := eng.Priors()
			for _, bucket := range cache.Buckets() {
				prior, _ := cache.Bucket(bucket)
				w := prior.Weights
				fmt.Printf("  %-32s n=%-3d conf=%.2f  principle=%.2f rule=%.2f warning=%.2f claim=%.2f advice=%.2f\n",
					bucket, prior.SampleCount, prior.Confidence,
					w.Principle, w.Rule, w.Warning, w.Claim, w.Advice)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "train buckets below the minimum sample count")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store counts and learning state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, _, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := eng.Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Println(styleTitle.Render("DIVAN STORE"))
			fmt.Printf("  knowledge entries: %d\n", stats.KnowledgeEntries)
			fmt.Printf("  decisions:         %d\n", stats.Decisions)
			fmt.Printf("  outcomes:          %d\n", stats.Outcomes)
			fmt.Printf("  trained buckets:   %d\n", stats.TrainedBuckets)
			if stats.Outcomes > 0 {
				fmt.Printf("  success rate:      %.0f%%\n", stats.SuccessRate*100)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string
	var withLearning bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket audit observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, _, cfg, cleanup, err := initializeEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			obsCfg := bus.ObserverConfig{
				Addr:        cfg.Observer.Addr,
				HistorySize: cfg.Observer.HistorySize,
			}
			if addr != "" {
				obsCfg.Addr = addr
			}

			observer := bus.NewObserver(eng.Bus(), obsCfg)
			if err := observer.Start(); err != nil {
				return fmt.Errorf("start observer: %w", err)
			}
			defer func() {
				if err := observer.Stop(); err != nil {
					log.Warn("observer stop: %v", err)
				}
			}()

			if withLearning {
				if err := eng.StartLearning(ctx); err != nil {
					return fmt.Errorf("start learning loop: %w", err)
				}
				defer eng.StopLearning()
			}

			fmt.Printf("Audit stream on ws://%s%s (Ctrl-C to stop)\n", observer.Addr(), bus.AuditEndpoint)
			<-ctx.Done()
			fmt.Println("\nShutting down.")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&withLearning, "learn", false, "run the periodic training loop while serving")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
