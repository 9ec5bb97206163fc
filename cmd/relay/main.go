package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"relay-ai/internal/adapter/responses"
	"relay-ai/internal/adapter/usagestore"
	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
	"relay-ai/internal/infra/tracer"
	"relay-ai/internal/usecase"
)

var version = "dev"

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runChat(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "chat":
		if err := runChat(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "chat: %v\n", err)
			os.Exit(1)
		}
	case "usage":
		if err := runUsage(); err != nil {
			fmt.Fprintf(os.Stderr, "usage: %v\n", err)
			os.Exit(1)
		}
	case "estimate":
		if err := runEstimate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "estimate: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("relay " + version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'relay --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`relay - Streaming client for model response APIs

USAGE:
    relay [COMMAND] [FLAGS] [MESSAGE]

COMMANDS:
    chat        Stream a conversation turn (interactive when no message given)
    usage       Show recorded token usage from the ledger
    estimate    Estimate token count for text (args or stdin)
    version     Print the version

    (no command) - Same as 'chat'

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --model NAME       Model slug (e.g. gpt-5, gpt-4.1, o3)
    --timeout DUR      Per-turn timeout (e.g. 90s, 5m)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: RELAYAI_* variables override config
    API key:     api_key in config, or the api_key_env variable
                 (default OPENAI_API_KEY)

EXAMPLES:
    relay chat "summarize this repo"      # One turn, streamed to stdout
    relay chat                            # Interactive session
    relay --model o3 chat "why is the sky blue"
    relay estimate < draft.txt            # Local token estimate
    relay usage                           # Ledger totals and recent turns`)
}

// cliFlags holds optional CLI flags shared across commands.
type cliFlags struct {
	Config  string
	Model   string
	Timeout time.Duration
}

// parseFlags extracts --config, --model, --timeout from args.
func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flags.Config = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flags.Config = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--model" && i+1 < len(args):
			flags.Model = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--model="):
			flags.Model = strings.TrimPrefix(args[i], "--model=")
		case args[i] == "--timeout" && i+1 < len(args):
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, fmt.Errorf("invalid --timeout %q: %w", args[i+1], err)
			}
			flags.Timeout = d
			i++
		case strings.HasPrefix(args[i], "--timeout="):
			d, err := time.ParseDuration(strings.TrimPrefix(args[i], "--timeout="))
			if err != nil {
				return flags, fmt.Errorf("invalid %s: %w", args[i], err)
			}
			flags.Timeout = d
		}
	}
	return flags, nil
}

// messageArgs returns the non-flag args, which form the message text.
func messageArgs(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" || args[i] == "--model" || args[i] == "--timeout":
			i++
		case strings.HasPrefix(args[i], "--"):
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func configPath(flags cliFlags) string {
	if flags.Config != "" {
		return flags.Config
	}
	if p := os.Getenv("RELAYAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flags.Model != "" {
		cfg.Provider.Model = flags.Model
	}
	return cfg, nil
}

func runChat(args []string) error {
	// 1. Config
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. Wire client, optionally behind the circuit breaker
	streamCfg := domain.StreamConfig{
		EventTimeout: cfg.Stream.EventTimeout,
		MaxBuffer:    cfg.Stream.MaxBuffer,
		Backpressure: cfg.Stream.Backpressure,
	}
	var client domain.StreamClient = responses.NewClient(cfg.Provider, streamCfg, log)
	if cfg.Breaker.Enabled {
		client = responses.NewBreakerClient(client, cfg.Breaker, log)
	}

	// 4. Trackers, counter, ledger, pacing
	limits := usecase.NewRateLimitManager(cfg.RateLimit, log)
	tracker := usecase.NewTokenUsageTracker(cfg.Usage, domain.ResolveModelFamily(cfg.Provider.Model))
	counter := usecase.NewTokenCounter(cfg.Provider.Model, log)

	var ledger domain.UsageLedger
	if cfg.Usage.LedgerPath != "" {
		store, err := openLedger(cfg.Usage.LedgerPath)
		if err != nil {
			// Persistence is best-effort; the in-memory tracker still works.
			log.Warn("usage ledger unavailable", "path", cfg.Usage.LedgerPath, "error", err)
		} else {
			ledger = store
			defer store.Close()
		}
	}

	var pacer *rate.Limiter
	if cfg.Pacing.RPS > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.Pacing.RPS), cfg.Pacing.Burst)
	}

	// 5. Engine
	eng := usecase.NewEngine(usecase.EngineDeps{
		Client:     client,
		Logger:     log,
		RateLimits: limits,
		Usage:      tracker,
		Counter:    counter,
		Ledger:     ledger,
		Pacer:      pacer,
	}, cfg.Retry)

	log.Debug("relay starting",
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"breaker", cfg.Breaker.Enabled,
		"ledger", ledger != nil,
	)

	// 6. One-shot or interactive
	if message := strings.Join(messageArgs(args), " "); message != "" {
		history := []domain.InputItem{domain.TextInput(domain.RoleUser, message)}
		_, err := runTurn(ctx, eng, cfg.Provider.Model, history, flags.Timeout)
		return err
	}
	return runInteractive(ctx, eng, cfg.Provider.Model, flags.Timeout)
}

// openLedger creates the ledger's parent directory and opens the store.
func openLedger(path string) (*usagestore.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	return usagestore.Open(path)
}

// runInteractive reads user lines from stdin and streams one turn per line,
// carrying the conversation history forward.
func runInteractive(ctx context.Context, eng *usecase.Engine, model string, timeout time.Duration) error {
	fmt.Printf("relay %s, model %s (empty line or Ctrl-D to exit)\n", version, model)

	var history []domain.InputItem
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		printAdvisory(eng)
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "exit" || line == "quit" {
			return nil
		}

		history = append(history, domain.TextInput(domain.RoleUser, line))
		reply, err := runTurn(ctx, eng, model, history, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			// Drop the failed user message so a rephrase starts clean.
			history = history[:len(history)-1]
			continue
		}
		if reply != "" {
			history = append(history, domain.InputItem{
				Role:    domain.RoleAssistant,
				Content: []domain.ContentPart{{Type: domain.ContentOutputText, Text: reply}},
			})
		}
	}
}

// printAdvisory warns when the advisory rate-limit picture says the next
// request is likely to be throttled.
func printAdvisory(eng *usecase.Engine) {
	limits := eng.RateLimits()
	if limits == nil {
		return
	}
	summary := limits.Summary()
	if !summary.IsApproaching {
		return
	}
	msg := fmt.Sprintf("warning: %.0f%% of the rate limit is used", summary.MostRestrictive)
	if summary.NextResetSeconds > 0 {
		msg += fmt.Sprintf(" (resets in %ds)", summary.NextResetSeconds)
	}
	if !limits.ShouldRetry() {
		msg += "; the next request may be rejected"
	}
	fmt.Fprintln(os.Stderr, msg)
}

const (
	dimStart = "\x1b[2m"
	dimEnd   = "\x1b[0m"
)

// runTurn streams one model turn to stdout and returns the assistant text.
func runTurn(ctx context.Context, eng *usecase.Engine, model string, history []domain.InputItem, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	prompt := domain.Prompt{
		Model:            model,
		Input:            history,
		ReasoningSummary: "auto",
	}
	stream, err := eng.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}

	turnID := usecase.NewTurnID()
	var text strings.Builder
	var itemText string
	reasoningOpen := false

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Println()
			return "", err
		}
		eng.ObserveEvent(ctx, ev, turnID)

		switch ev := ev.(type) {
		case domain.OutputTextDeltaEvent:
			if reasoningOpen {
				fmt.Print(dimEnd + "\n")
				reasoningOpen = false
			}
			fmt.Print(ev.Delta)
			text.WriteString(ev.Delta)
		case domain.ReasoningSummaryDeltaEvent:
			if !reasoningOpen {
				fmt.Print(dimStart)
				reasoningOpen = true
			}
			fmt.Print(ev.Delta)
		case domain.ReasoningSummaryPartAddedEvent:
			if reasoningOpen {
				fmt.Print("\n\n")
			}
		case domain.WebSearchCallBeginEvent:
			fmt.Fprintf(os.Stderr, "[web search %s]\n", ev.CallID)
		case domain.OutputItemDoneEvent:
			if ev.Item.Type == "message" && ev.Item.Role == domain.RoleAssistant {
				itemText = ev.Item.Text()
			}
		case domain.CompletedEvent:
			if reasoningOpen {
				fmt.Print(dimEnd)
				reasoningOpen = false
			}
			fmt.Println()
			printUsageLine(eng, ev)
		}
	}

	// The finished message item is authoritative when present; deltas are
	// the fallback.
	if itemText != "" {
		return itemText, nil
	}
	return text.String(), nil
}

// printUsageLine reports the turn's token usage and the session total.
func printUsageLine(eng *usecase.Engine, ev domain.CompletedEvent) {
	if ev.Usage == nil {
		return
	}
	line := fmt.Sprintf("[usage] input=%d output=%d total=%d",
		ev.Usage.InputTokens, ev.Usage.OutputTokens, ev.Usage.TotalTokens)
	if tracker := eng.Usage(); tracker != nil {
		info := tracker.Info()
		line += fmt.Sprintf(" (session %d", info.TotalTokenUsage.TotalTokens)
		if info.ModelContextWindow > 0 {
			line += fmt.Sprintf(", window %.1f%%", tracker.UsagePercentage())
		}
		line += ")"
	}
	fmt.Fprintln(os.Stderr, dimStart+line+dimEnd)
}

func runUsage() error {
	flags, err := parseFlags(os.Args[2:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.Usage.LedgerPath == "" {
		fmt.Println("usage persistence is disabled (usage.ledger_path is empty)")
		return nil
	}

	store, err := openLedger(cfg.Usage.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	day, dayTurns, err := store.SumRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return fmt.Errorf("sum last 24h: %w", err)
	}
	week, weekTurns, err := store.SumRange(ctx, now.Add(-7*24*time.Hour), now)
	if err != nil {
		return fmt.Errorf("sum last 7d: %w", err)
	}

	family := domain.ResolveModelFamily(cfg.Provider.Model)
	fmt.Printf("token usage ledger: %s\n", cfg.Usage.LedgerPath)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("model %s: context window %d tokens\n\n", cfg.Provider.Model, family.ContextWindow)
	fmt.Printf("last 24h: %4d turns  input=%d output=%d total=%d\n",
		dayTurns, day.InputTokens, day.OutputTokens, day.TotalTokens)
	fmt.Printf("last 7d:  %4d turns  input=%d output=%d total=%d\n",
		weekTurns, week.InputTokens, week.OutputTokens, week.TotalTokens)

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		return fmt.Errorf("recent records: %w", err)
	}
	if len(recent) > 0 {
		fmt.Println("\nrecent turns:")
		for _, rec := range recent {
			fmt.Printf("  %s  %s  input=%d output=%d total=%d\n",
				rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
				rec.TurnID,
				rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens)
		}
	}
	return nil
}

func runEstimate(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	text := strings.Join(messageArgs(args), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	counter := usecase.NewTokenCounter(cfg.Provider.Model, logger.Nop())
	tokens := counter.CountText(text)
	family := domain.ResolveModelFamily(cfg.Provider.Model)

	fmt.Printf("%d tokens (model %s)\n", tokens, cfg.Provider.Model)
	if family.ContextWindow > 0 {
		fmt.Printf("%.2f%% of the %d token context window\n",
			float64(tokens)/float64(family.ContextWindow)*100, family.ContextWindow)
	}
	return nil
}
