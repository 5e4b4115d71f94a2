package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/safartrip/safarbot/booking"
	"github.com/safartrip/safarbot/bot"
	"github.com/safartrip/safarbot/conversation"
	"github.com/safartrip/safarbot/flow"
	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/internal/version"
	"github.com/safartrip/safarbot/metrics"
	"github.com/safartrip/safarbot/plugin/telegram"
	"github.com/safartrip/safarbot/store"
	"github.com/safartrip/safarbot/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "safarbot",
	Short: `A Telegram travel marketplace bot. Users browse and book local services; owners accept or reject within five minutes.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as
		// systemd service, which carries its own environment).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		return run(p)
	},
}

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Drop and recreate the schema. Requires ALLOW_DB_RESET=true.",
	RunE: func(_ *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}

		ctx := context.Background()
		driver, err := db.NewDBDriver(p)
		if err != nil {
			printDatabaseError(err)
			return err
		}
		st := store.New(driver, p)
		defer st.Close()

		if err := st.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Schema reset complete.")
		return nil
	},
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	if dsn := viper.GetString("dsn"); dsn != "" {
		p.DSN = dsn
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func run(p *profile.Profile) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err)
		return err
	}
	st := store.New(driver, p)
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate", "error", err)
		return err
	}

	api, err := tgbotapi.NewBotAPI(p.BotToken)
	if err != nil {
		return fmt.Errorf("telegram authorization failed: %w", err)
	}
	slog.Info("authorized on telegram", "account", api.Self.UserName)

	m := metrics.New()
	notifier := telegram.NewNotifier(api, m)
	reporter := telegram.NewReporter(notifier, p.Admins, m)

	states, err := newStateStore(ctx, p)
	if err != nil {
		return err
	}
	runtime := conversation.NewRuntime(states)

	dispatcher := booking.NewDispatcher(st, notifier, p.Admins, m)
	engine := booking.NewEngine(st, dispatcher, notifier, p.Admins, m)
	sweeper := booking.NewSweeper(st, engine, reporter, m)

	flow.RegisterAll(&flow.Deps{
		Profile:  p,
		Store:    st,
		Engine:   engine,
		Notifier: notifier,
		Runtime:  runtime,
	})
	b := bot.New(api, p, st, runtime, engine, notifier, reporter)

	// Graceful shutdown on SIGINT or SIGTERM. SIGTERM is what most
	// process managers (systemd, kubernetes) send first.
	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	if p.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, p.MetricsAddr, m) })
	}
	g.Go(func() error {
		select {
		case sig := <-c:
			slog.Info("shutting down", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	printGreetings(p)
	return g.Wait()
}

// newStateStore picks Redis when configured, otherwise in-process memory.
func newStateStore(ctx context.Context, p *profile.Profile) (conversation.StateStore, error) {
	if p.RedisURL == "" {
		slog.Info("conversation state: in-memory store")
		return conversation.NewMemoryStore(), nil
	}
	states, err := conversation.NewRedisStore(ctx, p.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	slog.Info("conversation state: redis store")
	return states, nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	viper.SetDefault("mode", "dev")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of service, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name, overrides DATABASE_URL")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("safarbot")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(resetDBCmd)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("SafarBot %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Admins: %d\n", len(p.Admins))
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	if p.MetricsAddr != "" {
		fmt.Printf("Metrics: http://%s/metrics\n", p.MetricsAddr)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly messages for connection issues.
func printDatabaseError(err error) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL is not reachable. Check DATABASE_URL and that the server is running.")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nSSL configuration mismatch. For local development set PGSSLMODE=disable.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nAuthentication failed. Check the credentials in DATABASE_URL.")
	case strings.Contains(errMsg, "does not exist"):
		fmt.Fprintln(os.Stderr, "\nDatabase does not exist. Create it first: CREATE DATABASE safarbot;")
	default:
		fmt.Fprintln(os.Stderr, "\nError:", errMsg)
	}

	if _, statErr := os.Stat(".env"); statErr != nil {
		fmt.Fprintln(os.Stderr, "\nTip: create a .env file for local configuration.")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
