package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"turnline/internal/app"
	"turnline/internal/db"
	"turnline/internal/dice"
	"turnline/internal/engine"
	"turnline/internal/migrate"
	"turnline/internal/repo"
	"turnline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Turnline CLI",
	Long: `Turnline tracks personnel turnover of a mercenary campaign and the payouts owed to those who leave.
Core concepts:
- Workspace: the .turnline directory holding the database; rosters and configs are imported explicitly.
- Campaign: one company, its roster, its contracts and its turnover config.
- Target number: what a person's 2d6 roll must reach to stay; 'tl turnover targets' shows the breakdown.
- Turnover roll: rolled when a contract ends or a periodic review is due; departures get a payout.
- Ledger: payouts not yet settled, grouped by the contract that triggered them.
- Resolve: discard a contract's payouts once handled; 'tl payout settle' pays them first.
- Event log: diary of changes, view with 'tl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()
		dialect, err := db.ParseDialect(viper.GetString("db-dialect"))
		if err != nil {
			return err
		}
		if dialect == db.SQLite {
			if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
				return err
			}
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TURNLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("campaign", "", "campaign id (defaults to the only campaign)")
	flags.Int64("seed", 0, "dice seed for reproducible rolls (0 picks a random seed)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("db-dialect", "sqlite", "database dialect (sqlite, postgres)")
	flags.String("db-dsn", "", "database dsn (postgres only)")
	for _, name := range []string{"workspace", "json", "actor-id", "campaign", "seed", "log-level", "db-dialect", "db-dsn"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(turnoverCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(payoutCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func setupLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the ledger API. Settings come from TURNLINE_* environment variables; TURNLINE_JWT_SECRET is required.",
		RunE: func(cmd *cobra.Command, args []string) error {
			envCfg, err := server.LoadEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				envCfg.Addr, _ = cmd.Flags().GetString("addr")
			}
			if envCfg.JWTSecret == "" {
				return fmt.Errorf("TURNLINE_JWT_SECRET is required for bearer auth")
			}
			return withConn(cmd.Context(), func(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
				e := newEngine(conn, dialect)
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: envCfg.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:              envCfg.JWTSecret,
						AllowLegacyActorHeader: envCfg.AllowLegacyActorHeader,
					},
					Logger: slog.Default(),
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e.Repo, envCfg.Webhooks(), envCfg.WebhookInterval, slog.Default())
				srv := &http.Server{Addr: envCfg.Addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), envCfg.ShutdownTimeout)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Turnline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
					envCfg.Addr, envCfg.BasePath, envCfg.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8787", "listen address (overrides TURNLINE_ADDR)")
	return cmd
}

// --- helpers ---

func dbConfig() (db.Config, error) {
	dialect, err := db.ParseDialect(viper.GetString("db-dialect"))
	if err != nil {
		return db.Config{}, err
	}
	return db.Config{
		Workspace: viper.GetString("workspace"),
		Dialect:   dialect,
		DSN:       viper.GetString("db-dsn"),
	}, nil
}

func withConn(ctx context.Context, fn func(context.Context, *sql.DB, db.Dialect) error) error {
	cfg, err := dbConfig()
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn, cfg.Dialect); err != nil {
		return err
	}
	return fn(ctx, conn, cfg.Dialect)
}

func newEngine(conn *sql.DB, dialect db.Dialect) engine.Engine {
	e := engine.New(conn, dialect)
	e.Logger = slog.Default()
	if seed := viper.GetInt64("seed"); seed != 0 {
		e.Dice = dice.NewSeeded(seed)
	}
	return e
}

// withEngine opens the workspace and resolves the campaign the command acts on.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withConn(ctx, func(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
		e := newEngine(conn, dialect)
		campaignID, err := app.ResolveCampaign(ctx, viper.GetString("campaign"), e.Repo)
		if err != nil {
			return err
		}
		return fn(ctx, e, campaignID)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withConn(ctx, func(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
		return fn(ctx, repo.Repo{DB: conn, Dialect: dialect})
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
