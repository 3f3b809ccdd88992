// fortress - TF2 server telemetry and operations daemon
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/fortress-ops/internal/api"
	"github.com/ernie/fortress-ops/internal/auth"
	"github.com/ernie/fortress-ops/internal/config"
	"github.com/ernie/fortress-ops/internal/ingress"
	"github.com/ernie/fortress-ops/internal/logger"
	"github.com/ernie/fortress-ops/internal/ops"
	"github.com/ernie/fortress-ops/internal/registry"
	"github.com/ernie/fortress-ops/internal/sched"
	"github.com/ernie/fortress-ops/internal/storage"
	"github.com/ernie/fortress-ops/internal/tracker"
)

var version = "dev"

const defaultConfigPath = "/etc/fortress/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "seeders":
		cmdSeeders(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("fortress %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fortress <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the telemetry and operations daemon")
	fmt.Println("  status                       Show live status of all configured servers")
	fmt.Println("  run <command>                Run a command on every aggregated server")
	fmt.Println("  seeders [--top N]            Show the seeding leaderboard (default: 20)")
	fmt.Println("  user add [--admin] <name>    Add an operator (prompts for password)")
	fmt.Println("  user remove <name>           Remove an operator")
	fmt.Println("  user list                    List all operators")
	fmt.Println("  user reset <name>            Reset an operator's password")
	fmt.Println("  version                      Show version")
	fmt.Println("  help                         Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/fortress/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  fortress serve --config /etc/fortress/config.yml")
	fmt.Println("  fortress run \"changelevel ctf_2fort\"")
	fmt.Println("  fortress user add --admin myuser")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// cmdServe starts the daemon
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger.Setup(cfg.Log)

	log.Info().Str("version", version).Int("servers", len(cfg.Servers)).Msg("Fortress starting")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	reg, err := registry.Build(cfg.Servers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build server registry")
	}
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry pipeline: UDP frames are decoded into events and fanned
	// out to every subscriber through the broker.
	broker := ingress.NewBroker()

	seeders := tracker.NewSeederManager(store, reg)
	seeders.Start(ctx)
	broker.Subscribe("seeders", seeders.Handle)

	dominance := tracker.NewDominance(store)
	broker.Subscribe("dominance", dominance.Handle)

	chatLog := tracker.NewChatLogger(store)
	chatLog.Start(ctx)
	broker.Subscribe("chatlog", chatLog.Handle)

	sinks := make(map[string]string)
	for _, srv := range cfg.Servers {
		if srv.EventLogSink != "" {
			sinks[srv.Address] = srv.EventLogSink
		}
	}
	archiver := ingress.NewArchiver(sinks, func(source string) (string, error) {
		handle, err := reg.ResolveSource(source)
		if err != nil {
			return "", err
		}
		return handle.Desc.Address, nil
	})
	broker.Subscribe("archive", archiver.Handle)
	defer archiver.Close()

	listener, err := ingress.Listen(cfg.Telemetry.BindAddr, cfg.Telemetry.BindPort, broker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind telemetry listener")
	}
	listener.Start()
	log.Info().Str("addr", cfg.Telemetry.BindAddr).Int("port", cfg.Telemetry.BindPort).Msg("Telemetry listener started")

	// Expired link codes are purged in the background.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.CleanupExpiredLinkCodes(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("Link code cleanup failed")
				} else if n > 0 {
					log.Debug().Int64("removed", n).Msg("Expired link codes purged")
				}
			}
		}
	}()

	// Presence publisher and weekly event scheduler
	counter := ops.NewPlayerCounter(reg, ops.LogPublisher{})
	counter.Start(ctx)

	scheduler, err := sched.New(reg, cfg.Schedule.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	// Operator API
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("No JWT secret configured, auth tokens will use an empty secret")
	}

	router := api.NewRouter(store, reg, authService)
	router.StartWebSocketHub()
	broker.Subscribe("websocket", router.Hub().Broadcast)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.ListenAddr, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	// Sequential shutdown: stop taking input first, then drain the
	// subscribers, then the rest.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	listener.Close()
	broker.Close()
	scheduler.Stop()
	counter.Stop()
	chatLog.Stop()
	seeders.Stop()

	cancel()
	log.Info().Msg("Shutdown complete")
}

// cmdStatus shows live occupancy of every configured server
func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger.Setup(logger.Config{Level: "error", Format: "console", Output: "stderr"})

	reg, err := registry.Build(cfg.Servers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tMAP\tPLAYERS\tSTATUS")
	fmt.Fprintln(w, "------\t---\t-------\t------")

	for _, handle := range registry.SortByGlyph(reg.All()) {
		state, err := handle.Rcon.Status(ctx)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\tOFFLINE\n", handle.Desc.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\tONLINE\n", handle.Desc.Name, state.Map, state.PlayerCount(), state.MaxPlayers)
	}

	w.Flush()
}

// cmdRun fans a command out to every aggregated server
func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "usage: fortress run <command>\n")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger.Setup(logger.Config{Level: "error", Format: "console", Output: "stderr"})

	reg, err := registry.Build(cfg.Servers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	report := ops.FanOut(context.Background(), reg.Aggregated(), remaining[0])
	if report != "" {
		fmt.Println(report)
	}
}

// cmdSeeders prints the seeding leaderboard
func cmdSeeders(args []string) {
	fs := flag.NewFlagSet("seeders", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	limit := fs.Int("top", 20, "number of entries to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entries, err := store.TopSeeders(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSTEAM ID\tHOURS")
	fmt.Fprintln(w, "----\t--------\t-----")
	for i, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\t%.1f\n", i+1, entry.SteamID, float64(entry.SecondsSeeded)/3600)
	}
	w.Flush()
}

// cmdUser handles operator account subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset\n")
		os.Exit(1)
	}

	subCmd := args[0]
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	isAdmin := fs.Bool("admin", false, "create as admin operator")
	fs.Parse(args[1:])
	remaining := fs.Args()

	cfg := loadConfig(*configPath)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, remaining, *isAdmin)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, reset)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// promptPassword reads and confirms a password from the terminal
func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string, isAdmin bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fortress user add [--admin] <username>")
	}
	username := args[0]

	if _, err := store.GetOperatorByUsername(ctx, username); err == nil {
		return fmt.Errorf("operator '%s' already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateOperator(ctx, username, hash, isAdmin); err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}

	roleStr := "operator"
	if isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("Operator '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fortress user remove <username>")
	}
	username := args[0]

	if err := store.DeleteOperator(ctx, username); err != nil {
		return fmt.Errorf("failed to remove operator: %w", err)
	}

	fmt.Printf("Operator '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	operators, err := store.ListOperators(ctx)
	if err != nil {
		return fmt.Errorf("failed to list operators: %w", err)
	}

	if len(operators) == 0 {
		fmt.Println("No operators configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tCREATED")
	fmt.Fprintln(w, "--------\t----\t-------")
	for _, op := range operators {
		role := "operator"
		if op.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", op.Username, role, op.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fortress user reset <username>")
	}
	username := args[0]

	if _, err := store.GetOperatorByUsername(ctx, username); err != nil {
		return fmt.Errorf("operator not found: %s", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.UpdateOperatorPassword(ctx, username, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s'\n", username)
	return nil
}
