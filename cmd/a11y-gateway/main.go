// ABOUTME: Entry point for the a11y-gateway accessibility broker
// ABOUTME: Serves the broker and offers health, state, watch and init commands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/a11y-gateway/internal/config"
	"github.com/2389/a11y-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _ _                     _
   __ _/ / |_   _        __ _  __ _| |_ _____      ____ _ _   _
  / _' | | | | | |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_| | | | |_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__,_|_|_|\__, |      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
            |___/       |___/                             |___/
`

func usage() {
	fmt.Println("Usage: a11y-gateway <command> [--config PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the accessibility broker")
	fmt.Println("  init     Create a new config file interactively")
	fmt.Println("  health   Check gateway health")
	fmt.Println("  state    Print the broker state as JSON")
	fmt.Println("  watch    Stream client state changes over gRPC")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	configPath, err := parseFlags(command, os.Args[2:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "serve":
		err = runServe(ctx, configPath)
	case "init":
		err = runInit(configPath)
	case "health":
		err = runHealth(ctx, configPath)
	case "state":
		err = runState(ctx, configPath, os.Stdout)
	case "watch":
		err = runWatch(ctx, configPath, os.Stdout)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the flags shared by every command. The config path
// defaults to config.Path().
func parseFlags(command string, args []string) (string, error) {
	flagSet := pflag.NewFlagSet("a11y-gateway "+command, pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", config.Path(), "path to gateway.yaml")
	if err := flagSet.Parse(args); err != nil {
		return "", err
	}
	if flagSet.NArg() > 0 {
		return "", fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return *configPath, nil
}

func runServe(ctx context.Context, configPath string) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Services:  ")
	if cfg.Inventory.ManifestDir == "" {
		yellow.Print("none configured")
	} else {
		cyan.Print(cfg.Inventory.ManifestDir)
		if cfg.Inventory.Watch {
			gray.Print(" (watched)")
		}
	}
	fmt.Println()
	if cfg.DBus.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("D-Bus:     %s bus\n", cfg.DBus.Bus)
	}
	fmt.Println()

	logger.Info("starting a11y-gateway",
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"initial_user", cfg.Broker.InitialUser,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// fetch issues a GET against the configured HTTP address.
func fetch(ctx context.Context, configPath, path string) (int, []byte, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, nil, fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(ctx context.Context, configPath string) error {
	status, _, err := fetch(ctx, configPath, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	status, body, err := fetch(ctx, configPath, "/health/ready")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	if status != http.StatusOK {
		fmt.Printf("alive, not ready: %s\n", body)
		return nil
	}

	fmt.Println("healthy")
	return nil
}

func runState(ctx context.Context, configPath string, out io.Writer) error {
	status, body, err := fetch(ctx, configPath, "/debug/state")
	if err != nil {
		return fmt.Errorf("state query failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("state query failed: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	_, err = out.Write(body)
	return err
}

func runInit(configPath string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("a11y-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultDbPath := filepath.Join(config.DataDir(), "settings.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", configPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	grpcAddr := prompt(reader, "gRPC address", config.DefaultGRPCAddr)
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Broker
	fmt.Println("\n--- Broker Configuration ---")
	initialUser := prompt(reader, "Initial user id", "0")
	keyTimeout := prompt(reader, "Key event timeout", config.DefaultKeyEventTimeout.String())

	// Inventory
	fmt.Println("\n--- Service Inventory ---")
	manifestDir := prompt(reader, "Service manifest directory", "/etc/a11y/services")
	watch := isYes(prompt(reader, "Watch for manifest changes?", "yes"))

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(initConfig{
		GRPCAddr:        grpcAddr,
		HTTPAddr:        httpAddr,
		DBPath:          dbPath,
		InitialUser:     initialUser,
		KeyEventTimeout: keyTimeout,
		ManifestDir:     manifestDir,
		Watch:           watch,
		LogLevel:        logLevel,
		LogFormat:       logFormat,
	})

	// Reject answers the server would refuse to start with
	if _, err := config.Parse([]byte(content)); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  a11y-gateway serve --config %s\n", outputFile)

	return nil
}

// initConfig holds the answers collected by runInit.
type initConfig struct {
	GRPCAddr        string
	HTTPAddr        string
	DBPath          string
	InitialUser     string
	KeyEventTimeout string
	ManifestDir     string
	Watch           bool
	LogLevel        string
	LogFormat       string
}

func renderConfig(c initConfig) string {
	var cfg strings.Builder
	cfg.WriteString("# a11y-gateway configuration\n")
	cfg.WriteString("# Generated by a11y-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", c.GRPCAddr)
	fmt.Fprintf(&cfg, "  http_addr: %q\n", c.HTTPAddr)
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", c.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("broker:\n")
	fmt.Fprintf(&cfg, "  initial_user: %s\n", c.InitialUser)
	fmt.Fprintf(&cfg, "  key_event_timeout: %q\n", c.KeyEventTimeout)
	cfg.WriteString("\n")

	cfg.WriteString("inventory:\n")
	fmt.Fprintf(&cfg, "  manifest_dir: %q\n", c.ManifestDir)
	fmt.Fprintf(&cfg, "  watch: %t\n", c.Watch)
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", c.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", c.LogFormat)

	return cfg.String()
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
