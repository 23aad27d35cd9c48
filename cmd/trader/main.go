// Command trader runs a trading session from a YAML configuration. The
// status and stop verbs talk to a running session's operator API instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/trader"
)

const (
	appName    = "quantcapital-trader"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/trader.yaml", "Configuration file path")
	envFile    = flag.String("env", "", "Optional .env file loaded before the config")
	mode       = flag.String("mode", "", "Run mode: live, backtest (overrides config)")
	version    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Load env file %s: %v", *envFile, err)
		}
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	switch verb := flag.Arg(0); verb {
	case "", "start":
		if err := run(cfg); err != nil {
			log.Fatalf("Trader exited with error: %v", err)
		}
	case "status":
		if err := control(cfg, http.MethodGet, "/api/status"); err != nil {
			log.Fatalf("Status: %v", err)
		}
	case "stop":
		if err := control(cfg, http.MethodPost, "/api/stop"); err != nil {
			log.Fatalf("Stop: %v", err)
		}
	default:
		log.Fatalf("Unknown verb %q (want start, status or stop)", verb)
	}
}

// control sends one request to a running trader's operator API and prints
// the reply.
func control(cfg *config.Config, method, path string) error {
	addr := cfg.API.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	req, err := http.NewRequest(method, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned %s", resp.Status)
	}
	return nil
}

func run(cfg *config.Config) error {
	t, err := trader.NewTrader(cfg)
	if err != nil {
		return err
	}
	if err := t.Initialize(); err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		log.Println("[Main] Shutdown requested")
		return t.Stop()
	})

	log.Printf("[Main] %s running, Ctrl-C to stop", appName)
	return g.Wait()
}
