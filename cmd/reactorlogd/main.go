package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/pkg/reactorlog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("reactorlogd %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to daemon configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := reactorlog.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := reactorlog.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := reactorlog.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Watching %s every %s (Ctrl+C to stop)\n", *url, *interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

// printMetricsSnapshot scrapes the endpoint once and prints every
// daemon series as a table, histograms summarized to sum/count.
func printMetricsSnapshot(url string) error {
	series, err := scrapeDaemonSeries(url)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("no daemon series found; is the daemon running?")
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "-- %s\n", time.Now().Format(time.RFC3339))
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%g\n", name, series[name])
	}
	return tw.Flush()
}

func scrapeDaemonSeries(url string) (map[string]float64, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	series := make(map[string]float64)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "reactors_") {
			continue
		}
		// Bucket series would drown the table; sum and count carry the
		// latency story.
		if strings.Contains(line, "_bucket{") {
			continue
		}
		var name string
		var value float64
		if _, err := fmt.Sscanf(line, "%s %f", &name, &value); err != nil {
			continue
		}
		series[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return series, nil
}

func printUsage() {
	fmt.Printf(`reactorlogd

Usage:
  reactorlogd <command> [flags]

Commands:
  run        Start the sampling daemon using the provided config
  validate   Load and validate a config file without starting the daemon
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  reactorlogd run -config ./data/config.yaml
  reactorlogd validate -config ./data/config.yaml
  reactorlogd stats -url http://localhost:9100/metrics -interval 1s
`)
}
