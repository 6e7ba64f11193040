package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/NodePath81/pingbar/internal/app"
	"github.com/NodePath81/pingbar/internal/config"
	"github.com/NodePath81/pingbar/internal/ui"
	"github.com/NodePath81/pingbar/internal/util"
	"github.com/NodePath81/pingbar/internal/version"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runCmd := flag.NewFlagSet("run", flag.ExitOnError)
			configPath := runCmd.String("config", "", "Path to config file (optional)")
			headless := runCmd.Bool("headless", false, "Run without the terminal UI")
			_ = runCmd.Parse(os.Args[2:])
			if *configPath == "" && runCmd.NArg() > 0 {
				*configPath = runCmd.Arg(0)
			}
			runMonitor(*configPath, *headless)
			return
		case "check":
			checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
			configPath := checkCmd.String("config", "", "Path to config file")
			_ = checkCmd.Parse(os.Args[2:])
			if *configPath == "" && checkCmd.NArg() > 0 {
				*configPath = checkCmd.Arg(0)
			}
			checkConfig(*configPath)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "-v", "--version":
			fmt.Println(version.Version)
			return
		}
	}

	configPath := flag.String("config", "", "Path to config file (optional)")
	headless := flag.Bool("headless", false, "Run without the terminal UI")
	flag.Parse()
	if *configPath == "" && len(flag.Args()) > 0 {
		*configPath = flag.Arg(0)
	}
	runMonitor(*configPath, *headless)
}

func runMonitor(configPath string, headless bool) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	headless = headless || cfg.UI.Headless

	logger, closeLog, err := buildLogger(cfg.Log, headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	supervisor := app.NewSupervisor(logger)
	if err := supervisor.Start(cfg); err != nil {
		logger.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		closeLog()
		os.Exit(1)
	}
	defer supervisor.Stop()

	if headless {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown requested")
		return
	}

	mon, err := supervisor.Monitor()
	if err != nil {
		logger.Error("monitor unavailable", "error", err)
		return
	}
	program := tea.NewProgram(ui.NewModel(mon, cfg.UI.RefreshInterval.Duration()), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("ui failed", "error", err)
		fmt.Fprintf(os.Stderr, "ui failed: %v\n", err)
	}
	logger.Info("shutdown requested")
}

// buildLogger writes to stdout when headless. With the terminal UI on screen
// logs go to log.file or are discarded.
func buildLogger(cfg config.LogConfig, headless bool) (util.Logger, func(), error) {
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, func() {}, err
		}
		return util.NewLoggerTo(f, cfg.Level), func() { _ = f.Close() }, nil
	}
	if headless {
		return util.NewLoggerTo(os.Stdout, cfg.Level), func() {}, nil
	}
	return util.NewLoggerTo(io.Discard, cfg.Level), func() {}, nil
}

func checkConfig(path string) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config valid: target %s, interval %s, history %d, control enabled %t\n",
		cfg.Target, cfg.Probe.Interval.Duration(), cfg.History.Capacity, cfg.Control.Enabled)
	os.Exit(0)
}

func printHelp() {
	fmt.Print(`pingbar - ICMP latency monitor

Usage:
  pingbar run [--config <path>] [--headless]   Start monitoring
  pingbar check --config <path>                Validate config file
  pingbar help                                 Show this help
  pingbar version                              Print version

Legacy:
  pingbar --config <path>
  pingbar <config-path>

Keys:
  p   toggle plane mode
  q   quit
`)
}
