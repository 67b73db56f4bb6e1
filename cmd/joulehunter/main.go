// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/powerapi-ng/joulehunter/config"
	"github.com/powerapi-ng/joulehunter/internal/logger"
	"github.com/powerapi-ng/joulehunter/internal/version"
)

const appName = "joulehunter"

// cli holds the parsed command and its arguments
type cli struct {
	command     string
	configFiles []string

	renderInput  string
	renderOutput string

	profileDuration string
	profileOutput   string
	profileSave     string
}

func main() {
	// parse args and config and exit with error if there is an error
	args, cfg, err := parseArgsAndConfig(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	switch args.command {
	case versionCmd:
		fmt.Println(version.Info())
		return
	case domainsCmd:
		err = listDomains(os.Stdout, cfg, logger)
	case renderCmd:
		err = renderFile(args.renderInput, args.renderOutput, cfg)
	case profileCmd:
		err = profileWorkload(args, cfg, logger)
	case mcpCmd:
		err = serveMCP(cfg, logger)
	default:
		logVersionInfo(logger)
		printConfigInfo(logger, cfg)
		err = serve(cfg, logger)
	}
	if err != nil {
		logger.Error("joulehunter terminated with an error", "command", args.command, "error", err)
		os.Exit(1)
	}
}

const (
	serveCmd   = "serve"
	domainsCmd = "domains"
	renderCmd  = "render"
	profileCmd = "profile"
	mcpCmd     = "mcp"
	versionCmd = "version"
)

func parseArgsAndConfig(argv []string) (*cli, *config.Config, error) {
	app := kingpin.New(appName, "Energy profiler: attributes the RAPL energy of a Go program to its call stacks.")
	args := &cli{}

	app.Flag("config.file", "Path to a YAML configuration file; repeat to layer files, later ones win").StringsVar(&args.configFiles)
	updateConfig := config.RegisterFlags(app)

	app.Command(serveCmd, "Serve metrics, domains and report rendering over HTTP").Default()
	app.Command(domainsCmd, "List the RAPL domains of the host")
	render := app.Command(renderCmd, "Render a saved session")
	render.Arg("session", "Saved session file").Required().ExistingFileVar(&args.renderInput)
	render.Flag("output", "Write the report to this file instead of stdout").Short('o').StringVar(&args.renderOutput)
	profile := app.Command(profileCmd, "Profile a built-in CPU bound workload")
	profile.Flag("duration", "How long the workload runs").Default("2s").StringVar(&args.profileDuration)
	profile.Flag("output", "Write the report to this file instead of stdout").Short('o').StringVar(&args.profileOutput)
	profile.Flag("save", "Also save the session to this file").StringVar(&args.profileSave)
	app.Command(mcpCmd, "Serve Model Context Protocol tools over stdin and stdout")
	app.Command(versionCmd, "Print version information")

	command, err := app.Parse(argv)
	if err != nil {
		app.Errorf("%s, try --help", err)
		return nil, nil, err
	}
	args.command = command

	logger := logger.New("info", "text", os.Stderr)
	if len(args.configFiles) > 0 {
		logger.Info("Loading configuration files", "paths", args.configFiles)
	}
	cfg, err := config.NewBuilder().
		Use(config.DefaultConfig()).
		MergeFiles(args.configFiles...).
		Build()
	if err != nil {
		logger.Error("Error loading configuration", "error", err.Error())
		return nil, nil, err
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, nil, err
	}

	return args, cfg, nil
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("joulehunter version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(os.Stderr, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

// shutdownSignals stop the serve command
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
