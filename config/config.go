// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
	}

	// Profiler selects the energy domain and the sampling behaviour
	Profiler struct {
		Package   string        `yaml:"package"`
		Component string        `yaml:"component"`
		Interval  time.Duration `yaml:"interval"`
		AsyncMode string        `yaml:"asyncMode"`
	}

	Processors struct {
		FilterThreshold float64 `yaml:"filterThreshold"`
		HideRegex       string  `yaml:"hideRegex"`
		ShowRegex       string  `yaml:"showRegex"`
	}

	Renderer struct {
		Name    string `yaml:"name"`
		Unicode *bool  `yaml:"unicode"`
		Color   *bool  `yaml:"color"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeMeter struct {
			Enabled *bool `yaml:"enabled"`
			// Increment is the energy in µJ each fake read adds
			Increment uint64 `yaml:"increment"`
		} `yaml:"fake-meter"`
	}
	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	// MCPExporter serves Model Context Protocol tools on the API server
	MCPExporter struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
		MCP        MCPExporter        `yaml:"mcp"`
	}

	// Debug configuration
	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log        Log        `yaml:"log"`
		Host       Host       `yaml:"host"`
		Profiler   Profiler   `yaml:"profiler"`
		Processors Processors `yaml:"processors"`
		Renderer   Renderer   `yaml:"renderer"`
		Exporter   Exporter   `yaml:"exporter"`
		Web        Web        `yaml:"web"`
		Debug      Debug      `yaml:"debug"`
		Dev        Dev        `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

// DefaultPort is the port the API server listens on unless configured otherwise
const DefaultPort = ":28283"

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"

	ProfilerPackageFlag   = "profiler.package"
	ProfilerComponentFlag = "profiler.component"
	ProfilerIntervalFlag  = "profiler.interval"
	ProfilerAsyncModeFlag = "profiler.async-mode"

	ProcessorsFilterThresholdFlag = "processors.filter-threshold"
	ProcessorsHideRegexFlag       = "processors.hide-regex"
	ProcessorsShowRegexFlag       = "processors.show-regex"

	RendererNameFlag    = "renderer"
	RendererUnicodeFlag = "renderer.unicode"
	RendererColorFlag   = "renderer.color"

	pprofEnabledFlag = "debug.pprof"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	ExporterStdoutEnabledFlag = "exporter.stdout"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"

	ExporterMCPEnabledFlag = "exporter.mcp"
	ExporterMCPPathFlag    = "exporter.mcp.path"

// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
		},
		Profiler: Profiler{
			Package:   "package-0",
			Interval:  sampler.DefaultInterval,
			AsyncMode: string(sampler.AsyncEnabled),
		},
		Processors: Processors{
			FilterThreshold: processors.DefaultFilterThreshold,
		},
		Renderer: Renderer{
			Name:    renderer.Text,
			Unicode: ptr.To(false),
			Color:   ptr.To(false),
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 2 * time.Second,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
			},
			MCP: MCPExporter{
				Enabled: ptr.To(false),
				Path:    "/mcp",
			},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
		Web: Web{
			ListenAddresses: []string{DefaultPort},
		},
	}

	cfg.Dev.FakeMeter.Enabled = ptr.To(false)
	cfg.Dev.FakeMeter.Increment = 1000
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	var errRet error
	defer func() {
		err = file.Close()
		if err != nil && errRet == nil {
			errRet = err
		}
	}()

	cfg, errRet := Load(file)

	return cfg, errRet
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").ExistingDir()

	// profiler
	profilerPackage := app.Flag(ProfilerPackageFlag, "Energy package to measure, by name (package-0) or index (0)").Default("package-0").String()
	profilerComponent := app.Flag(ProfilerComponentFlag, "Sub-domain of the package to measure (core, uncore, dram); empty for the whole package").Default("").String()
	profilerInterval := app.Flag(ProfilerIntervalFlag, "Sampling interval").Default(sampler.DefaultInterval.String()).Duration()
	profilerAsyncMode := app.Flag(ProfilerAsyncModeFlag, "Attribution of energy spent while parked: disabled, enabled, strict").
		Default(string(sampler.AsyncEnabled)).Enum(string(sampler.AsyncDisabled), string(sampler.AsyncEnabled), string(sampler.AsyncStrict))

	// processors
	filterThreshold := app.Flag(ProcessorsFilterThresholdFlag, "Frames below this share of the total energy are folded into their parent").
		Default(strconv.FormatFloat(processors.DefaultFilterThreshold, 'f', -1, 64)).Float64()
	hideRegex := app.Flag(ProcessorsHideRegexFlag, "Hide library frames whose file path matches this regex").Default("").String()
	showRegex := app.Flag(ProcessorsShowRegexFlag, "Show library frames whose file path matches this regex").Default("").String()

	// renderer
	rendererName := app.Flag(RendererNameFlag, "Output renderer: "+strings.Join(renderer.Names(), ", ")).Default(renderer.Text).Enum(renderer.Names()...)
	rendererUnicode := app.Flag(RendererUnicodeFlag, "Use unicode box drawing in text output").Default("false").Bool()
	rendererColor := app.Flag(RendererColorFlag, "Use ANSI colours in text output").Default("false").Bool()

	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultPort).Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Print the power of every RAPL zone to stdout").Default("false").Bool()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()
	mcpExporterEnabled := app.Flag(ExporterMCPEnabledFlag, "Serve Model Context Protocol tools on the web server").Default("false").Bool()
	mcpExporterPath := app.Flag(ExporterMCPPathFlag, "Path of the Model Context Protocol endpoint").Default("/mcp").String()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}

		// profiler settings
		if flagsSet[ProfilerPackageFlag] {
			cfg.Profiler.Package = *profilerPackage
		}
		if flagsSet[ProfilerComponentFlag] {
			cfg.Profiler.Component = *profilerComponent
		}
		if flagsSet[ProfilerIntervalFlag] {
			cfg.Profiler.Interval = *profilerInterval
		}
		if flagsSet[ProfilerAsyncModeFlag] {
			cfg.Profiler.AsyncMode = *profilerAsyncMode
		}

		if flagsSet[ProcessorsFilterThresholdFlag] {
			cfg.Processors.FilterThreshold = *filterThreshold
		}
		if flagsSet[ProcessorsHideRegexFlag] {
			cfg.Processors.HideRegex = *hideRegex
		}
		if flagsSet[ProcessorsShowRegexFlag] {
			cfg.Processors.ShowRegex = *showRegex
		}

		if flagsSet[RendererNameFlag] {
			cfg.Renderer.Name = *rendererName
		}
		if flagsSet[RendererUnicodeFlag] {
			cfg.Renderer.Unicode = rendererUnicode
		}
		if flagsSet[RendererColorFlag] {
			cfg.Renderer.Color = rendererColor
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}

		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		if flagsSet[ExporterMCPEnabledFlag] {
			cfg.Exporter.MCP.Enabled = mcpExporterEnabled
		}
		if flagsSet[ExporterMCPPathFlag] {
			cfg.Exporter.MCP.Path = *mcpExporterPath
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)
	c.Profiler.Package = strings.TrimSpace(c.Profiler.Package)
	c.Profiler.Component = strings.TrimSpace(c.Profiler.Component)
	c.Profiler.AsyncMode = strings.TrimSpace(c.Profiler.AsyncMode)
	c.Renderer.Name = strings.TrimSpace(c.Renderer.Name)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	c.Exporter.MCP.Path = strings.TrimSpace(c.Exporter.MCP.Path)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}

	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level

		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		// Validate logging settings
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // Validate host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
			if err := canReadDir(c.Host.ProcFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s ", c.Host.ProcFS, err.Error()))
			}
		}
	}
	{ // Profiler
		if c.Profiler.Package == "" {
			errs = append(errs, "profiler package cannot be empty")
		}
		if c.Profiler.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid profiler interval: %s must be positive", c.Profiler.Interval))
		}
		if _, err := sampler.ParseAsyncMode(c.Profiler.AsyncMode); err != nil {
			errs = append(errs, err.Error())
		}
	}
	{ // Processors
		if c.Processors.FilterThreshold < 0 || c.Processors.FilterThreshold > 1 {
			errs = append(errs, fmt.Sprintf("invalid filter threshold: %g must be within [0, 1]", c.Processors.FilterThreshold))
		}
		if _, err := processors.CompilePathRegex(c.Processors.HideRegex); err != nil {
			errs = append(errs, err.Error())
		}
		if _, err := processors.CompilePathRegex(c.Processors.ShowRegex); err != nil {
			errs = append(errs, err.Error())
		}
	}
	{ // Exporters
		if c.Exporter.Stdout.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid stdout exporter interval: %s must be positive", c.Exporter.Stdout.Interval))
		}
		if !strings.HasPrefix(c.Exporter.MCP.Path, "/") {
			errs = append(errs, fmt.Sprintf("invalid mcp path: %q must start with /", c.Exporter.MCP.Path))
		}
	}
	{ // Renderer
		if !slices.Contains(renderer.Names(), c.Renderer.Name) {
			errs = append(errs, fmt.Sprintf("invalid renderer: %q", c.Renderer.Name))
		}
	}
	{ // Web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // Web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if addr == "" {
				errs = append(errs, "web listen address cannot be empty")
				continue
			}
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

// ProcessorOptions compiles the processors section
func (c *Config) ProcessorOptions() (processors.Options, error) {
	hide, err := processors.CompilePathRegex(c.Processors.HideRegex)
	if err != nil {
		return processors.Options{}, err
	}
	show, err := processors.CompilePathRegex(c.Processors.ShowRegex)
	if err != nil {
		return processors.Options{}, err
	}
	return processors.Options{
		FilterThreshold: c.Processors.FilterThreshold,
		HideRegex:       hide,
		ShowRegex:       show,
	}, nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	if err != nil {
		return err
	}

	return nil
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// host can be empty for listening on all interfaces
	if err := validatePort(port); err != nil {
		return err
	}

	return nil
}

func validatePort(port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: yaml marshal should not fail, but fall back to a flat listing if it does
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{HostProcFSFlag, c.Host.ProcFS},
		{ProfilerPackageFlag, c.Profiler.Package},
		{ProfilerComponentFlag, c.Profiler.Component},
		{ProfilerIntervalFlag, c.Profiler.Interval.String()},
		{ProfilerAsyncModeFlag, c.Profiler.AsyncMode},
		{ProcessorsFilterThresholdFlag, strconv.FormatFloat(c.Processors.FilterThreshold, 'f', -1, 64)},
		{ProcessorsHideRegexFlag, c.Processors.HideRegex},
		{ProcessorsShowRegexFlag, c.Processors.ShowRegex},
		{RendererNameFlag, c.Renderer.Name},
		{RendererUnicodeFlag, fmt.Sprintf("%v", ptr.Deref(c.Renderer.Unicode, false))},
		{RendererColorFlag, fmt.Sprintf("%v", ptr.Deref(c.Renderer.Color, false))},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
		{ExporterMCPEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.MCP.Enabled, false))},
		{ExporterMCPPathFlag, c.Exporter.MCP.Path},
		{pprofEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Debug.Pprof.Enabled, false))},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
