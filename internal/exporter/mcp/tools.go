// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

const defaultTopLimit = 10

// FunctionEnergy is the energy of one function over a whole session
type FunctionEnergy struct {
	Function string
	File     string
	// Self is spent in the function body, Total includes its callees.
	// Recursive calls are counted once.
	Self  device.Energy
	Total device.Energy
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	s.server.AddTool(mcp.NewTool("list_domains",
		mcp.WithDescription("List the RAPL energy domains of the host: packages and their core, uncore and dram components"),
	), s.handleListDomains)

	s.server.AddTool(mcp.NewTool("profiler_status",
		mcp.WithDescription("Report whether a profiling session is running and the sampling counters"),
	), s.handleProfilerStatus)

	s.server.AddTool(mcp.NewTool("top_functions",
		mcp.WithDescription("List the functions of a saved session that consumed the most energy"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a session saved by joulehunter"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of functions (default: 10)"),
		),
		mcp.WithString("sort_by",
			mcp.Description("Sort by self or total energy (default: self)"),
		),
	), s.handleTopFunctions)

	s.server.AddTool(mcp.NewTool("render_session",
		mcp.WithDescription("Render a saved session as a call tree report"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a session saved by joulehunter"),
		),
		mcp.WithString("renderer",
			mcp.Description("Report format: text, json, html or speedscope (default: text)"),
		),
		mcp.WithNumber("filter_threshold",
			mcp.Description("Fold frames below this share of the total energy, between 0 and 1"),
		),
	), s.handleRenderSession)
}

func (s *Server) handleListDomains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domains, err := s.domains.Discover()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to discover domains: %v", err)), nil
	}
	if len(domains) == 0 {
		return mcp.NewToolResultText("no RAPL domain found"), nil
	}
	return mcp.NewToolResultText(device.Stringify(domains)), nil
}

func (s *Server) handleProfilerStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.stats.Stats()

	sb := strings.Builder{}
	state := "idle"
	if stats.Active {
		state = "profiling"
	}
	fmt.Fprintf(&sb, "state: %s\n", state)
	fmt.Fprintf(&sb, "completed sessions: %d\n", stats.Sessions)
	fmt.Fprintf(&sb, "ticks: %d (%d dropped)\n", stats.Sampler.Ticks, stats.Sampler.Dropped)
	fmt.Fprintf(&sb, "energy attributed: %s\n", stats.Sampler.Energy)
	if last := stats.LastSession; last != nil {
		fmt.Fprintf(&sb, "last session: %s over %s on %s (%s)\n",
			last.TotalEnergy(), last.Duration, strings.Join(last.DomainNames, "/"), last.AveragePower())
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleTopFunctions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := loadSession(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := int(req.GetFloat("limit", defaultTopLimit))
	if limit <= 0 {
		limit = defaultTopLimit
	}
	sortBy := req.GetString("sort_by", "self")
	if sortBy != "self" && sortBy != "total" {
		return mcp.NewToolResultError(fmt.Sprintf("invalid sort_by %q: use self or total", sortBy)), nil
	}

	functions := TopFunctions(sess.RootFrame(), sortBy == "total")
	if len(functions) > limit {
		functions = functions[:limit]
	}

	total := sess.TotalEnergy()
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%s over %s, %d samples\n\n", total, sess.Duration, sess.SampleCount)
	for i, f := range functions {
		fmt.Fprintf(&sb, "%2d. %s\n    self %s (%.1f%%), total %s (%.1f%%)\n",
			i+1, f.Function,
			f.Self, 100*tree.Proportion(f.Self, total),
			f.Total, 100*tree.Proportion(f.Total, total))
		if f.File != "" {
			fmt.Fprintf(&sb, "    %s\n", f.File)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRenderSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := req.GetString("renderer", renderer.Text)
	if name == renderer.Pprof {
		return mcp.NewToolResultError("renderer pprof writes a binary profile: use text, json, html or speedscope"), nil
	}
	opts := s.defaults
	opts.FilterThreshold = req.GetFloat("filter_threshold", opts.FilterThreshold)
	if opts.FilterThreshold < 0 || opts.FilterThreshold > 1 {
		return mcp.NewToolResultError("filter_threshold must be between 0 and 1"), nil
	}

	r, err := renderer.New(name, renderer.WithProcessorOptions(opts))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := loadSession(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := renderer.Output(r, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", path, err)
	}
	return mcp.NewToolResultText(report), nil
}

func loadSession(path string) (*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := session.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", path, err)
	}
	return s, nil
}

// TopFunctions sums the energy of root's subtree per function, highest
// first. Synthetic frames are left out.
func TopFunctions(root *tree.Frame, byTotal bool) []FunctionEnergy {
	type item struct {
		f    *tree.Frame
		exit bool
	}

	byName := map[string]*FunctionEnergy{}
	// functions on the current path, to count recursive totals once
	onPath := map[string]int{}

	pending := []item{{f: root}}
	for len(pending) > 0 {
		it := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		f := it.f
		if f == nil {
			continue
		}
		regular := !f.Kind.Synthetic()

		if it.exit {
			onPath[f.Function]--
			continue
		}

		if regular {
			fe := byName[f.Function]
			if fe == nil {
				fe = &FunctionEnergy{Function: f.Function, File: f.FilePathShort}
				if fe.File == "" {
					fe.File = f.FilePath
				}
				byName[f.Function] = fe
			}
			fe.Self += f.SelfEnergy()
			if onPath[f.Function] == 0 {
				fe.Total += f.TotalEnergy()
			}
			onPath[f.Function]++
			pending = append(pending, item{f: f, exit: true})
		}

		children := f.Children()
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if c.Kind == tree.Self && regular {
				// [self] children carry the body energy of their parent
				byName[f.Function].Self += c.SelfEnergy()
				continue
			}
			pending = append(pending, item{f: c})
		}
	}

	out := make([]FunctionEnergy, 0, len(byName))
	for _, fe := range byName {
		out = append(out, *fe)
	}
	key := func(fe FunctionEnergy) device.Energy {
		if byTotal {
			return fe.Total
		}
		return fe.Self
	}
	sort.Slice(out, func(i, j int) bool {
		if key(out[i]) != key(out[j]) {
			return key(out[i]) > key(out[j])
		}
		return out[i].Function < out[j].Function
	})
	return out
}
