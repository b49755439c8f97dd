package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/budget"
	cachepkg "github.com/droidpilot-ai/droidpilot/pkg/cache/sqlite"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/device"
	"github.com/droidpilot-ai/droidpilot/pkg/history"
	"github.com/droidpilot-ai/droidpilot/pkg/metrics"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
	"github.com/droidpilot-ai/droidpilot/pkg/provider"
	"github.com/droidpilot-ai/droidpilot/pkg/router"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

const defaultSystemPrompt = `You are an Android automation agent. You control a phone through tools.
Observe the screenshot and UI tree, then either call one tool to make progress
or answer the user directly when no device action is needed. Always finish a
task with a final answer summarizing what you did.`

// components holds the wired dependencies shared by the run and serve commands.
type components struct {
	cfg      *config.Config
	store    *cachepkg.Cache // nil when caching is disabled
	hist     *history.Store
	enforcer *budget.Enforcer // nil when budgets are disabled
	registry *tools.Registry
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	producer agent.Producer
}

func buildComponents(cfg *config.Config) (*components, error) {
	c := &components{
		cfg:      cfg,
		registry: tools.Default(cfg.Device.ScreenshotDir),
		promReg:  prometheus.NewRegistry(),
	}
	c.metrics = metrics.New(c.promReg)

	hist, err := history.New(cfg.DBPath, cfg.History.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}
	c.hist = hist

	if cfg.Cache.Enabled {
		store, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
		c.store = store
	}

	producer, err := provider.NewFallback(router.New(cfg), cfg.Agent.Model, systemPrompt(cfg), c.registry)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init provider: %w", err)
	}
	c.producer = producer

	if cfg.Budget.Enabled {
		c.enforcer = budget.New(cfg.Budget.Policies, hist)
		c.producer = budget.NewGuard(c.producer, c.enforcer, cfg.User)
	}

	return c, nil
}

// Close releases the stores. Safe to call with partially built components.
func (c *components) Close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.hist != nil {
		_ = c.hist.Close()
	}
}

func systemPrompt(cfg *config.Config) string {
	if cfg.Agent.SystemPrompt != "" {
		return cfg.Agent.SystemPrompt
	}
	return defaultSystemPrompt
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the interactive agent against a connected device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			comps, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			th := agent.NewCachingProducer(comps.producer, comps.store, agent.Config{
				UserID:        cfg.User,
				SystemPrompt:  systemPrompt(cfg),
				HistoryWindow: cfg.Cache.HistoryWindow,
				MaxEntries:    cfg.Cache.MaxEntries,
				Metrics:       comps.metrics,
				Recorder:      comps.hist.ForUser(cfg.User),
			})
			dev := device.New(cfg.Device.Serial, cfg.Device.ADBPath)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("droidpilot %s — conversation %s (type a task, \"reset\", or \"exit\")\n", version, th.ConversationID())

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				case "reset":
					th.Reset()
					fmt.Printf("new conversation %s\n", th.ConversationID())
					continue
				}

				if err := runTask(ctx, comps, th, dev, line); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "droidpilot.yaml", "path to config file")
	return cmd
}

// runTask drives one task to completion: think, execute the requested tool,
// feed the observation back, until the model answers or the step limit hits.
func runTask(ctx context.Context, comps *components, th *agent.CachingProducer, dev *device.Device, task string) error {
	maxSteps := comps.cfg.Agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 15
	}

	query := task
	for step := 1; step <= maxSteps; step++ {
		screenshot, uiTree := deviceContext(ctx, comps.cfg, dev)

		result, err := th.Think(ctx, agent.Request{
			Query:      query,
			Screenshot: screenshot,
			UITree:     uiTree,
		})
		if err != nil {
			return err
		}

		switch result.Action {
		case models.ActionFinalAnswer:
			fmt.Println(result.Content)
			return nil
		case models.ActionError:
			fmt.Fprintf(os.Stderr, "model error: %s\n", result.Content)
			return nil
		case models.ActionToolCall:
			res := comps.registry.Execute(ctx, dev, result.ToolName, result.ToolArgs)
			status := "ok"
			if !res.Success {
				status = "error"
			}
			comps.metrics.RecordTool(result.ToolName, status)
			fmt.Printf("[%d/%d] %s → %s\n", step, maxSteps, result.ToolName, toolSummary(res))
			query = fmt.Sprintf("Observation from %s: %s. Continue the task: %s", result.ToolName, toolSummary(res), task)
		default:
			return fmt.Errorf("unknown action %q", result.Action)
		}
	}

	fmt.Printf("stopped after %d steps without a final answer\n", maxSteps)
	return nil
}

func toolSummary(res models.ToolResult) string {
	if !res.Success {
		return "failed: " + res.Error
	}
	if res.Output != "" {
		return res.Output
	}
	return "done"
}

// deviceContext captures the current screen best-effort. A missing or
// unreachable device degrades to a text-only request.
func deviceContext(ctx context.Context, cfg *config.Config, dev *device.Device) (screenshot, uiTree string) {
	path := filepath.Join(cfg.Device.ScreenshotDir, fmt.Sprintf("step_%d.png", time.Now().UnixMilli()))
	if err := dev.Screenshot(ctx, path); err != nil {
		log.Printf("screenshot unavailable: %v", err)
	} else {
		screenshot = path
	}

	tree, err := dev.UIDump(ctx)
	if err != nil {
		log.Printf("ui dump unavailable: %v", err)
	} else {
		uiTree = tree
	}
	return screenshot, uiTree
}
