package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"workforce/internal/collab"
	"workforce/internal/config"
	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/ledger"
	"workforce/internal/logger"
	"workforce/internal/mission"
	"workforce/internal/orchestrator"
	"workforce/internal/quota"
	"workforce/internal/tools"
)

const toolFetchTimeout = 30 * time.Second

var providers = []gateway.Provider{
	gateway.ProviderAnthropic,
	gateway.ProviderOpenAI,
	gateway.ProviderPerplexity,
	gateway.ProviderGoogle,
	gateway.ProviderOllama,
}

// App holds the wired components shared by every command.
type App struct {
	Ledger       *ledger.Store
	Guard        *quota.Guard
	Store        *mission.MemoryStore
	Orchestrator *orchestrator.Orchestrator
	Collab       *collab.Manager

	out io.Writer
}

// NewApp builds the component graph from cfg. Every provider with an API key
// gets a backend; ollama needs none. Requests for providers without a backend
// go to the configured one.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	active, err := gateway.ParseProvider(cfg.Gateway.Provider)
	if err != nil {
		return nil, err
	}

	client := gateway.NewClient(active, cfg.Gateway.Timeout)
	client.SetFallback(true)
	for _, p := range providers {
		key := cfg.APIKey(string(p))
		if key == "" && p != gateway.ProviderOllama {
			continue
		}
		bc := gateway.Config{Provider: p, APIKey: key, MaxTokens: cfg.Gateway.MaxTokens}
		if p == active {
			bc.Model = cfg.Gateway.Model
			bc.BaseURL = cfg.Gateway.BaseURL
		}
		if err := client.Init(ctx, bc); err != nil {
			if p == active {
				return nil, err
			}
			logger.Log.Warn("skipping llm backend", "provider", p, "err", err)
		}
	}

	store, err := ledger.Open(cfg.Ledger.Path, ledger.Defaults{
		FreeTokens: cfg.Quota.FreeTierTokens,
		PaidTokens: cfg.Quota.PaidTierTokens,
	})
	if err != nil {
		return nil, err
	}

	var dir directory.Directory = directory.EmbeddedDirectory{}
	if cfg.Directory.Path != "" {
		dir = directory.FileDirectory{Path: cfg.Directory.Path}
	}

	reg, err := tools.Default(&http.Client{Timeout: toolFetchTimeout})
	if err != nil {
		store.Close()
		return nil, err
	}

	var planProvider gateway.Provider
	if cfg.Gateway.PlanModel != "" {
		planProvider = active
	}
	return newApp(client, dir, store, reg, cfg.Quota, planProvider, cfg.Gateway.PlanModel, os.Stdout), nil
}

func newApp(gw gateway.Gateway, dir directory.Directory, store *ledger.Store, reg *tools.Registry,
	q config.QuotaConfig, planProvider gateway.Provider, planModel string, out io.Writer) *App {
	guard := quota.NewGuard(store, quota.TierDefaults{
		FreeTokens:       q.FreeTierTokens,
		PaidTokens:       q.PaidTierTokens,
		FreeMonthlyLimit: q.FreeMonthlyLimit,
	})
	metered := quota.NewMeteredGateway(gw, guard)
	missions := mission.NewMemoryStore()

	var opts []orchestrator.Option
	if planModel != "" {
		opts = append(opts, orchestrator.WithPlanModel(planProvider, planModel))
	}
	return &App{
		Ledger:       store,
		Guard:        guard,
		Store:        missions,
		Orchestrator: orchestrator.New(metered, dir, missions, opts...),
		Collab:       collab.NewManager(metered, dir, missions, collab.WithTools(reg)),
		out:          out,
	}
}

func (a *App) Close() error {
	return a.Ledger.Close()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// admit runs the pre-flight quota check for a request of the given lengths.
func (a *App) admit(ctx context.Context, user string, messageLen, historyLen int) error {
	estimated := quota.EstimateTokensForRequest(messageLen, historyLen)
	check := a.Guard.CanUserMakeRequest(ctx, user, estimated)
	if !check.Allowed {
		logger.Log.Warn("request refused by quota", "user", user, "estimated", estimated, "reason", check.Reason)
		return fmt.Errorf("request refused: %s", check.Reason)
	}
	return nil
}

func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
