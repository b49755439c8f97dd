package router

import (
	"testing"

	"github.com/droidpilot-ai/droidpilot/pkg/config"
)

func TestResolveNoRoutes(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1", Model: "gemma3:12b"},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("gemma3:4b")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "local" || routes[0].Model != "gemma3:4b" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveEmptyRequestUsesProviderDefault(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1", Model: "gemma3:12b"},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "gemma3:12b" {
		t.Errorf("expected provider default model, got %s", routes[0].Model)
	}
}

func TestResolveWithAlias(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1"},
			{Name: "openai", URL: "https://api.openai.com/v1", APIKey: "sk-1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "fast",
					Targets: []config.RouteTarget{
						{Provider: "local", Model: "gemma3:4b"},
						{Provider: "openai", Model: "gpt-4o-mini"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("fast")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "gemma3:4b" || routes[0].Provider.Name != "local" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "gpt-4o-mini" || routes[1].Provider.Name != "openai" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveEmptyTargetModelUsesRequested(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model:   "gemma3:12b",
					Targets: []config.RouteTarget{{Provider: "local"}},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("gemma3:12b")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "gemma3:12b" {
		t.Errorf("expected model gemma3:12b, got %s", routes[0].Model)
	}
}

func TestResolveSkipsUnknownProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "fast",
					Targets: []config.RouteTarget{
						{Provider: "unknown", Model: "x"},
						{Provider: "local", Model: "gemma3:4b"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("fast")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "local" {
		t.Errorf("expected local, got %s", routes[0].Provider.Name)
	}
}

func TestResolveAllUnknownProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "local", URL: "http://localhost:11434/v1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model:   "bad",
					Targets: []config.RouteTarget{{Provider: "unknown", Model: "x"}},
				},
			},
		},
	}
	r := New(cfg)
	if _, err := r.Resolve("bad"); err == nil {
		t.Fatal("expected error for all unknown providers")
	}
}

func TestResolveNoProviders(t *testing.T) {
	r := New(&config.Config{})
	if _, err := r.Resolve("gemma3:12b"); err == nil {
		t.Fatal("expected error for no providers")
	}
}
