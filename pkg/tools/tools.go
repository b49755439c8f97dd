// Package tools routes model tool calls to device implementations. Tool
// failures come back as structured results rather than errors, so the model
// can read what went wrong and recover.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/droidpilot-ai/droidpilot/pkg/device"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Handler executes one tool against a device.
type Handler func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult

// Spec describes a tool to the model (and to MCP clients).
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Registry maps tool names to handlers.
type Registry struct {
	specs    map[string]Spec
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]Spec),
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(spec Spec, h Handler) {
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = h
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns all tool specs in name order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.specs))
	for _, name := range r.Names() {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Execute runs a tool by name. Unknown tools and handler panics are
// reported in the result, never as errors.
func (r *Registry) Execute(ctx context.Context, d *device.Device, name string, args map[string]any) (res models.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			res = failure("tool %s panicked: %v", name, p)
		}
	}()
	h, ok := r.handlers[name]
	if !ok {
		return models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", name),
			Data:    map[string]any{"available_tools": r.Names()},
		}
	}
	return h(ctx, d, args)
}

func failure(format string, a ...any) models.ToolResult {
	return models.ToolResult{Success: false, Error: fmt.Sprintf(format, a...)}
}

func success(output string) models.ToolResult {
	return models.ToolResult{Success: true, Output: output}
}

func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64: // JSON numbers decode as float64
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func coordSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"x", "y"},
		"properties": map[string]any{
			"x": map[string]any{"type": "integer", "description": "X screen coordinate"},
			"y": map[string]any{"type": "integer", "description": "Y screen coordinate"},
		},
	}
}

func pkgSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"package"},
		"properties": map[string]any{
			"package": map[string]any{"type": "string", "description": "Android package name"},
		},
	}
}

func emptySchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Default returns a Registry with the standard device tools. Screenshots
// are written under screenshotDir.
func Default(screenshotDir string) *Registry {
	r := NewRegistry()

	r.Register(Spec{
		Name:        "tap",
		Description: "Tap the screen at the given coordinates.",
		InputSchema: coordSchema(),
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		x, err := intArg(args, "x")
		if err != nil {
			return failure("tap: %v", err)
		}
		y, err := intArg(args, "y")
		if err != nil {
			return failure("tap: %v", err)
		}
		if err := d.Tap(ctx, x, y); err != nil {
			return failure("tap: %v", err)
		}
		return success(fmt.Sprintf("tapped (%d, %d)", x, y))
	})

	r.Register(Spec{
		Name:        "swipe",
		Description: "Swipe from one point to another.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"x1", "y1", "x2", "y2"},
			"properties": map[string]any{
				"x1":          map[string]any{"type": "integer"},
				"y1":          map[string]any{"type": "integer"},
				"x2":          map[string]any{"type": "integer"},
				"y2":          map[string]any{"type": "integer"},
				"duration_ms": map[string]any{"type": "integer", "description": "Swipe duration in milliseconds (default 300)"},
			},
		},
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		coords := make([]int, 4)
		for i, key := range []string{"x1", "y1", "x2", "y2"} {
			v, err := intArg(args, key)
			if err != nil {
				return failure("swipe: %v", err)
			}
			coords[i] = v
		}
		durationMs := 300
		if _, ok := args["duration_ms"]; ok {
			v, err := intArg(args, "duration_ms")
			if err != nil {
				return failure("swipe: %v", err)
			}
			durationMs = v
		}
		if err := d.Swipe(ctx, coords[0], coords[1], coords[2], coords[3], time.Duration(durationMs)*time.Millisecond); err != nil {
			return failure("swipe: %v", err)
		}
		return success("swipe done")
	})

	r.Register(Spec{
		Name:        "type_text",
		Description: "Type text into the currently focused input field.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		text, err := stringArg(args, "text")
		if err != nil {
			return failure("type_text: %v", err)
		}
		if err := d.TypeText(ctx, text); err != nil {
			return failure("type_text: %v", err)
		}
		return success("text entered")
	})

	r.Register(Spec{
		Name:        "press_back",
		Description: "Press the Android back button.",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, d *device.Device, _ map[string]any) models.ToolResult {
		if err := d.KeyEvent(ctx, "KEYCODE_BACK"); err != nil {
			return failure("press_back: %v", err)
		}
		return success("back pressed")
	})

	r.Register(Spec{
		Name:        "press_home",
		Description: "Press the Android home button.",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, d *device.Device, _ map[string]any) models.ToolResult {
		if err := d.KeyEvent(ctx, "KEYCODE_HOME"); err != nil {
			return failure("press_home: %v", err)
		}
		return success("home pressed")
	})

	r.Register(Spec{
		Name:        "take_screenshot",
		Description: "Capture the current screen to a local PNG file.",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, d *device.Device, _ map[string]any) models.ToolResult {
		path := filepath.Join(screenshotDir, fmt.Sprintf("screen_%d.png", time.Now().UnixMilli()))
		if err := d.Screenshot(ctx, path); err != nil {
			return failure("take_screenshot: %v", err)
		}
		return models.ToolResult{Success: true, Output: path, Data: map[string]any{"path": path}}
	})

	r.Register(Spec{
		Name:        "get_ui_tree",
		Description: "Dump the uiautomator XML hierarchy of the current screen.",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, d *device.Device, _ map[string]any) models.ToolResult {
		xml, err := d.UIDump(ctx)
		if err != nil {
			return failure("get_ui_tree: %v", err)
		}
		return success(xml)
	})

	r.Register(Spec{
		Name:        "app_start",
		Description: "Launch an app by package name.",
		InputSchema: pkgSchema(),
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		pkg, err := stringArg(args, "package")
		if err != nil {
			return failure("app_start: %v", err)
		}
		if err := d.StartApp(ctx, pkg); err != nil {
			return failure("app_start: %v", err)
		}
		return success("started " + pkg)
	})

	r.Register(Spec{
		Name:        "app_stop",
		Description: "Force-stop an app by package name.",
		InputSchema: pkgSchema(),
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		pkg, err := stringArg(args, "package")
		if err != nil {
			return failure("app_stop: %v", err)
		}
		if err := d.StopApp(ctx, pkg); err != nil {
			return failure("app_stop: %v", err)
		}
		return success("stopped " + pkg)
	})

	r.Register(Spec{
		Name:        "app_current",
		Description: "Return the package name of the foreground app.",
		InputSchema: emptySchema(),
	}, func(ctx context.Context, d *device.Device, _ map[string]any) models.ToolResult {
		pkg, err := d.CurrentApp(ctx)
		if err != nil {
			return failure("app_current: %v", err)
		}
		return success(pkg)
	})

	r.Register(Spec{
		Name:        "shell",
		Description: "Run a shell command on the device and return its output.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"command"},
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
			},
		},
	}, func(ctx context.Context, d *device.Device, args map[string]any) models.ToolResult {
		command, err := stringArg(args, "command")
		if err != nil {
			return failure("shell: %v", err)
		}
		out, err := d.Shell(ctx, command)
		if err != nil {
			return failure("shell: %v", err)
		}
		return success(strings.TrimSpace(out))
	})

	return r
}
