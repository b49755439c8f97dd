// Package device wraps adb for the small set of interactions the agent's
// tools need. All commands run with the caller's context so a stuck device
// cannot hang the agent.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Device addresses one Android device over adb.
type Device struct {
	Serial  string // empty means the default device
	ADBPath string // defaults to "adb" on PATH
}

// New creates a Device handle. No connection is made until a command runs.
func New(serial, adbPath string) *Device {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &Device{Serial: serial, ADBPath: adbPath}
}

func (d *Device) args(cmd ...string) []string {
	if d.Serial == "" {
		return cmd
	}
	return append([]string{"-s", d.Serial}, cmd...)
}

func (d *Device) run(ctx context.Context, cmd ...string) (string, error) {
	out, err := exec.CommandContext(ctx, d.ADBPath, d.args(cmd...)...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(cmd, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Shell runs a shell command on the device and returns its output.
func (d *Device) Shell(ctx context.Context, command string) (string, error) {
	return d.run(ctx, "shell", command)
}

// Tap sends a tap at screen coordinates.
func (d *Device) Tap(ctx context.Context, x, y int) error {
	_, err := d.Shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// Swipe drags from one point to another over the given duration.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	ms := duration.Milliseconds()
	if ms <= 0 {
		ms = 300
	}
	_, err := d.Shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, ms))
	return err
}

// TypeText types text into the focused field. Spaces are escaped the way
// `input text` expects.
func (d *Device) TypeText(ctx context.Context, text string) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := d.Shell(ctx, "input text "+strconv.Quote(escaped))
	return err
}

// KeyEvent sends an Android keycode, e.g. "KEYCODE_BACK" or "KEYCODE_HOME".
func (d *Device) KeyEvent(ctx context.Context, code string) error {
	_, err := d.Shell(ctx, "input keyevent "+code)
	return err
}

// Screenshot captures the screen to a device-side path, pulls it to
// localPath, and removes the device-side copy.
func (d *Device) Screenshot(ctx context.Context, localPath string) error {
	const remote = "/sdcard/droidpilot_screen.png"
	if _, err := d.Shell(ctx, "screencap -p "+remote); err != nil {
		return err
	}
	if _, err := d.run(ctx, "pull", remote, localPath); err != nil {
		return err
	}
	_, err := d.Shell(ctx, "rm -f "+remote)
	return err
}

// UIDump returns the uiautomator XML hierarchy of the current screen.
func (d *Device) UIDump(ctx context.Context) (string, error) {
	const remote = "/sdcard/droidpilot_ui.xml"
	if _, err := d.Shell(ctx, "uiautomator dump "+remote); err != nil {
		return "", err
	}
	return d.Shell(ctx, "cat "+remote)
}

// CurrentApp returns the package name of the foreground activity.
func (d *Device) CurrentApp(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "dumpsys activity activities | grep -m1 topResumedActivity")
	if err != nil {
		return "", err
	}
	// Line shape: "topResumedActivity=ActivityRecord{... com.pkg/.Activity ...}"
	for _, field := range strings.Fields(out) {
		if i := strings.Index(field, "/"); i > 0 && strings.Contains(field, ".") {
			return field[:i], nil
		}
	}
	return "", fmt.Errorf("current app: unrecognized dumpsys output: %q", out)
}

// StartApp launches an app by package name via monkey.
func (d *Device) StartApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg))
	return err
}

// StopApp force-stops an app by package name.
func (d *Device) StopApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am force-stop "+pkg)
	return err
}
