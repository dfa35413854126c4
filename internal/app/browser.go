package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// BrowserLauncher opens the purchase page in the user's default browser.
// It implements entitlement.PurchaseLauncher.
type BrowserLauncher struct {
	url    string
	logger *slog.Logger
}

// NewBrowserLauncher creates a launcher for the given purchase URL.
func NewBrowserLauncher(url string, logger *slog.Logger) *BrowserLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserLauncher{
		url:    url,
		logger: logger.With(slog.String("component", "browser")),
	}
}

// LaunchPurchase opens the store page, trying each platform method in turn.
func (b *BrowserLauncher) LaunchPurchase(ctx context.Context) error {
	var lastErr error
	for _, method := range browserMethods(b.url) {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Plain Command rather than CommandContext: the browser process
		// must outlive this call.
		cmd := exec.Command(method.cmd, method.args...)
		if err := cmd.Start(); err != nil {
			lastErr = err
			b.logger.WarnContext(ctx, "browser open method failed",
				slog.String("method", method.name),
				slog.String("error", err.Error()))
			continue
		}

		// Reap the child when it exits so no zombie lingers.
		go cmd.Wait()

		b.logger.InfoContext(ctx, "purchase page opened",
			slog.String("method", method.name),
			slog.String("url", b.url))
		return nil
	}
	return fmt.Errorf("open browser: %w", lastErr)
}

type browserMethod struct {
	name string
	cmd  string
	args []string
}

func browserMethods(url string) []browserMethod {
	switch runtime.GOOS {
	case "windows":
		return []browserMethod{
			{name: "start_command", cmd: "cmd", args: []string{"/c", "start", "", url}},
			{name: "rundll32", cmd: "rundll32", args: []string{"url.dll,FileProtocolHandler", url}},
		}
	case "darwin":
		return []browserMethod{
			{name: "open", cmd: "open", args: []string{url}},
		}
	default:
		return []browserMethod{
			{name: "xdg-open", cmd: "xdg-open", args: []string{url}},
			{name: "sensible-browser", cmd: "sensible-browser", args: []string{url}},
		}
	}
}
