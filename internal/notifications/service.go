package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskguard/internal/config"
)

const userAgent = "taskguard/0.1.0"

// Service defines the notification surface exposed to the daemon runtime
// and the CLI.
type Service interface {
	NotifyStarted(ctx context.Context, task, host string, pid int) error
	NotifyStopped(ctx context.Context, task, signal string) error
	NotifyExited(ctx context.Context, task string, exitCode int, runtime time.Duration) error
	NotifyKilled(ctx context.Context, task, host string, pid int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		onStart:  cfg.Notifications.OnStart,
		onStop:   cfg.Notifications.OnStop,
		onKill:   cfg.Notifications.OnKill,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	onStart  bool
	onStop   bool
	onKill   bool
}

func (n *ntfyService) NotifyStarted(ctx context.Context, task, host string, pid int) error {
	if !n.onStart {
		return nil
	}
	data := payload{
		title:   "taskguard - Started",
		message: fmt.Sprintf("▶️ %s started on %s (pid %d)", strings.TrimSpace(task), hostLabel(host), pid),
		tags:    []string{"taskguard", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStopped(ctx context.Context, task, signal string) error {
	if !n.onStop {
		return nil
	}
	message := fmt.Sprintf("⏹️ %s shut down", strings.TrimSpace(task))
	if signal = strings.TrimSpace(signal); signal != "" {
		message = fmt.Sprintf("%s after %s", message, signal)
	}
	data := payload{
		title:   "taskguard - Stopped",
		message: message,
		tags:    []string{"taskguard", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExited(ctx context.Context, task string, exitCode int, runtime time.Duration) error {
	if !n.onStop {
		return nil
	}
	runtime = runtime.Round(time.Second)
	if runtime < 0 {
		runtime = 0
	}
	data := payload{
		title:   "taskguard - Exited",
		message: fmt.Sprintf("%s exited with status %d after %s", strings.TrimSpace(task), exitCode, runtime),
		tags:    []string{"taskguard", "exited"},
	}
	if exitCode != 0 {
		data.title = "taskguard - Exited (failure)"
		data.priority = "high"
		data.tags = append(data.tags, "warning")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyKilled(ctx context.Context, task, host string, pid int) error {
	if !n.onKill {
		return nil
	}
	data := payload{
		title:   "taskguard - Killed",
		message: fmt.Sprintf("💀 %s (pid %d) killed on %s", strings.TrimSpace(task), pid, hostLabel(host)),
		tags:    []string{"taskguard", "killed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "taskguard - Error",
		message:  builder.String(),
		tags:     []string{"taskguard", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "taskguard - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"taskguard", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func hostLabel(host string) string {
	if host = strings.TrimSpace(host); host != "" {
		return host
	}
	return "localhost"
}

type noopService struct{}

func (noopService) NotifyStarted(context.Context, string, string, int) error       { return nil }
func (noopService) NotifyStopped(context.Context, string, string) error            { return nil }
func (noopService) NotifyExited(context.Context, string, int, time.Duration) error { return nil }
func (noopService) NotifyKilled(context.Context, string, string, int) error        { return nil }
func (noopService) NotifyError(context.Context, error, string) error               { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
