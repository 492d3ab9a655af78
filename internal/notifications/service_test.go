package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"taskguard/internal/config"
	"taskguard/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	if err := svc.NotifyStarted(context.Background(), "foo", "", 1); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL))
	ctx := context.Background()

	if err := svc.NotifyStarted(ctx, "exposure_daemon", "mast", 4242); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyStopped(ctx, "exposure_daemon", "terminated"); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyExited(ctx, "exposure_daemon", 2, 90*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyKilled(ctx, "exposure_daemon", "", 4242); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "kill"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatal(err)
	}

	got := seen()
	want := []captured{
		{title: "taskguard - Started", tags: "taskguard,started", body: "▶️ exposure_daemon started on mast (pid 4242)"},
		{title: "taskguard - Stopped", tags: "taskguard,stopped", body: "⏹️ exposure_daemon shut down after terminated"},
		{title: "taskguard - Exited (failure)", tags: "taskguard,exited,warning", priority: "high", body: "exposure_daemon exited with status 2 after 1m30s"},
		{title: "taskguard - Killed", tags: "taskguard,killed", body: "💀 exposure_daemon (pid 4242) killed on localhost"},
		{title: "taskguard - Error", tags: "taskguard,error,alert", priority: "high", body: "❌ Error with kill: boom"},
		{title: "taskguard - Test", tags: "taskguard,test", priority: "low", body: "🧪 Notification system test"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestToggledEventsAreSkipped(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK)
	cfg := configFor(srv.URL)
	cfg.Notifications.OnStart = false
	cfg.Notifications.OnStop = false
	cfg.Notifications.OnKill = false
	svc := notifications.NewService(cfg)
	ctx := context.Background()

	_ = svc.NotifyStarted(ctx, "foo", "", 1)
	_ = svc.NotifyStopped(ctx, "foo", "interrupt")
	_ = svc.NotifyExited(ctx, "foo", 0, time.Second)
	_ = svc.NotifyKilled(ctx, "foo", "", 1)
	if err := svc.NotifyError(ctx, errors.New("x"), ""); err != nil {
		t.Fatal(err)
	}
	if got := seen(); len(got) != 1 || !strings.HasPrefix(got[0].body, "❌ Error: x") {
		t.Fatalf("expected only the error notification, got %+v", got)
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	svc := notifications.NewService(configFor(srv.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
