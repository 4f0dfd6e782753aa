package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scenegen/internal/config"
	"scenegen/internal/textutil"
)

const userAgent = "scenegen/0.1.0"

// Event names a scene lifecycle notification.
type Event string

const (
	EventSceneStarted   Event = "scene_started"
	EventSceneCompleted Event = "scene_completed"
	EventSceneDegraded  Event = "scene_degraded"
	EventSceneFailed    Event = "scene_failed"
	EventLowQuality     Event = "low_quality"
	EventTest           Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service when a topic is configured and a
// no-op otherwise.
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
		enabled: map[Event]bool{
			EventSceneStarted:   cfg.Notifications.SceneStart,
			EventSceneCompleted: cfg.Notifications.SceneComplete,
			EventSceneDegraded:  cfg.Notifications.SceneComplete,
			EventSceneFailed:    cfg.Notifications.Errors,
			EventLowQuality:     cfg.Notifications.LowQuality,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, p Payload) (message, bool) {
	scene := p.str("scene")
	switch event {
	case EventSceneStarted:
		body := fmt.Sprintf("🎬 Generating %s: %d shots", scene, p.int("shots"))
		if est := p.str("estimate"); est != "" {
			body += ", about " + est
		}
		return message{title: "scenegen - Scene Started", body: body, tags: []string{"scenegen", "scene", "started"}}, true
	case EventSceneCompleted:
		body := fmt.Sprintf("✅ %s assembled", scene)
		if d := p.float("duration"); d > 0 {
			body += fmt.Sprintf(" (%.1fs)", d)
		}
		if path := p.str("video"); path != "" {
			body += "\nFile: " + path
		}
		return message{title: "scenegen - Scene Complete", body: body, tags: []string{"scenegen", "scene", "completed"}, priority: "high"}, true
	case EventSceneDegraded:
		body := fmt.Sprintf("⚠️ %s assembled without audio", scene)
		if reason := p.str("reason"); reason != "" {
			body += ": " + reason
		}
		return message{title: "scenegen - Scene Degraded", body: body, tags: []string{"scenegen", "scene", "degraded"}}, true
	case EventSceneFailed:
		var b strings.Builder
		b.WriteString("❌ Error")
		if scene != "" {
			b.WriteString(" with ")
			b.WriteString(scene)
		}
		b.WriteString(": ")
		if msg := p.str("error"); msg != "" {
			b.WriteString(msg)
		} else {
			b.WriteString("unknown")
		}
		return message{title: "scenegen - Error", body: b.String(), tags: []string{"scenegen", "error", "alert"}, priority: "high"}, true
	case EventLowQuality:
		body := fmt.Sprintf("📉 %s shot %d accepted at %.2f (threshold %.2f)",
			scene, p.int("shot"), p.float("score"), p.float("threshold"))
		if mood := p.str("mood"); mood != "" {
			body += "\nMood: " + textutil.DisplayName(mood)
		}
		return message{title: "scenegen - Low Quality Shot", body: body, tags: []string{"scenegen", "quality", "review"}}, true
	case EventTest:
		return message{title: "scenegen - Test", body: "🧪 Notification system test", tags: []string{"scenegen", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (p Payload) str(key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (p Payload) int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
