package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"reward-progression-system/models"
	"reward-progression-system/utils"

	"github.com/go-co-op/gocron/v2"
)

// TemplateSource resolves broadcast templates per group; implemented by the
// config provider.
type TemplateSource interface {
	Template(groupID int64, kind string) (models.BroadcastTemplate, bool)
}

// Notification is one queued fan-out request.
type Notification struct {
	GroupID int64
	Kind    string
	Payload map[string]string
	Targets []int64
}

// DeliveryResult is the per-target outcome. Failures stay here; they are
// never escalated to the business event that queued the notification.
type DeliveryResult struct {
	ChatID    int64  `json:"chat_id"`
	OK        bool   `json:"ok"`
	MessageID int64  `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BroadcastDispatcher renders templated notifications and fans them out with
// bounded concurrency. It runs as a detached worker: enqueueing never blocks
// the reward pipeline, and delivery is at-most-once with no retry.
type BroadcastDispatcher struct {
	Client    TelegramSender
	Templates TemplateSource

	// Fan-out tuning; zero values fall back to defaults in New.
	Window      int
	BatchDelay  time.Duration
	SendTimeout time.Duration
	UnpinAfter  time.Duration

	queue chan Notification
	sched gocron.Scheduler
}

func NewBroadcastDispatcher(client TelegramSender, templates TemplateSource) *BroadcastDispatcher {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create unpin scheduler: %v", err)
	}
	return &BroadcastDispatcher{
		Client:      client,
		Templates:   templates,
		Window:      3,
		BatchDelay:  500 * time.Millisecond,
		SendTimeout: 10 * time.Second,
		UnpinAfter:  24 * time.Hour,
		queue:       make(chan Notification, 64),
		sched:       sched,
	}
}

// Enqueue hands a notification to the worker. A full queue drops it with a
// log line; broadcast is best-effort by contract.
func (d *BroadcastDispatcher) Enqueue(groupID int64, kind string, payload map[string]string, targets []int64) bool {
	if len(targets) == 0 {
		return false
	}
	n := Notification{GroupID: groupID, Kind: kind, Payload: payload, Targets: targets}
	select {
	case d.queue <- n:
		return true
	default:
		log.Printf("⚠️ [BROADCAST] queue full, dropping %s notification for group %d", kind, groupID)
		return false
	}
}

// Run drains the queue until the context is cancelled. Start it once from
// main with `go dispatcher.Run(ctx)`.
func (d *BroadcastDispatcher) Run(ctx context.Context) {
	log.Println("Starting broadcast dispatcher...")
	d.sched.Start()
	defer func() {
		if err := d.sched.Shutdown(); err != nil {
			log.Printf("⚠️ [BROADCAST] scheduler shutdown: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("Broadcast dispatcher stopped.")
			return
		case n := <-d.queue:
			d.Dispatch(ctx, n)
		}
	}
}

// Dispatch renders the template and sends to every target in windows of
// Window concurrent sends with a short delay between windows, respecting the
// upstream rate limit. Each target gets its own timeout and result slot; one
// failure never aborts the rest.
func (d *BroadcastDispatcher) Dispatch(ctx context.Context, n Notification) []DeliveryResult {
	tpl, ok := d.Templates.Template(n.GroupID, n.Kind)
	if !ok || tpl.Text == "" {
		log.Printf("⚠️ [BROADCAST] no %s template for group %d, skipping", n.Kind, n.GroupID)
		return nil
	}
	text := utils.RenderTemplate(tpl.Text, n.Payload)

	results := make([]DeliveryResult, len(n.Targets))
	for start := 0; start < len(n.Targets); start += d.Window {
		end := start + d.Window
		if end > len(n.Targets) {
			end = len(n.Targets)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.sendOne(ctx, n.Targets[i], text, tpl)
			}(i)
		}
		wg.Wait()

		if end < len(n.Targets) {
			select {
			case <-ctx.Done():
				for i := end; i < len(n.Targets); i++ {
					results[i] = DeliveryResult{ChatID: n.Targets[i], Error: "cancelled"}
				}
				return results
			case <-time.After(d.BatchDelay):
			}
		}
	}

	sent := 0
	for _, r := range results {
		if r.OK {
			sent++
		}
	}
	log.Printf("📣 [BROADCAST] %s delivered to %d/%d target(s)", n.Kind, sent, len(n.Targets))
	return results
}

func (d *BroadcastDispatcher) sendOne(ctx context.Context, chatID int64, text string, tpl models.BroadcastTemplate) DeliveryResult {
	sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	defer cancel()

	messageID, err := d.Client.SendMessage(sendCtx, chatID, text)
	if err != nil {
		log.Printf("❌ [BROADCAST] send to chat %d failed: %v", chatID, err)
		return DeliveryResult{ChatID: chatID, Error: err.Error()}
	}

	if tpl.Pin {
		d.pinWithUnpin(sendCtx, chatID, messageID, tpl)
	}
	return DeliveryResult{ChatID: chatID, OK: true, MessageID: messageID}
}

// pinWithUnpin pins the delivered message and schedules a one-shot unpin.
// Both halves are best-effort: failures are logged and swallowed.
func (d *BroadcastDispatcher) pinWithUnpin(ctx context.Context, chatID, messageID int64, tpl models.BroadcastTemplate) {
	if err := d.Client.PinMessage(ctx, chatID, messageID); err != nil {
		log.Printf("⚠️ [BROADCAST] pin in chat %d failed: %v", chatID, err)
		return
	}

	delay := d.UnpinAfter
	if tpl.UnpinAfterS > 0 {
		delay = time.Duration(tpl.UnpinAfterS) * time.Second
	}

	_, err := d.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(func() {
			unpinCtx, cancel := context.WithTimeout(context.Background(), d.SendTimeout)
			defer cancel()
			if err := d.Client.UnpinMessage(unpinCtx, chatID, messageID); err != nil {
				log.Printf("⚠️ [BROADCAST] unpin in chat %d failed: %v", chatID, err)
			}
		}),
	)
	if err != nil {
		log.Printf("⚠️ [BROADCAST] failed to schedule unpin for chat %d: %v", chatID, err)
	}
}
