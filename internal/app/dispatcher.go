package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/correlation"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/logging"
)

const (
	defaultLaneBuffer   = 64
	defaultEventTimeout = 30 * time.Second
	moderationTimeout   = 10 * time.Second

	globalLane = ""
)

var whisperJoinPattern = regexp.MustCompile(`(?im)^join channel (\S*)$`)

// Handler handles one event kind.
type Handler func(ctx context.Context, event domain.Event) error

type DispatcherConfig struct {
	HomeChannel         string
	WhisperAllowList    []string
	TTSRewardID         string
	TTSPlaceholderToken string
	TTSVoice            string
	Instructions        Instructions
	LaneBuffer          int
	EventTimeout        time.Duration
}

// DispatcherDeps are the collaborators of a Dispatcher. Moderation and
// Audio may be nil.
type DispatcherDeps struct {
	Transport   domain.ChatTransport
	Policy      *Policy
	Router      *CommandRouter
	Completions domain.CompletionClient
	Moderation  domain.ModerationClient
	Audio       domain.AudioService
	Notifier    *Notifier
	Channels    *JoinedChannels
	Recorder    Recorder
}

// Dispatcher routes events from the event sources to their handlers.
// Events of one channel are handled in arrival order, channels run
// concurrently. No handler error or panic reaches the event source.
type Dispatcher struct {
	cfg       DispatcherConfig
	deps      DispatcherDeps
	allowList map[string]struct{}
	handlers  map[domain.EventKind]Handler

	joins singleflight.Group

	rejoinMu sync.Mutex
	rejoin   []string

	inbox      chan domain.Event
	background sync.WaitGroup

	// shutdown is cancelled when Run stops and cuts off background work.
	shutdown context.Context
	stop     context.CancelFunc
}

func NewDispatcher(cfg DispatcherConfig, deps DispatcherDeps) *Dispatcher {
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = defaultLaneBuffer
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultEventTimeout
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	if deps.Channels == nil {
		deps.Channels = NewJoinedChannels()
	}

	allow := make(map[string]struct{}, len(cfg.WhisperAllowList))
	for _, name := range cfg.WhisperAllowList {
		allow[strings.ToLower(name)] = struct{}{}
	}

	d := &Dispatcher{
		cfg:       cfg,
		deps:      deps,
		allowList: allow,
		inbox:     make(chan domain.Event, cfg.LaneBuffer*4),
	}
	d.shutdown, d.stop = context.WithCancel(context.Background())
	d.handlers = map[domain.EventKind]Handler{
		domain.KindChatMessage:      handle(d.onChatMessage),
		domain.KindWhisper:          handle(d.onWhisper),
		domain.KindFollow:           handle(d.onFollow),
		domain.KindSubscribe:        handle(d.onSubscribe),
		domain.KindResubscribe:      handle(d.onResubscribe),
		domain.KindVIPAdd:           handle(d.onVIPAdd),
		domain.KindAdBreak:          handle(d.onAdBreak),
		domain.KindRewardRedemption: handle(d.onRewardRedemption),
		domain.KindStreamOnline:     handle(d.onStreamOnline),
		domain.KindStreamOffline:    handle(d.onStreamOffline),
		domain.KindConnected:        handle(d.onConnected),
		domain.KindDisconnected:     handle(d.onDisconnected),
		domain.KindJoined:           handle(d.onJoined),
	}
	return d
}

func handle[E domain.Event](fn func(context.Context, E) error) Handler {
	return func(ctx context.Context, event domain.Event) error {
		e, ok := event.(E)
		if !ok {
			var want E
			return fmt.Errorf("%w: handler for %T got %T", domain.ErrInvalidEvent, want, event)
		}
		return fn(ctx, e)
	}
}

// Dispatch handles one event synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) {
	kind := event.Kind()
	ctx = correlation.ForEvent(ctx, string(kind))
	d.deps.Recorder.EventReceived(kind)

	h, ok := d.handlers[kind]
	if !ok {
		slog.DebugContext(ctx, "No handler registered")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.deps.Recorder.EventFailed(kind)
			slog.ErrorContext(ctx, "Event handler panicked", "panic", r)
		}
	}()

	if err := h(ctx, event); err != nil {
		d.deps.Recorder.EventFailed(kind)
		slog.ErrorContext(ctx, "Event handling failed", "channel", domain.ChannelOf(event), "error", err)
	}
}

// Enqueue hands an event to Run. It never blocks; when the inbox is full
// the event is dropped.
func (d *Dispatcher) Enqueue(event domain.Event) {
	select {
	case d.inbox <- event:
	default:
		d.deps.Recorder.EventDropped(event.Kind())
		slog.Warn("Dispatcher inbox full, dropping event", "kind", event.Kind())
	}
}

// Run distributes enqueued events onto per-channel lanes until ctx is
// cancelled, then waits for in-flight handlers. Cancelling ctx also
// cancels the handlers and background moderation.
func (d *Dispatcher) Run(ctx context.Context) {
	lanes := make(map[string]chan domain.Event)
	var workers sync.WaitGroup

	defer func() {
		d.stop()
		workers.Wait()
		d.background.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.inbox:
			key := strings.ToLower(domain.ChannelOf(event))
			lane, ok := lanes[key]
			if !ok {
				lane = make(chan domain.Event, d.cfg.LaneBuffer)
				lanes[key] = lane
				workers.Go(func() { d.runLane(ctx, key, lane) })
			}
			select {
			case lane <- event:
			default:
				d.deps.Recorder.EventDropped(event.Kind())
				slog.Warn("Lane full, dropping event", "lane", key, "kind", event.Kind())
			}
		}
	}
}

func (d *Dispatcher) runLane(ctx context.Context, key string, lane <-chan domain.Event) {
	slog.Debug("Lane started", "lane", key)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-lane:
			eventCtx, cancel := context.WithTimeout(ctx, d.cfg.EventTimeout)
			d.Dispatch(eventCtx, event)
			cancel()
		}
	}
}

// Wait blocks until fire-and-forget work such as moderation has finished.
func (d *Dispatcher) Wait() {
	d.background.Wait()
}

func (d *Dispatcher) Channels() *JoinedChannels { return d.deps.Channels }

// ensureJoined reports whether the bot already receives the channel's
// chat. If it does not, it joins and reports false.
func (d *Dispatcher) ensureJoined(ctx context.Context, channel string) (bool, error) {
	if d.deps.Channels.Contains(channel) {
		return true, nil
	}

	key := strings.ToLower(channel)
	_, err, shared := d.joins.Do(key, func() (any, error) {
		if err := d.deps.Transport.JoinChannel(ctx, key); err != nil {
			return nil, err
		}
		d.deps.Channels.Add(key)
		return nil, nil
	})
	if err != nil {
		return false, fmt.Errorf("join %s: %w", channel, err)
	}
	if !shared {
		slog.InfoContext(ctx, "Joined channel", "channel", key)
	}
	return false, nil
}

func (d *Dispatcher) onChatMessage(ctx context.Context, e domain.ChatEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	joined, err := d.ensureJoined(ctx, e.Channel)
	if err != nil || !joined {
		return err
	}

	// Commands are neither moderated nor remembered.
	handled, err := d.deps.Router.Route(ctx, e)
	if handled {
		d.deps.Recorder.Decision(domain.DecisionCommandHandled)
		return err
	}

	d.moderate(ctx, e)

	decision := d.deps.Policy.Decide(ctx, e)
	d.deps.Recorder.Decision(decision.Kind)
	slog.DebugContext(ctx, "Chat message decided", "channel", e.Channel, "user", e.Username, "decision", decision.Kind)

	switch decision.Kind {
	case domain.DecisionDirectReply:
		text, err := d.deps.Completions.GetCompletion(ctx, decision.Prompt)
		if err != nil {
			return fmt.Errorf("direct reply in %s: %w", e.Channel, err)
		}
		return d.deps.Notifier.Reply(ctx, e.Channel, e.MessageID, text)
	case domain.DecisionHistoryAwareReply:
		text, err := d.deps.Completions.GetAwareCompletion(ctx, decision.History)
		if err != nil {
			return fmt.Errorf("history reply in %s: %w", e.Channel, err)
		}
		return d.deps.Notifier.Say(ctx, e.Channel, text)
	default:
		return nil
	}
}

func (d *Dispatcher) moderate(ctx context.Context, e domain.ChatEvent) {
	if d.deps.Moderation == nil || strings.TrimSpace(e.Text) == "" {
		return
	}

	d.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), moderationTimeout)
		defer cancel()
		defer context.AfterFunc(d.shutdown, cancel)()

		logger := logging.Moderation()
		result, err := d.deps.Moderation.Classify(ctx, e.Text)
		if err != nil {
			logger.WarnContext(ctx, "Moderation failed", "channel", e.Channel, "user", e.Username, "error", err)
			return
		}
		logger.InfoContext(ctx, "Message classified",
			slog.Group("moderation",
				"channel", e.Channel,
				"user", e.Username,
				"flagged", result.Flagged,
				"categories", result.Categories,
			),
		)
	})
}

func (d *Dispatcher) onWhisper(ctx context.Context, e domain.WhisperEvent) error {
	if _, ok := d.allowList[strings.ToLower(e.Username)]; !ok {
		slog.InfoContext(ctx, "Ignoring whisper", "user", e.Username)
		return nil
	}

	if m := whisperJoinPattern.FindStringSubmatch(e.Text); m != nil {
		if m[1] == "" {
			return nil
		}
		_, err := d.ensureJoined(ctx, m[1])
		return err
	}

	text, err := d.deps.Completions.GetCompletion(ctx, e.Text)
	if err != nil {
		return fmt.Errorf("whisper from %s: %w", e.Username, err)
	}
	return d.deps.Notifier.Say(ctx, d.cfg.HomeChannel, text)
}

func (d *Dispatcher) onFollow(ctx context.Context, e domain.FollowEvent) error {
	return d.instruct(ctx, e.Channel, d.cfg.Instructions.Follow(e.Username))
}

func (d *Dispatcher) onSubscribe(ctx context.Context, e domain.SubscribeEvent) error {
	return d.instruct(ctx, e.Channel, d.cfg.Instructions.Subscribe(e.Username))
}

func (d *Dispatcher) onResubscribe(ctx context.Context, e domain.ResubscribeEvent) error {
	return d.instruct(ctx, e.Channel, d.cfg.Instructions.Resubscribe(e.Username, e.CumulativeMonths))
}

func (d *Dispatcher) onVIPAdd(ctx context.Context, e domain.VIPAddEvent) error {
	return d.instruct(ctx, e.Channel, d.cfg.Instructions.VIPAdd(e.Username))
}

func (d *Dispatcher) onAdBreak(ctx context.Context, e domain.AdBreakEvent) error {
	return d.instruct(ctx, e.Channel, d.cfg.Instructions.AdBreak(e.DurationSeconds))
}

// instruct turns an instruction into a completion announced in channel.
func (d *Dispatcher) instruct(ctx context.Context, channel, instruction string) error {
	if _, err := d.ensureJoined(ctx, channel); err != nil {
		return err
	}
	text, err := d.deps.Completions.GetCompletion(ctx, instruction)
	if err != nil {
		return fmt.Errorf("instruction for %s: %w", channel, err)
	}
	d.deps.Notifier.Announce(ctx, channel, text)
	return nil
}

func (d *Dispatcher) onRewardRedemption(ctx context.Context, e domain.RewardRedemptionEvent) error {
	if _, err := d.ensureJoined(ctx, e.Channel); err != nil {
		return err
	}
	if e.RewardID != d.cfg.TTSRewardID {
		slog.DebugContext(ctx, "Ignoring reward redemption", "reward", e.RewardTitle, "reward_id", e.RewardID)
		return nil
	}

	text := e.UserInput
	if d.cfg.TTSPlaceholderToken != "" {
		text = strings.ReplaceAll(text, d.cfg.TTSPlaceholderToken, "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if d.deps.Audio == nil {
		slog.WarnContext(ctx, "Text to speech redeemed without audio service", "user", e.Username)
		return nil
	}
	return d.deps.Audio.Speak(ctx, text, d.cfg.TTSVoice)
}

func (d *Dispatcher) onStreamOnline(ctx context.Context, e domain.StreamOnlineEvent) error {
	slog.InfoContext(ctx, "Stream online", "channel", e.Channel, "type", e.Type, "started_at", e.StartedAt)
	return nil
}

func (d *Dispatcher) onStreamOffline(ctx context.Context, e domain.StreamOfflineEvent) error {
	slog.InfoContext(ctx, "Stream offline", "channel", e.Channel)
	return nil
}

func (d *Dispatcher) onConnected(ctx context.Context, _ domain.ConnectedEvent) error {
	d.rejoinMu.Lock()
	channels := append([]string{d.cfg.HomeChannel}, d.rejoin...)
	d.rejoin = nil
	d.rejoinMu.Unlock()

	var errs []error
	seen := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		if _, err := d.ensureJoined(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) onDisconnected(ctx context.Context, e domain.DisconnectedEvent) error {
	lost := d.deps.Channels.Reset()

	d.rejoinMu.Lock()
	d.rejoin = append(d.rejoin, lost...)
	d.rejoinMu.Unlock()

	slog.WarnContext(ctx, "Chat session lost", "reason", e.Reason, "channels", lost)
	return nil
}

func (d *Dispatcher) onJoined(_ context.Context, e domain.JoinedEvent) error {
	d.deps.Channels.Add(e.Channel)
	return nil
}
