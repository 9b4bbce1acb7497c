package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

type dispatcherFixture struct {
	d           *Dispatcher
	transport   *mockTransport
	completions *mockCompletions
	moderation  *mockModeration
	audio       *mockAudio
	clips       *mockClips
	recorder    *countingRecorder
	history     *HistoryBuffer
	clock       *clockwork.FakeClock
}

func newDispatcherFixture(t *testing.T, threshold float64, r float64) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		transport:   &mockTransport{},
		completions: &mockCompletions{},
		moderation:  &mockModeration{},
		audio:       &mockAudio{},
		clips:       &mockClips{},
		recorder:    newCountingRecorder(),
		clock:       clockwork.NewFakeClock(),
	}
	f.history = NewHistoryBuffer(5, 5*time.Minute, f.clock)
	notifier := NewNotifier(f.transport, f.recorder)
	policy := NewPolicy(f.history, PolicyConfig{
		BotUsername:              "banterbot",
		MentionResponseThreshold: threshold,
	}, fixedRand(r))

	f.d = NewDispatcher(DispatcherConfig{
		HomeChannel:         "andi",
		WhisperAllowList:    []string{"Andi"},
		TTSRewardID:         "tts-reward",
		TTSPlaceholderToken: "little2926",
		TTSVoice:            "nova",
		Instructions:        Instructions{DiscordJoinLink: "https://discord.gg/x"},
	}, DispatcherDeps{
		Transport:   f.transport,
		Policy:      policy,
		Router:      NewCommandRouter(f.clips, nil, f.completions, notifier),
		Completions: f.completions,
		Moderation:  f.moderation,
		Audio:       f.audio,
		Notifier:    notifier,
		Recorder:    f.recorder,
	})
	f.d.Channels().Add("andi")
	return f
}

func (f *dispatcherFixture) chat(user, text string) domain.ChatEvent {
	return domain.ChatEvent{Channel: "andi", Username: user, MessageID: "msg-1", Text: text, ReceivedAt: f.clock.Now()}
}

func TestDispatch_MentionRepliesInThread(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), f.chat("viewer", "hey banterbot, how are you?"))
	f.d.Wait()

	require.Len(t, f.transport.replies, 1)
	assert.Equal(t, sent{channel: "andi", parent: "msg-1", text: "completion: hey banterbot, how are you?"}, f.transport.replies[0])
	assert.Equal(t, []string{"hey banterbot, how are you?"}, f.moderation.texts)
	assert.Equal(t, 1, f.recorder.decisions[domain.DecisionDirectReply])
}

func TestDispatch_HistoryAwareSaysInChannel(t *testing.T) {
	f := newDispatcherFixture(t, 0.0, 0.5)
	var history []string
	f.completions.awareFn = func(_ context.Context, h []string) (string, error) {
		history = h
		return "banter", nil
	}

	f.d.Dispatch(context.Background(), f.chat("viewer", "what a play"))

	assert.Equal(t, []string{"what a play"}, history)
	assert.Equal(t, []sent{{channel: "andi", text: "banter"}}, f.transport.getMessages())
}

func TestDispatch_CapacityTwoScenario(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.history = NewHistoryBuffer(2, 5*time.Minute, f.clock)
	f.d.deps.Policy = NewPolicy(f.history, PolicyConfig{BotUsername: "banterbot", MentionResponseThreshold: 1.0}, fixedRand(0.5))

	for _, text := range []string{"A", "B", "C"} {
		f.d.Dispatch(context.Background(), f.chat("viewer", text))
	}

	assert.Equal(t, []string{"B", "C"}, f.history.DrainAll())
	assert.Empty(t, f.transport.getMessages())
}

func TestDispatch_ClipCommandBypassesPolicy(t *testing.T) {
	f := newDispatcherFixture(t, 0.0, 0.99)

	f.d.Dispatch(context.Background(), f.chat("viewer", "!clip"))
	f.d.Wait()

	assert.Equal(t, []string{"andi"}, f.clips.channels)
	assert.Equal(t, 0, f.history.Len(), "commands are not recorded")
	assert.Empty(t, f.moderation.texts, "commands are not moderated")
	assert.Empty(t, f.transport.getMessages())
	assert.Equal(t, 1, f.recorder.decisions[domain.DecisionCommandHandled])
}

func TestDispatch_UnjoinedChannelJoinsAndDrops(t *testing.T) {
	f := newDispatcherFixture(t, 0.0, 0.99)
	event := f.chat("viewer", "hello banterbot")
	event.Channel = "Friend"

	f.d.Dispatch(context.Background(), event)

	assert.Equal(t, []string{"friend"}, f.transport.getJoins())
	assert.True(t, f.d.Channels().Contains("FRIEND"))
	assert.Empty(t, f.transport.replies)
	assert.Equal(t, 0, f.history.Len())
}

func TestDispatch_CompletionFailureIsSilent(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.completions.completionFn = func(context.Context, string) (string, error) {
		return "", domain.ErrCompletion
	}

	f.d.Dispatch(context.Background(), f.chat("viewer", "banterbot?"))

	assert.Empty(t, f.transport.replies)
	assert.Equal(t, 1, f.recorder.failed[domain.KindChatMessage])
}

func TestDispatch_PanicIsContained(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.completions.completionFn = func(context.Context, string) (string, error) {
		panic("boom")
	}

	assert.NotPanics(t, func() {
		f.d.Dispatch(context.Background(), f.chat("viewer", "banterbot!"))
	})
	assert.Equal(t, 1, f.recorder.failed[domain.KindChatMessage])
}

func TestDispatch_InvalidChatEvent(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.ChatEvent{Channel: "andi"})

	assert.Equal(t, 1, f.recorder.failed[domain.KindChatMessage])
	assert.Empty(t, f.transport.getJoins())
}

func TestDispatch_WhisperFromStrangerIgnored(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.WhisperEvent{Username: "stranger", Text: "join channel evil"})
	f.d.Dispatch(context.Background(), domain.WhisperEvent{Username: "stranger", Text: "say hi"})

	assert.Empty(t, f.transport.getJoins())
	assert.Empty(t, f.transport.getMessages())
}

func TestDispatch_WhisperJoin(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.WhisperEvent{Username: "ANDI", Text: "Join Channel friend"})

	assert.Equal(t, []string{"friend"}, f.transport.getJoins())
	assert.True(t, f.d.Channels().Contains("friend"))
}

func TestDispatch_WhisperAnsweredInHomeChannel(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.WhisperEvent{Username: "andi", Text: "tell chat a joke"})

	assert.Equal(t, []sent{{channel: "andi", text: "completion: tell chat a joke"}}, f.transport.getMessages())
}

func TestDispatch_PlatformEventsAnnounce(t *testing.T) {
	tests := []struct {
		name   string
		event  domain.Event
		prompt string
	}{
		{"follow", domain.FollowEvent{Channel: "andi", Username: "newbie"},
			"Welcome newbie as a new follower! Post some hype in chat for the new follower!"},
		{"subscribe", domain.SubscribeEvent{Channel: "andi", Username: "sub"},
			"We got a new subscriber! Send love and thanks to sub!"},
		{"resubscribe", domain.ResubscribeEvent{Channel: "andi", Username: "loyal", CumulativeMonths: 12},
			"loyal resubscribed! They subscribed for a total of 12 months! Send love and cheers to loyal!"},
		{"vip", domain.VIPAddEvent{Channel: "andi", Username: "vip"},
			"Welcome vip as a VIP member! Give some cheers by writing a limerick about the new VIP!"},
		{"ad break", domain.AdBreakEvent{Channel: "andi", DurationSeconds: 90},
			"Tell the chat an AD started, it will be over in 90 seconds. Give chat a suggestion what to do in the meantime. If nothing else you can invite them to join our Discord server with this link https://discord.gg/x Remind the chat that they can use their Prime Sub to sub to the channel to avoid ads."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, 1.0, 0.5)

			f.d.Dispatch(context.Background(), tt.event)

			assert.Equal(t, []sent{{channel: "andi", text: "completion: " + tt.prompt}}, f.transport.getMessages())
		})
	}
}

func TestDispatch_StreamStatusIsQuiet(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.StreamOnlineEvent{Channel: "andi", Type: "live", StartedAt: f.clock.Now()})
	f.d.Dispatch(context.Background(), domain.StreamOfflineEvent{Channel: "andi"})

	assert.Empty(t, f.transport.getMessages())
	assert.Equal(t, 1, f.recorder.received[domain.KindStreamOnline])
	assert.Equal(t, 1, f.recorder.received[domain.KindStreamOffline])
	assert.Zero(t, f.recorder.failed[domain.KindStreamOnline])
}

func TestDispatch_AnnouncementFailureSwallowed(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.transport.sendFn = func(context.Context, string, string) error { return errors.New("rejected") }

	f.d.Dispatch(context.Background(), domain.FollowEvent{Channel: "andi", Username: "newbie"})

	assert.Equal(t, 0, f.recorder.failed[domain.KindFollow])
}

func TestDispatch_ConversationalFailureReported(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.transport.sendFn = func(context.Context, string, string) error { return errors.New("rejected") }

	f.d.Dispatch(context.Background(), f.chat("viewer", "banterbot hi"))

	assert.Equal(t, 1, f.recorder.failed[domain.KindChatMessage])
}

func TestDispatch_RewardRedemptionSpeaks(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.RewardRedemptionEvent{
		Channel: "andi", Username: "viewer", RewardID: "tts-reward", UserInput: "little2926 hello stream  ",
	})
	f.d.Dispatch(context.Background(), domain.RewardRedemptionEvent{
		Channel: "andi", Username: "viewer", RewardID: "hydrate", UserInput: "drink water",
	})

	assert.Equal(t, []sent{{channel: "nova", text: "hello stream"}}, f.audio.spoken)
}

func TestDispatch_RewardRedemptionJoinsChannelFirst(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	f.d.Dispatch(context.Background(), domain.RewardRedemptionEvent{
		Channel: "friend", Username: "viewer", RewardID: "tts-reward", UserInput: "hi friend",
	})

	assert.Equal(t, []string{"friend"}, f.transport.getJoins())
	assert.True(t, f.d.Channels().Contains("friend"))
	assert.Equal(t, []sent{{channel: "nova", text: "hi friend"}}, f.audio.spoken)
}

func TestDispatch_RewardRedemptionJoinFailureSkipsSpeech(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.transport.joinFn = func(context.Context, string) error { return errors.New("subscription rejected") }

	f.d.Dispatch(context.Background(), domain.RewardRedemptionEvent{
		Channel: "friend", Username: "viewer", RewardID: "tts-reward", UserInput: "hi friend",
	})

	assert.Empty(t, f.audio.spoken)
	assert.Equal(t, 1, f.recorder.failed[domain.KindRewardRedemption])
}

func TestDispatch_DisconnectThenReconnectRejoins(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.d.Channels().Add("friend")

	f.d.Dispatch(context.Background(), domain.DisconnectedEvent{Reason: "keepalive timeout"})
	assert.Empty(t, f.d.Channels().List())

	f.d.Dispatch(context.Background(), domain.ConnectedEvent{})
	assert.ElementsMatch(t, []string{"andi", "friend"}, f.transport.getJoins())
	assert.Equal(t, []string{"andi", "friend"}, f.d.Channels().List())
}

func TestDispatch_ConcurrentJoinsCollapse(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	var calls atomic.Int32
	release := make(chan struct{})
	f.transport.joinFn = func(context.Context, string) error {
		calls.Add(1)
		<-release
		return nil
	}

	done := make(chan struct{})
	for range 2 {
		go func() {
			f.d.Dispatch(context.Background(), domain.FollowEvent{Channel: "slow", Username: "x"})
			done <- struct{}{}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-done

	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_PreservesPerChannelOrder(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)
	f.d.Channels().Add("other")

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(stopped)
	}()

	for _, text := range []string{"1 banterbot", "2 banterbot", "3 banterbot"} {
		f.d.Enqueue(f.chat("viewer", text))
		f.d.Enqueue(domain.ChatEvent{Channel: "other", Username: "v", MessageID: "o", Text: "x banterbot"})
	}

	require.Eventually(t, func() bool {
		f.transport.mu.Lock()
		defer f.transport.mu.Unlock()
		return len(f.transport.replies) == 6
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	var andi []string
	for _, r := range f.transport.replies {
		if r.channel == "andi" {
			andi = append(andi, r.text)
		}
	}
	assert.Equal(t, []string{"completion: 1 banterbot", "completion: 2 banterbot", "completion: 3 banterbot"}, andi)
}

func TestRun_ShutdownCancelsInFlightWork(t *testing.T) {
	f := newDispatcherFixture(t, 1.0, 0.5)

	started := make(chan struct{}, 2)
	completionErr := make(chan error, 1)
	moderationErr := make(chan error, 1)
	f.completions.completionFn = func(ctx context.Context, _ string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		completionErr <- ctx.Err()
		return "", ctx.Err()
	}
	f.moderation.classifyFn = func(ctx context.Context, _ string) (domain.ModerationResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		moderationErr <- ctx.Err()
		return domain.ModerationResult{}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(stopped)
	}()

	f.d.Enqueue(f.chat("viewer", "banterbot are you there"))
	<-started
	<-started

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.ErrorIs(t, <-completionErr, context.Canceled)
	assert.ErrorIs(t, <-moderationErr, context.Canceled)
}
