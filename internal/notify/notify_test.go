package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/models"
)

// --- Mock Slack client ---

type mockSlack struct {
	mu       sync.Mutex
	channels []string
	options  [][]slackapi.MsgOption
	errs     []error // returned in order, then nil
}

func (m *mockSlack) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channelID)
	m.options = append(m.options, options)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	return channelID, "1234.5678", nil
}

func (m *mockSlack) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// --- Mock Discord session ---

type mockSession struct {
	mu   sync.Mutex
	sent []*discordgo.MessageSend
	errs []error
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID}, nil
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func sampleTask() models.Task {
	who := "sam"
	return models.Task{
		ID:          "t1",
		Title:       "Ship it",
		Description: "final checks",
		Status:      models.StatusTesting,
		Page:        models.PageTesting,
		AssignedTo:  &who,
	}
}

func TestFormat_Moved(t *testing.T) {
	m := format(TaskMovedEvent(sampleTask(), models.StatusInProgress, "alex"))
	if m.Title != "Moved: Ship it" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Color != statusColors[models.StatusTesting] {
		t.Errorf("color = %x", m.Color)
	}
	want := map[string]string{
		"From":        "in_progress",
		"To":          "testing",
		"Page":        "testing",
		"Assigned to": "sam",
		"By":          "alex",
	}
	if len(m.Fields) != len(want) {
		t.Fatalf("fields = %+v", m.Fields)
	}
	for _, f := range m.Fields {
		if want[f.Name] != f.Value {
			t.Errorf("field %s = %q, want %q", f.Name, f.Value, want[f.Name])
		}
	}
}

func TestFormat_Created(t *testing.T) {
	task := sampleTask()
	task.AssignedTo = nil
	m := format(TaskCreatedEvent(task, ""))
	if m.Title != "New task: Ship it" {
		t.Errorf("title = %q", m.Title)
	}
	for _, f := range m.Fields {
		if f.Name == "Assigned to" || f.Name == "By" {
			t.Errorf("unexpected field %s", f.Name)
		}
	}
}

func TestHexColor(t *testing.T) {
	if got := hexColor(0x1976D2); got != "#1976D2" {
		t.Errorf("hexColor = %q", got)
	}
	if got := hexColor(0); got != "#000000" {
		t.Errorf("hexColor(0) = %q", got)
	}
}

func TestNewSlack_RequiresTokenAndChannel(t *testing.T) {
	if _, err := NewSlack(SlackOpts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewSlack(SlackOpts{Token: "xoxb-1"}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestSlack_Notify(t *testing.T) {
	mock := &mockSlack{}
	s, err := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(context.Background(), TaskCreatedEvent(sampleTask(), "alex")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mock.calls() != 1 || mock.channels[0] != "C1" {
		t.Errorf("channels = %v", mock.channels)
	}
	if len(mock.options[0]) != 2 {
		t.Errorf("options = %d, want text and attachment", len(mock.options[0]))
	}
}

func TestSlack_RetriesRateLimit(t *testing.T) {
	mock := &mockSlack{errs: []error{
		&slackapi.RateLimitedError{RetryAfter: time.Millisecond},
		&slackapi.RateLimitedError{RetryAfter: time.Millisecond},
	}}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	if err := s.Notify(context.Background(), TaskCreatedEvent(sampleTask(), "")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mock.calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.calls())
	}
}

func TestSlack_GivesUpAfterMaxRetries(t *testing.T) {
	var errs []error
	for i := 0; i <= maxRetries; i++ {
		errs = append(errs, &slackapi.RateLimitedError{RetryAfter: time.Millisecond})
	}
	mock := &mockSlack{errs: errs}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	err := s.Notify(context.Background(), TaskCreatedEvent(sampleTask(), ""))
	var rle *slackapi.RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if mock.calls() != maxRetries+1 {
		t.Errorf("calls = %d, want %d", mock.calls(), maxRetries+1)
	}
}

func TestSlack_NonRateLimitNotRetried(t *testing.T) {
	mock := &mockSlack{errs: []error{errors.New("channel_not_found")}}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	err := s.Notify(context.Background(), TaskCreatedEvent(sampleTask(), ""))
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("err = %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.calls())
	}
}

func TestSlack_RetryHonorsContext(t *testing.T) {
	mock := &mockSlack{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Hour}}}
	s, _ := NewSlack(SlackOpts{ChannelID: "C1", Client: mock})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Notify(ctx, TaskCreatedEvent(sampleTask(), "")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDiscord_Notify(t *testing.T) {
	mock := &mockSession{}
	d, err := NewDiscord(DiscordOpts{ChannelID: "123", Session: mock})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Notify(context.Background(), TaskMovedEvent(sampleTask(), models.StatusNotStarted, "alex")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(mock.sent) != 1 || len(mock.sent[0].Embeds) != 1 {
		t.Fatalf("sent = %+v", mock.sent)
	}
	embed := mock.sent[0].Embeds[0]
	if embed.Title != "Moved: Ship it" || embed.Description != "final checks" {
		t.Errorf("embed = %+v", embed)
	}
	if embed.Color != statusColors[models.StatusTesting] {
		t.Errorf("color = %x", embed.Color)
	}
}

func TestDiscord_RetriesRateLimit(t *testing.T) {
	mock := &mockSession{errs: []error{rateLimited()}}
	d, _ := NewDiscord(DiscordOpts{ChannelID: "123", Session: mock})
	d.baseBackoff = time.Millisecond
	if err := d.Notify(context.Background(), TaskCreatedEvent(sampleTask(), "")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(mock.sent) != 2 {
		t.Errorf("sends = %d, want 2", len(mock.sent))
	}
}

func TestDiscord_OtherRESTErrorNotRetried(t *testing.T) {
	mock := &mockSession{errs: []error{
		&discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}},
	}}
	d, _ := NewDiscord(DiscordOpts{ChannelID: "123", Session: mock})
	d.baseBackoff = time.Millisecond
	if err := d.Notify(context.Background(), TaskCreatedEvent(sampleTask(), "")); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.sent) != 1 {
		t.Errorf("sends = %d, want 1", len(mock.sent))
	}
}

// recordingNotifier captures events and optionally fails.
type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestDispatcher_BestEffort(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}
	d := NewDispatcher(failing, nil, ok)
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}

	d.Publish(context.Background(), TaskCreatedEvent(sampleTask(), "alex"))
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Errorf("events failing=%d ok=%d, want 1 each", len(failing.events), len(ok.events))
	}
}

func TestDispatcher_NilAndEmpty(t *testing.T) {
	var d *Dispatcher
	d.Publish(context.Background(), Event{})
	NewDispatcher().Publish(context.Background(), Event{})
}

func TestFromConfig(t *testing.T) {
	d, err := FromConfig(config.NotifyConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}

	d, err = FromConfig(config.NotifyConfig{
		Slack:   config.ChatConfig{Token: "xoxb-test", Channel: "C1"},
		Discord: config.ChatConfig{Token: "discord-test", Channel: "123"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
}
