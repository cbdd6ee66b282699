package notify

import (
	"context"
	"log/slog"
	"time"
)

// Tone is a short synthesized cue.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Volume    float64
}

// DefaultTone is the cue played for new notifications.
var DefaultTone = Tone{Frequency: 800, Duration: 300 * time.Millisecond, Volume: 0.3}

// TonePlayer plays tones.
type TonePlayer interface {
	Play(ctx context.Context, tone Tone) error
}

// SoundSink plays a tone for realtime events. Player failures, such as a
// missing audio permission, are logged and swallowed.
type SoundSink struct {
	Player TonePlayer
	Tone   Tone
}

// Name implements Sink.
func (SoundSink) Name() string { return "sound" }

// Deliver implements Sink.
func (s SoundSink) Deliver(ctx context.Context, ev Event) error {
	if s.Player == nil || !ev.Realtime {
		return nil
	}
	tone := s.Tone
	if tone == (Tone{}) {
		tone = DefaultTone
	}
	if err := s.Player.Play(ctx, tone); err != nil {
		slog.Debug("Notification sound unavailable", "notification_id", ev.Notification.ID, "error", err)
	}
	return nil
}
