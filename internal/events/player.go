package events

import (
	"context"
	"errors"
)

// PlayRequest is the payload of an audio.play event.
type PlayRequest struct {
	AudioURL string `json:"audio_url"`
}

// AudioPlayer plays audio on a user's devices by publishing audio.play.
type AudioPlayer struct {
	pub    Publisher
	userID string
}

// NewAudioPlayer binds a publisher to one user.
func NewAudioPlayer(pub Publisher, userID string) *AudioPlayer {
	if pub == nil {
		pub = Noop{}
	}
	return &AudioPlayer{pub: pub, userID: userID}
}

// Play asks the user's devices to play ref.
func (a *AudioPlayer) Play(ctx context.Context, ref string) error {
	if ref == "" {
		return errors.New("empty audio reference")
	}
	return a.pub.Publish(ctx, a.userID, EventAudioPlay, PlayRequest{AudioURL: ref})
}
