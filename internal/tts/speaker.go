// Package tts is the boundary to speech synthesis. Engines are external
// programs; the core only asks them to speak a piece of text.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vtuber/internal/logging"
)

// SlowSpeech is the synthesis time above which a CommandSpeaker logs a warning.
const SlowSpeech = 10 * time.Second

// ErrEmptyText is returned when asked to speak blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Speaker turns text into audible speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// NopSpeaker accepts text and does nothing.
type NopSpeaker struct{}

func (NopSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return ctx.Err()
}

// CommandSpeaker runs Binary with Args followed by the text as the final
// argument, e.g. `edge-tts --voice th-TH-PremwadeeNeural --text`.
type CommandSpeaker struct {
	Binary  string
	Args    []string
	Timeout time.Duration // 0 means no limit beyond ctx
}

func (c CommandSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.Args...), text)
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	timer := logging.StartTimer(logging.CategoryTTS, "speak via "+c.Binary)
	logging.TTS("speaking %d chars via %s", len(text), c.Binary)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logging.TTSWarn("%s interrupted: %v", c.Binary, ctxErr)
			return fmt.Errorf("tts: %s interrupted: %w", c.Binary, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		logging.TTSWarn("%s exited: %v %s", c.Binary, err, msg)
		if msg != "" {
			return fmt.Errorf("tts: %s failed: %w: %s", c.Binary, err, msg)
		}
		return fmt.Errorf("tts: %s failed: %w", c.Binary, err)
	}
	timer.StopWithThreshold(SlowSpeech)
	return nil
}
