package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/fingerprint"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/types"
	"github.com/fablekit/fable/internal/wav"
)

// ErrAudioUpToDate is returned in place of regeneration when the stored
// narration already matches the current text and voice.
var ErrAudioUpToDate = fmt.Errorf("narration already up to date")

// EnsureNarration generates the whole-book narration unless the stored
// artifact's fingerprint already covers the current text and voice. Pass
// force to regenerate regardless. The returned book reflects the final
// audio metadata.
func (o *Orchestrator) EnsureNarration(ctx context.Context, bookID, voiceName string, force bool) (*types.Book, error) {
	book, err := o.repo.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if len(book.Pages) == 0 {
		return nil, fmt.Errorf("book %s has no pages to narrate", bookID)
	}

	voice := types.NormalizeVoice(voiceName)
	hash := fingerprint.Audio(book, voice)

	if !force && book.Audio.Status == types.AudioReady && book.Audio.Hash == hash {
		slog.Debug("narration fingerprint matches, skipping", "book_id", bookID, "voice", voice)
		return book, ErrAudioUpToDate
	}

	if _, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.Audio.Status = types.AudioGenerating
		b.Audio.VoiceName = voice
		if b.Status == types.StatusGeneratingImages {
			b.Status = types.StatusGeneratingAudio
		}
		return nil
	}); err != nil {
		return nil, err
	}

	narration := BuildNarration(book)
	slog.Info("generating narration",
		"book_id", bookID, "voice", voice, "chars", len(narration))

	var speech *providers.SpeechResult
	err = o.speechPolicy.Do(ctx, "generate_narration", func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		var genErr error
		speech, genErr = o.gen.Speech.GenerateSpeech(ctx, &providers.SpeechRequest{
			Text:  narration,
			Voice: voice,
		})
		return genErr
	})
	if err != nil {
		return o.recordAudioFailure(ctx, bookID, err)
	}

	sampleRate := speech.SampleRate
	if sampleRate <= 0 {
		sampleRate = wav.DefaultSampleRate
	}
	wavData := wav.FromPCM(speech.PCM, sampleRate)
	durationSec := wav.DurationSec(len(speech.PCM), sampleRate)

	path := blobstore.NarrationPath(bookID)
	url, err := o.artifacts.Put(ctx, path, wavData, "audio/wav")
	if err != nil {
		return o.recordAudioFailure(ctx, bookID, fmt.Errorf("failed to store narration: %w", err))
	}

	now := time.Now().UTC()
	updated, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.Audio = types.AudioMetadata{
			Status:      types.AudioReady,
			VoiceName:   voice,
			Format:      "wav",
			DurationSec: durationSec,
			StoragePath: path,
			PublicURL:   url,
			GeneratedAt: &now,
			Hash:        hash,
		}
		if b.Status == types.StatusGeneratingAudio {
			b.Status = types.StatusPublished
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("narration ready",
		"book_id", bookID, "voice", voice, "duration_sec", durationSec)
	return updated, nil
}

// recordAudioFailure marks the narration failed and returns the original
// error. A book still inside the pipeline ends up failed; a published book
// being re-narrated keeps its status, only the audio metadata records the
// failure.
func (o *Orchestrator) recordAudioFailure(ctx context.Context, bookID string, cause error) (*types.Book, error) {
	book, updateErr := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.Audio.Status = types.AudioFailed
		b.Audio.ErrorMessage = cause.Error()
		b.Audio.RetryCount++
		if b.Status == types.StatusGeneratingAudio {
			b.Status = types.StatusFailed
		}
		return nil
	})
	if updateErr != nil {
		slog.Error("failed to record narration failure",
			"book_id", bookID, "error", updateErr, "cause", cause)
	}
	return book, cause
}
