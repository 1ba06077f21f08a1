package voice

import (
	"context"
	"errors"
	"strings"

	elevenlabs "github.com/agentplexus/go-elevenlabs"
	elevenvoice "github.com/agentplexus/go-elevenlabs/omnivoice/tts"
	deepgramstt "github.com/agentplexus/omnivoice-deepgram/omnivoice/stt"
	"github.com/agentplexus/omnivoice/pipeline"
	"github.com/agentplexus/omnivoice/transport"

	"voicebot/internal/config"
)

// Speaker turns text into call audio.
type Speaker interface {
	Speak(ctx context.Context, text string, conn transport.Connection) error
	Speaking() bool
	Interrupt()
}

// Listener turns call audio into final transcripts.
type Listener interface {
	Start(ctx context.Context, conn transport.Connection) error
	Stop()
}

type ListenerHooks struct {
	OnFinal       func(text string)
	OnSpeechStart func()
	OnError       func(error)
}

// SpeechFactory builds per-call speech pipelines.
type SpeechFactory interface {
	NewSpeaker(onError func(error)) Speaker
	NewListener(h ListenerHooks) Listener
}

// OmnivoiceSpeech uses ElevenLabs for synthesis and Deepgram for recognition,
// both in 8 kHz mu-law to match telephony audio.
type OmnivoiceSpeech struct {
	tts *elevenvoice.Provider
	stt *deepgramstt.Provider
	cfg config.SpeechConfig
}

func NewOmnivoiceSpeech(cfg config.SpeechConfig) (*OmnivoiceSpeech, error) {
	if cfg.ElevenLabsAPIKey == "" || cfg.DeepgramAPIKey == "" {
		return nil, errors.New("voice: ELEVENLABS_API_KEY and DEEPGRAM_API_KEY are required")
	}
	client, err := elevenlabs.NewClient(elevenlabs.WithAPIKey(cfg.ElevenLabsAPIKey))
	if err != nil {
		return nil, err
	}
	stt, err := deepgramstt.New(deepgramstt.WithAPIKey(cfg.DeepgramAPIKey))
	if err != nil {
		return nil, err
	}
	return &OmnivoiceSpeech{tts: elevenvoice.NewWithClient(client), stt: stt, cfg: cfg}, nil
}

func (s *OmnivoiceSpeech) NewSpeaker(onError func(error)) Speaker {
	return &ttsSpeaker{p: pipeline.NewTTSPipeline(s.tts, pipeline.TTSPipelineConfig{
		VoiceID:      s.cfg.VoiceID,
		OutputFormat: "ulaw",
		SampleRate:   8000,
		Model:        s.cfg.TTSModel,
		OnError:      onError,
	})}
}

func (s *OmnivoiceSpeech) NewListener(h ListenerHooks) Listener {
	return &sttListener{p: pipeline.NewSTTPipeline(s.stt, pipeline.STTPipelineConfig{
		Model:      s.cfg.STTModel,
		Language:   s.cfg.Language,
		Encoding:   "mulaw",
		SampleRate: 8000,
		Channels:   1,
		OnTranscript: func(text string, isFinal bool) {
			if !isFinal || h.OnFinal == nil {
				return
			}
			if text = strings.TrimSpace(text); text != "" {
				h.OnFinal(text)
			}
		},
		OnSpeechStart: func() {
			if h.OnSpeechStart != nil {
				h.OnSpeechStart()
			}
		},
		OnSpeechEnd: func() {},
		OnError: func(err error) {
			if h.OnError != nil {
				h.OnError(err)
			}
		},
	})}
}

type ttsSpeaker struct {
	p *pipeline.TTSPipeline
}

func (s *ttsSpeaker) Speak(ctx context.Context, text string, conn transport.Connection) error {
	return s.p.SynthesizeToConnection(ctx, text, conn)
}

func (s *ttsSpeaker) Speaking() bool { return s.p.IsActive() }

func (s *ttsSpeaker) Interrupt() { s.p.Stop() }

type sttListener struct {
	p *pipeline.STTPipeline
}

func (l *sttListener) Start(ctx context.Context, conn transport.Connection) error {
	return l.p.StartFromConnection(ctx, conn)
}

func (l *sttListener) Stop() { l.p.Stop() }
