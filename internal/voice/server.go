// Package voice runs live call sessions over the carrier media stream.
package voice

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agentplexus/omnivoice/transport"
	"github.com/gin-gonic/gin"

	"voicebot/internal/lifecycle"
	"voicebot/pkg/logger"
)

// WSPath is the media stream endpoint.
const WSPath = "/ws"

// MediaTransport accepts carrier media streams. *twiliotransport.Provider satisfies it.
type MediaTransport interface {
	Listen(ctx context.Context, addr string) (<-chan transport.Connection, error)
	HandleWebSocket(w http.ResponseWriter, r *http.Request, listenerPath string) error
}

// Slots caps concurrent live sessions across processes. utils.RedisSlots satisfies it.
type Slots interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// CallRecorder captures audio and uploads it at teardown.
type CallRecorder interface {
	AudioTap
	lifecycle.Recorder
}

// Store is what a session needs from the call record store.
type Store interface {
	lifecycle.Store
}

type Options struct {
	BotSpeaksFirst  bool
	AnalysisTimeout time.Duration

	// MaxGoodbyeWait bounds how long a closing line may play before hangup.
	MaxGoodbyeWait time.Duration
}

// Deps wires a Server. Slots, Claimer, Events and NewRecorder are optional.
type Deps struct {
	Transport   MediaTransport
	Speech      SpeechFactory
	Model       ChatModel
	Store       Store
	Analyzer    lifecycle.Analyzer
	Claimer     lifecycle.Claimer
	Events      lifecycle.Events
	Slots       Slots
	NewRecorder func() CallRecorder
}

type Server struct {
	deps Deps
	opts Options
	wg   sync.WaitGroup
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.MaxGoodbyeWait <= 0 {
		opts.MaxGoodbyeWait = 10 * time.Second
	}
	return &Server{deps: deps, opts: opts}
}

// Run accepts media streams until ctx is done, then waits for live sessions to finish teardown.
func (s *Server) Run(ctx context.Context) error {
	conns, err := s.deps.Transport.Listen(ctx, WSPath)
	if err != nil {
		return err
	}
	defer s.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case conn, ok := <-conns:
			if !ok {
				return nil
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(ctx, conn)
			}()
		}
	}
}

// HandleWS upgrades the carrier's websocket and hands it to Run.
func (s *Server) HandleWS(c *gin.Context) {
	if err := s.deps.Transport.HandleWebSocket(c.Writer, c.Request, WSPath); err != nil {
		logger.FromGin(c).Warn("media stream upgrade failed", "err", err)
	}
}
