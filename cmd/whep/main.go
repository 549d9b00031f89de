// Command whep is a reference embedding of pkg/session.WHEPSession: it
// connects to a WHEP endpoint, drives the PLI scheduler on a fixed
// tick the way OBS's video_tick callback would, and logs decoded
// frame arrival. No decoder is wired in (decoding is host-supplied
// per spec), so OnVideoFrame/OnAudioFrame only fire if a decoder is
// injected before Update is called.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/config"
	"github.com/ethan/webrtc-whip-whep-core/pkg/decode"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
	"github.com/ethan/webrtc-whip-whep-core/pkg/pli"
	"github.com/ethan/webrtc-whip-whep-core/pkg/session"
)

const videoTickInterval = 33 * time.Millisecond

type stdoutHost struct {
	logger *logging.Logger
	done   chan struct{}
}

func (h *stdoutHost) SignalStop(reason netsig.StopReason) {
	h.logger.Info("stop signaled", map[string]any{"reason": reason.String()})
	close(h.done)
}

func main() {
	fs := flag.NewFlagSet("whep", flag.ExitOnError)
	envPath := fs.String("config", ".env", "path to .env style config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Subscribe to a WHEP endpoint and log decoded frame arrival.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := cfg.ToLoggingConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logging: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New("whep", logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("starting whep subscriber", map[string]any{"endpoint": cfg.Session.EndpointURL})

	h := &stdoutHost{logger: logger, done: make(chan struct{})}
	sess := session.NewWHEPSession(logger, h)
	sess.SetPLIScheduler(pli.NewScheduler(2*time.Second, func() {
		logger.Debug("requesting keyframe", nil)
	}))

	var videoFrames, audioFrames uint64
	sess.OnVideoFrame = func(f *decode.Frame) {
		videoFrames++
		if videoFrames%30 == 0 {
			logger.Debug("video frame decoded", map[string]any{
				"count": videoFrames, "width": f.Width, "height": f.Height, "pts_usec": f.PTSUsec,
			})
		}
	}
	sess.OnAudioFrame = func(f *decode.Frame) {
		audioFrames++
		if audioFrames%100 == 0 {
			logger.Debug("audio frame decoded", map[string]any{"count": audioFrames, "pts_usec": f.PTSUsec})
		}
	}

	sess.Update(cfg.Session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal", nil)
			cancel()
		case <-h.done:
		}
	}()

	ticker := time.NewTicker(videoTickInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			sess.VideoTick()
		}
	}

	sess.Destroy()
	logger.Info("shutdown complete", nil)
}
