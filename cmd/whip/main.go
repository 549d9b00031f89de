// Command whip is a reference embedding of pkg/session.WHIPSession: it
// reads a raw H.264 Annex-B elementary stream from disk, splits it at
// every 4-byte start code, and pushes each resulting NAL unit through
// the session at a fixed cadence, the way an OBS output would drive
// WriteVideoSample from its own encoder callback.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/config"
	"github.com/ethan/webrtc-whip-whep-core/pkg/host"
	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
	"github.com/ethan/webrtc-whip-whep-core/pkg/session"
)

type stdoutHost struct {
	logger *logging.Logger
	done   chan struct{}
}

func (h *stdoutHost) SignalStop(reason netsig.StopReason) {
	h.logger.Info("stop signaled", map[string]any{"reason": reason.String()})
	close(h.done)
}

func main() {
	fs := flag.NewFlagSet("whip", flag.ExitOnError)
	envPath := fs.String("config", ".env", "path to .env style config file")
	h264Path := fs.String("h264", "", "path to a raw Annex-B H.264 elementary stream to send")
	frameInterval := fs.Duration("frame-interval", 33*time.Millisecond, "interval between NAL units sent")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -h264 <file> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publish a raw H.264 Annex-B stream to a WHIP endpoint.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *h264Path == "" {
		fs.Usage()
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
	logger, err := logging.New("whip", logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("starting whip publisher", map[string]any{"endpoint": cfg.Session.EndpointURL})

	frames, err := readAnnexBFrames(*h264Path)
	if err != nil {
		logger.Error(err, "failed to read h264 stream", nil)
		os.Exit(1)
	}
	logger.Info("loaded nal units", map[string]any{"count": len(frames)})

	h := &stdoutHost{logger: logger, done: make(chan struct{})}
	sess := session.NewWHIPSession(logger, h)
	sess.Start(cfg.Session)

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

	ticker := time.NewTicker(*frameInterval)
	defer ticker.Stop()

	ptsUsec := int64(0)
	frameDurationUsec := frameInterval.Microseconds()
	for _, frame := range frames {
		select {
		case <-ctx.Done():
			goto shutdown
		case <-ticker.C:
		}
		if err := sess.WriteVideoSample(frame, ptsUsec); err != nil {
			logger.Warn("failed to write video sample", map[string]any{"error": err.Error()})
		}
		ptsUsec += frameDurationUsec
	}

	<-ctx.Done()

shutdown:
	sess.Stop(true)
	logger.Info("shutdown complete", nil)
}

// readAnnexBFrames splits a raw Annex-B elementary stream on 4-byte
// start code boundaries, so each returned chunk is one NAL unit (SPS,
// PPS and slices come out as separate chunks).
func readAnnexBFrames(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	startCode := []byte{0, 0, 0, 1}
	var frames [][]byte
	idx := bytes.Index(data, startCode)
	if idx < 0 {
		return nil, fmt.Errorf("no start code found in %s", path)
	}
	for idx >= 0 {
		next := bytes.Index(data[idx+len(startCode):], startCode)
		if next < 0 {
			frames = append(frames, data[idx:])
			break
		}
		next += idx + len(startCode)
		frames = append(frames, data[idx:next])
		idx = next
	}
	return frames, nil
}
