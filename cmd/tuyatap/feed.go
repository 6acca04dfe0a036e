package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
	"github.com/muurk/tuyatap/internal/tap"
)

// replayMaxGap clamps idle stretches during paced replay so a capture with a
// quiet hour in the middle does not stall the view for a quiet hour.
const replayMaxGap = 2 * time.Second

// portConfigs builds one tap config per flagged direction.
func portConfigs() ([]tap.Config, error) {
	if modulePort == "" && mcuPort == "" {
		return nil, fmt.Errorf("at least one of --module-port or --mcu-port is required")
	}
	var cfgs []tap.Config
	if modulePort != "" {
		cfgs = append(cfgs, tap.Config{Port: modulePort, Baud: baudRate, Direction: protocol.DirModule})
	}
	if mcuPort != "" {
		cfgs = append(cfgs, tap.Config{Port: mcuPort, Baud: baudRate, Direction: protocol.DirMCU})
	}
	return cfgs, nil
}

// openTaps opens every configured line, closing the ones already open when a
// later one fails. Opening before any long-running work starts means a wrong
// port name fails the command immediately.
func openTaps(cfgs []tap.Config) ([]*tap.Tap, error) {
	taps := make([]*tap.Tap, 0, len(cfgs))
	for _, cfg := range cfgs {
		t, err := tap.Open(cfg)
		if err != nil {
			for _, open := range taps {
				open.Close()
			}
			return nil, err
		}
		taps = append(taps, t)
	}
	return taps, nil
}

// runTaps reads every open tap until ctx is cancelled. Each raw read goes to
// chunk (when not nil) and through a per-direction pipeline whose decoded
// events go to event (when not nil). The first port error cancels the
// remaining taps. All taps are closed on return.
func runTaps(ctx context.Context, taps []*tap.Tap, chunk capture.Sink, event func(protocol.Event)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(taps))
	for _, t := range taps {
		pipe := protocol.NewPipeline(t.Direction())
		wg.Add(1)
		go func(t *tap.Tap, pipe *protocol.Pipeline) {
			defer wg.Done()
			dir := t.Direction()
			err := t.Run(ctx, func(ts time.Time, data []byte) {
				if chunk != nil {
					chunk(dir, ts, data)
				}
				if event == nil {
					return
				}
				for _, ev := range pipe.Feed(ts, data) {
					event(ev)
				}
			})
			if err != nil {
				errs <- err
				cancel()
			}
		}(t, pipe)
	}
	wg.Wait()

	for _, t := range taps {
		t.Close()
	}
	close(errs)
	return <-errs
}

// replayFeed decodes a recorded session in file order and hands every decoded
// event to emit. With paced set, chunk delivery sleeps to match the recorded
// gaps, clamped at replayMaxGap.
func replayFeed(ctx context.Context, session *capture.Session, paced bool, emit func(protocol.Event)) (skipped int, err error) {
	pipes := map[protocol.Direction]*protocol.Pipeline{
		protocol.DirModule: protocol.NewPipeline(protocol.DirModule),
		protocol.DirMCU:    protocol.NewPipeline(protocol.DirMCU),
	}
	r := capture.NewReplayer(session)
	if paced {
		r = r.WithPacing(replayMaxGap)
	}
	return r.Replay(ctx, func(dir protocol.Direction, t time.Time, data []byte) {
		for _, ev := range pipes[dir].Feed(t, data) {
			emit(ev)
		}
	})
}

// loadProfile loads the profile named by --profile, or the default profile
// location when the flag is unset. A missing default file just means no
// annotations; a missing --profile file is an error.
func loadProfile() (*profile.Profile, error) {
	if profilePath != "" {
		return profile.Load(profilePath)
	}
	return profile.LoadDefault()
}
