package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"containerflow.ai/internal/sim/flow"
	"containerflow.ai/internal/sim/locator"
	"containerflow.ai/internal/sim/tuning"
)

// runtimeTuning holds the live tuning. Flow and locator values are read on
// every use, so a reload takes effect at the next tick.
type runtimeTuning struct {
	cur   atomic.Pointer[tuning.Tuning]
	level zap.AtomicLevel
}

func newRuntimeTuning(t tuning.Tuning, level zap.AtomicLevel) *runtimeTuning {
	rt := &runtimeTuning{level: level}
	rt.set(t)
	return rt
}

func (rt *runtimeTuning) set(t tuning.Tuning) {
	rt.cur.Store(&t)
	if t.Debug {
		rt.level.SetLevel(zapcore.DebugLevel)
	} else {
		rt.level.SetLevel(zapcore.InfoLevel)
	}
}

func (rt *runtimeTuning) FlowSettings() flow.Settings { return rt.cur.Load().FlowSettings() }

func (rt *runtimeTuning) LocatorDefaults() (locator.Options, int) {
	t := rt.cur.Load()
	return t.LocatorOptions(), t.Locator.Top
}

func (rt *runtimeTuning) reload(path string) (tuning.Tuning, error) {
	t, err := tuning.Load(path)
	if err != nil {
		return tuning.Tuning{}, err
	}
	rt.set(t)
	return t, nil
}

// watchReload reloads the tuning file on SIGHUP until ctx is done.
func (rt *runtimeTuning) watchReload(ctx context.Context, path string, logger *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			t, err := rt.reload(path)
			if err != nil {
				logger.Warn("tuning reload failed; keeping current values", zap.Error(err))
				continue
			}
			logger.Info("tuning reloaded",
				zap.Bool("enabled", t.Enabled),
				zap.Bool("debug", t.Debug),
				zap.Float64("collect_radius", t.Flow.CollectRadius),
				zap.Float64("interval_seconds", t.Flow.IntervalSeconds),
			)
		}
	}
}
