package ops

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/switchboard"
)

// Watch reloads the config at path whenever it changes and hands every
// successful load to update. Watching uses fsnotify on the parent directory,
// which survives editors that replace the file; when no watcher can be
// created it polls the modification time every interval. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(path))
		if err != nil {
			_ = watcher.Close()
		}
	}
	if err != nil {
		logs.Warnf("ops: fsnotify unavailable, polling %s every %s, err: %+v", path, interval, err)
		poll(ctx, path, interval, update)
		return
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	// Editors emit several events per save; the debounce collapses them.
	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logs.Warnf("ops: watch %s, err: %+v", path, err)
		case <-timer.C:
			reload(path, update)
		}
	}
}

func poll(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("ops: stat %s, err: %+v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			reload(path, update)
		}
	}
}

func reload(path string, update func(Loaded)) {
	loaded, err := Load(path)
	if err != nil {
		logs.Errorf("ops: reload %s, err: %+v", path, err)
		return
	}
	update(loaded)
	logs.Infof("ops: config reloaded: %s, risk version %d", path, loaded.Risk.Version)
}

// RiskUpdater returns an update func that queues reloaded risk limits for
// the risk engine endpoint, so they are applied on the engine goroutine.
func RiskUpdater(queue *bus.Queue) func(Loaded) {
	return func(l Loaded) {
		err := queue.TryPublish(bus.Envelope{Endpoint: switchboard.EndpointRiskEngine, Msg: l.Risk})
		if err != nil {
			logs.Warnf("ops: risk config version %d not queued, err: %+v", l.Risk.Version, err)
		}
	}
}
