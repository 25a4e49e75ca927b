package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"containerflow.ai/internal/persistence/agentdb"
	"containerflow.ai/internal/persistence/snapshot"
)

func writeSnapshot(worldDir string, snap snapshot.SnapshotV1, store *agentdb.Store, logger *zap.Logger) {
	path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Warn("snapshot write", zap.Error(err))
		return
	}
	containers := 0
	for _, e := range snap.Entities {
		if e.Inventory != nil {
			containers++
		}
	}
	if store != nil {
		store.RecordSnapshot(agentdb.SnapshotRow{
			Tick:       snap.Header.Tick,
			Path:       path,
			Digest:     snap.Header.Digest,
			Entities:   len(snap.Entities),
			Containers: containers,
		})
	}
	logger.Info("snapshot written", zap.String("path", path), zap.Int("entities", len(snap.Entities)))
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
