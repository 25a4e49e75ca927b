package world

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"containerflow.ai/internal/sim/flow"
)

// SpawnerConfig drops loose and minable entities around Center so a running
// server has something for agents to collect. Zero Every disables it.
type SpawnerConfig struct {
	Every         time.Duration
	Center        flow.Vec3
	Radius        float64
	LooseGroups   []string
	MinableGroups []string
	MaxLive       int
	Seed          int64
}

type spawner struct {
	cfg   SpawnerConfig
	timer time.Duration
	seq   uint64
	live  map[int64]struct{}
}

func newSpawner(cfg SpawnerConfig) *spawner {
	if cfg.Every <= 0 || len(cfg.LooseGroups)+len(cfg.MinableGroups) == 0 {
		return nil
	}
	if cfg.Radius <= 0 {
		cfg.Radius = 32
	}
	if cfg.MaxLive <= 0 {
		cfg.MaxLive = 64
	}
	return &spawner{cfg: cfg, live: map[int64]struct{}{}}
}

func (s *spawner) step(w *World, dt time.Duration) {
	if s == nil {
		return
	}
	s.timer += dt
	if s.timer < s.cfg.Every {
		return
	}
	s.timer = 0

	for id := range s.live {
		if _, ok := w.Entity(id); !ok {
			delete(s.live, id)
		}
	}
	if len(s.live) >= s.cfg.MaxLive {
		return
	}

	h := s.hash(w.tick.Load())
	spec := SpawnSpec{Pos: s.offset(h)}
	groups := len(s.cfg.LooseGroups) + len(s.cfg.MinableGroups)
	pick := int(h % uint64(groups))
	if pick < len(s.cfg.LooseGroups) {
		spec.Group = s.cfg.LooseGroups[pick]
		spec.Category = flow.CategoryLoose
	} else {
		spec.Group = s.cfg.MinableGroups[pick-len(s.cfg.LooseGroups)]
		spec.Category = flow.CategoryMinable
	}
	id, err := w.Spawn(spec)
	if err != nil {
		w.log.Warn("spawner", zap.Error(err))
		return
	}
	s.live[id] = struct{}{}
}

// hash is deterministic in (seed, tick, sequence) so replays spawn the same things.
func (s *spawner) hash(tick uint64) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(s.cfg.Seed))
	binary.LittleEndian.PutUint64(buf[8:], tick)
	binary.LittleEndian.PutUint64(buf[16:], s.seq)
	s.seq++
	return xxhash.Sum64(buf[:])
}

func (s *spawner) offset(h uint64) flow.Vec3 {
	r := s.cfg.Radius
	fx := float64((h>>8)&0xffff)/0xffff*2 - 1
	fz := float64((h>>24)&0xffff)/0xffff*2 - 1
	c := s.cfg.Center
	return flow.Vec3{X: c.X + fx*r, Y: c.Y, Z: c.Z + fz*r}
}
