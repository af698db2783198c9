package engine

import (
	"math"
	"math/rand"

	"github.com/google/uuid"
)

const (
	InitialZombieCount  = 15
	ZombieCountStep     = 5
	DefaultZombieCap    = 45
	DefaultSharedHealth = 3

	GroundOffset     = 0.0
	MinSpawnDistance = 1.5
	MaxSpawnDistance = 2.0
	MinZombieHealth  = 1
	MaxZombieHealth  = 3
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ZombieSeed holds the spawn parameters of one zombie. Angle is in degrees.
type ZombieSeed struct {
	ID       string   `json:"id"`
	Angle    float64  `json:"angle"`
	Distance float64  `json:"distance"`
	Position Position `json:"position"`
	Health   int      `json:"health"`
}

type Wave struct {
	Number       int                   `json:"waveNumber"`
	Zombies      map[string]ZombieSeed `json:"zombies"`
	SharedHealth int                   `json:"sharedHealth"`
}

func (w Wave) Clone() Wave {
	out := w
	out.Zombies = make(map[string]ZombieSeed, len(w.Zombies))
	for id, z := range w.Zombies {
		out.Zombies[id] = z
	}
	return out
}

func (w Wave) Cleared() bool { return len(w.Zombies) == 0 }

func (w Wave) GameOver() bool { return w.SharedHealth <= 0 }

// ApplyKills removes every listed zombie from a copy of w. Unknown and
// repeated ids are ignored, so reports can arrive in any order any number of
// times.
func ApplyKills(w Wave, ids []string) Wave {
	out := w.Clone()
	for _, id := range ids {
		delete(out.Zombies, id)
	}
	return out
}

type WaveRules struct {
	InitialCount int
	Step         int
	Cap          int
	SharedHealth int
}

func DefaultWaveRules() WaveRules {
	return WaveRules{
		InitialCount: InitialZombieCount,
		Step:         ZombieCountStep,
		Cap:          DefaultZombieCap,
		SharedHealth: DefaultSharedHealth,
	}
}

// Size is the zombie count generated after wave n is cleared.
func (r WaveRules) Size(n int) int {
	if n < 1 {
		n = 1
	}
	return min(r.Cap, r.InitialCount+(n-1)*r.Step)
}

// Spawner generates waves from a private rng. It is not safe for concurrent
// use; each session owns one.
type Spawner struct {
	rng   *rand.Rand
	rules WaveRules
}

func NewSpawner(rng *rand.Rand, rules WaveRules) *Spawner {
	return &Spawner{rng: rng, rules: rules}
}

func (sp *Spawner) Rules() WaveRules { return sp.rules }

func (sp *Spawner) Seed() ZombieSeed {
	angle := sp.rng.Float64() * 360
	dist := MinSpawnDistance + sp.rng.Float64()*(MaxSpawnDistance-MinSpawnDistance)
	rad := angle * math.Pi / 180
	return ZombieSeed{
		ID:       uuid.Must(uuid.NewRandomFromReader(sp.rng)).String(),
		Angle:    angle,
		Distance: dist,
		Position: Position{
			X: dist * math.Cos(rad),
			Y: GroundOffset,
			Z: dist * math.Sin(rad),
		},
		Health: MinZombieHealth + sp.rng.Intn(MaxZombieHealth-MinZombieHealth+1),
	}
}

func (sp *Spawner) generate(number, count, health int) Wave {
	w := Wave{Number: number, Zombies: make(map[string]ZombieSeed, count), SharedHealth: health}
	for len(w.Zombies) < count {
		z := sp.Seed()
		w.Zombies[z.ID] = z
	}
	return w
}

// Initial returns wave 1 at full shared health.
func (sp *Spawner) Initial() Wave {
	return sp.generate(1, sp.rules.InitialCount, sp.rules.SharedHealth)
}

// Next decides whether current can be replaced. While zombies remain the
// current wave comes back whatever was requested. Once cleared the stored
// wave number is authoritative: a request for an older wave gets the current
// one back and a request for a future wave is rejected. advanced is true only
// when a new wave was generated.
func (sp *Spawner) Next(current Wave, requested int) (next Wave, advanced bool, err error) {
	if !current.Cleared() || requested < current.Number {
		return current, false, nil
	}
	if requested > current.Number {
		return current, false, ErrStaleWave
	}
	n := current.Number
	return sp.generate(n+1, sp.rules.Size(n), current.SharedHealth), true, nil
}
