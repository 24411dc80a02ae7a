package sim

import (
	"fmt"

	"github.com/marcus/hivemind/internal/world"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig controls room generation.
type GenConfig struct {
	Seed      int64
	Room      string
	SpawnName string
	Sources   int // number of sources, default 2
}

const (
	roomCenter       = 25
	edgeMargin       = 3
	minSourceGap     = 10
	minSpawnGap      = 6
	noiseFrequency   = 0.08
	noiseOctaves     = 3
	noisePersistence = 0.5
)

// Generate builds a single starter room. Source and controller sites are
// picked from the peaks and troughs of a noise field, so a seed always gives
// the same layout.
func Generate(cfg GenConfig) *World {
	if cfg.Room == "" {
		cfg.Room = "W1N1"
	}
	if cfg.SpawnName == "" {
		cfg.SpawnName = "Spawn1"
	}
	if cfg.Sources <= 0 {
		cfg.Sources = 2
	}

	noise := opensimplex.NewNormalized(cfg.Seed)
	field := make([][]float64, maxCoord+1)
	for x := range field {
		field[x] = make([]float64, maxCoord+1)
		for y := range field[x] {
			field[x][y] = octaveNoise(noise, float64(x), float64(y))
		}
	}

	w := New()
	room := cfg.Room
	spawnPos := world.NewPosition(roomCenter, roomCenter, room)
	w.AddSpawn(fmt.Sprintf("spawn-%s-0", room), cfg.SpawnName, spawnPos, SpawnEnergyCapacity)

	taken := []world.Position{spawnPos}
	farFrom := func(p world.Position, gap int) bool {
		for _, t := range taken {
			if t.RangeTo(p) < gap {
				return false
			}
		}
		return true
	}

	for i := 0; i < cfg.Sources; i++ {
		pos, ok := pick(field, room, func(a, b float64) bool { return a > b }, func(p world.Position) bool {
			return farFrom(p, minSourceGap) && p.RangeTo(spawnPos) >= minSpawnGap
		})
		if !ok {
			break
		}
		w.AddSource(fmt.Sprintf("source-%s-%d", room, i), pos, SourceEnergyCapacity)
		taken = append(taken, pos)

		if i == 0 {
			// container on the tile next to the first source, toward the spawn
			cpos := world.NewPosition(pos.X+sign(spawnPos.X-pos.X), pos.Y+sign(spawnPos.Y-pos.Y), room)
			w.AddStructure(fmt.Sprintf("container-%s-0", room), world.StructureContainer, cpos, 0, ContainerCapacity)
		}
	}

	ctlPos, ok := pick(field, room, func(a, b float64) bool { return a < b }, func(p world.Position) bool {
		return farFrom(p, minSpawnGap)
	})
	if !ok {
		ctlPos = world.NewPosition(edgeMargin, edgeMargin, room)
	}
	w.SetController(fmt.Sprintf("controller-%s", room), ctlPos, 1)

	w.log.Infof("generated room %s from seed %d", room, cfg.Seed)
	return w
}

// pick returns the tile whose noise value is best under better, among tiles
// away from the room edge that satisfy ok. Ties keep the first tile scanned.
func pick(field [][]float64, room string, better func(a, b float64) bool, ok func(world.Position) bool) (world.Position, bool) {
	var best world.Position
	found := false
	bestVal := 0.0
	for x := edgeMargin; x <= maxCoord-edgeMargin; x++ {
		for y := edgeMargin; y <= maxCoord-edgeMargin; y++ {
			p := world.NewPosition(x, y, room)
			if !ok(p) {
				continue
			}
			if !found || better(field[x][y], bestVal) {
				best, bestVal, found = p, field[x][y], true
			}
		}
	}
	return best, found
}

// octaveNoise layers several noise frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	frequency := noiseFrequency

	for i := 0; i < noiseOctaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= noisePersistence
		frequency *= 2
	}

	return total / maxVal
}
