package world

import "fmt"

// farAway is the range reported between positions in different rooms.
const farAway = 1 << 16

// Position is a tile in a named room.
type Position struct {
	X        int    `json:"x" yaml:"x"`
	Y        int    `json:"y" yaml:"y"`
	RoomName string `json:"roomName" yaml:"room"`
}

// NewPosition returns a Position.
func NewPosition(x, y int, room string) Position {
	return Position{X: x, Y: y, RoomName: room}
}

// RangeTo returns the tile range (Chebyshev distance) to o.
func (p Position) RangeTo(o Position) int {
	if p.RoomName != o.RoomName {
		return farAway
	}
	return max(abs(p.X-o.X), abs(p.Y-o.Y))
}

// InRangeTo reports whether o is within r tiles.
func (p Position) InRangeTo(o Position, r int) bool {
	return p.RangeTo(o) <= r
}

func (p Position) String() string {
	return fmt.Sprintf("[room %s pos %d,%d]", p.RoomName, p.X, p.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ClosestByRange returns the candidate nearest to from. Ties keep the earlier
// candidate. The second result is false when there are no candidates.
func ClosestByRange[T Object](from Position, candidates []T) (T, bool) {
	var best T
	bestRange := -1
	for _, c := range candidates {
		r := from.RangeTo(c.Pos())
		if bestRange < 0 || r < bestRange {
			best = c
			bestRange = r
		}
	}
	return best, bestRange >= 0
}

// EnergySinks returns the structures that accept energy deliveries: spawns,
// extensions, containers and storage with free capacity.
func EnergySinks(room Room) []Structure {
	if room == nil {
		return nil
	}
	var out []Structure
	for _, s := range room.Structures() {
		switch s.StructureType() {
		case StructureSpawn, StructureExtension, StructureContainer, StructureStorage:
			if s.Store().Free() > 0 {
				out = append(out, s)
			}
		}
	}
	return out
}

// Containers returns the containers and storage in a room that still have
// free capacity.
func Containers(room Room) []Structure {
	if room == nil {
		return nil
	}
	var out []Structure
	for _, s := range room.Structures() {
		switch s.StructureType() {
		case StructureContainer, StructureStorage:
			if s.Store().Free() > 0 {
				out = append(out, s)
			}
		}
	}
	return out
}
