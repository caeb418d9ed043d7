// Package world is the cell simulation driven by cmd/cellsdemo.
//
// Cells live in a slab. Each Step updates them in parallel, one chunk per
// pool worker; workers report divisions and deaths through a sharded event
// buffer, and the driver applies those structural changes serially once the
// parallel pass is over. Publish copies the live cells into the next free
// slot of a quintuple buffer for the render and stats systems.
package world

import (
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/psincf/Cells-sub001/buffer"
	"github.com/psincf/Cells-sub001/quintuple"
	"github.com/psincf/Cells-sub001/slab"
	"github.com/psincf/Cells-sub001/threadpool"
)

// Tuning constants for the simulation rules.
const (
	// DivideEnergy is the energy at which a cell splits in two.
	DivideEnergy = 1.0

	// gain is the energy a cell collects per second at full speed.
	gain = 0.35

	// decay is the energy a cell burns per second.
	decay = 0.2

	// jitter is the maximum velocity change per second.
	jitter = 40.0

	// maxSpeed caps cell velocity in world units per second.
	maxSpeed = 120.0
)

// Cell is one simulated cell.
type Cell struct {
	X, Y   float32
	VX, VY float32
	Energy float32
	Age    float32
	Color  color.RGBA
}

// Radius returns the drawn radius of the cell, derived from its energy.
func (c *Cell) Radius() float32 {
	return 1 + 3*float32(math.Sqrt(float64(max(c.Energy, 0))))
}

// EventKind is a structural change requested during a parallel pass.
type EventKind uint8

// Event kinds.
const (
	Divide EventKind = iota
	Die
)

// Event is a structural change for one cell.
type Event struct {
	Kind EventKind
	Key  slab.Key
}

// Snapshot is one published frame of the world.
//
// Cells aliases storage owned by a quintuple slot. It is valid only while
// the guard that produced the snapshot is held.
type Snapshot struct {
	Frame  uint64
	Width  float32
	Height float32
	Cells  []Cell

	Births int
	Deaths int
}

// Stats counts the structural changes applied by the last Step.
type Stats struct {
	Births int
	Deaths int
}

// World is the simulation state. It is driven from a single goroutine.
type World struct {
	width, height float32
	maxCells      int

	cells  *slab.Slab[Cell]
	events *buffer.Multi[Event]
	rng    *rand.Rand
	seed   uint64

	frame uint64
	last  Stats
}

// New creates an empty world of the given size holding at most maxCells
// cells. shards sets the number of event shards; it should match the pool
// size so each worker writes its own shard.
func New(width, height float32, maxCells, shards int, seed uint64) *World {
	return &World{
		width:    width,
		height:   height,
		maxCells: maxCells,
		cells:    slab.WithCapacity[Cell](maxCells),
		events:   buffer.NewMulti[Event](max(shards, 1)),
		rng:      rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15)),
		seed:     seed,
	}
}

// Len returns the number of live cells.
func (w *World) Len() int { return w.cells.Len() }

// Frame returns the number of completed steps.
func (w *World) Frame() uint64 { return w.frame }

// LastStats returns the changes applied by the most recent Step.
func (w *World) LastStats() Stats { return w.last }

// Get returns the cell addressed by k.
func (w *World) Get(k slab.Key) (Cell, bool) { return w.cells.Get(k) }

// Spawn adds a cell and returns its key. It returns false when the world is
// full.
func (w *World) Spawn(c Cell) (slab.Key, bool) {
	if w.cells.Len() >= w.maxCells {
		return 0, false
	}
	return w.cells.Insert(c), true
}

// Seed adds n cells at random positions.
func (w *World) Seed(n int) {
	for range n {
		c := Cell{
			X:      w.rng.Float32() * w.width,
			Y:      w.rng.Float32() * w.height,
			VX:     (w.rng.Float32()*2 - 1) * maxSpeed / 2,
			VY:     (w.rng.Float32()*2 - 1) * maxSpeed / 2,
			Energy: 0.2 + 0.6*w.rng.Float32(),
			Color:  palette(w.rng.Uint32()),
		}
		if _, ok := w.Spawn(c); !ok {
			return
		}
	}
}

// Step advances the simulation by dt seconds.
//
// The update pass runs once on every worker of pool, each worker taking a
// contiguous chunk of the dense cell slice. Divisions and deaths found during
// the pass are applied afterwards in shard order.
func (w *World) Step(pool *threadpool.Pool, dt float32) Stats {
	cells := w.cells.Values()
	frame := w.frame

	pool.Scope(func(s *threadpool.Scope) {
		n := max(pool.Threads(), 1)
		s.SpawnEach(func(worker int) {
			lo, hi := chunk(len(cells), n, worker)
			rng := rand.New(rand.NewPCG(w.seed^frame, uint64(worker)))
			for i := lo; i < hi; i++ {
				switch w.update(&cells[i], rng, dt) {
				case updateDivide:
					w.events.SendSeed(Event{Kind: Divide, Key: w.cells.KeyAt(i)}, uint(worker))
				case updateDie:
					w.events.SendSeed(Event{Kind: Die, Key: w.cells.KeyAt(i)}, uint(worker))
				}
			}
		})
	})

	w.last = w.apply(w.events.Receive())
	w.frame++
	return w.last
}

// chunk returns the half-open range of n items assigned to worker i of k.
func chunk(n, k, i int) (lo, hi int) {
	size := (n + k - 1) / k
	lo = min(i*size, n)
	hi = min(lo+size, n)
	return lo, hi
}

type updateResult uint8

const (
	updateNone updateResult = iota
	updateDivide
	updateDie
)

// update moves one cell and adjusts its energy. It touches only c.
func (w *World) update(c *Cell, rng *rand.Rand, dt float32) updateResult {
	c.VX += (rng.Float32()*2 - 1) * jitter * dt
	c.VY += (rng.Float32()*2 - 1) * jitter * dt
	speed := float32(math.Hypot(float64(c.VX), float64(c.VY)))
	if speed > maxSpeed {
		c.VX *= maxSpeed / speed
		c.VY *= maxSpeed / speed
		speed = maxSpeed
	}

	c.X += c.VX * dt
	c.Y += c.VY * dt
	if c.X < 0 || c.X >= w.width {
		c.VX = -c.VX
		c.X = clamp(c.X, 0, w.width-1)
	}
	if c.Y < 0 || c.Y >= w.height {
		c.VY = -c.VY
		c.Y = clamp(c.Y, 0, w.height-1)
	}

	c.Age += dt
	c.Energy += (gain*speed/maxSpeed - decay) * dt
	c.Energy += rng.Float32() * gain * dt

	switch {
	case c.Energy <= 0:
		return updateDie
	case c.Energy >= DivideEnergy:
		return updateDivide
	}
	return updateNone
}

// apply performs the structural changes collected during a pass.
// Keys stay valid across the loop because the pass itself never inserts or
// removes.
func (w *World) apply(events []Event) Stats {
	var st Stats
	for _, e := range events {
		switch e.Kind {
		case Die:
			if _, ok := w.cells.Remove(e.Key); ok {
				st.Deaths++
			}
		case Divide:
			parent, ok := w.cells.GetMut(e.Key)
			if !ok {
				continue
			}
			parent.Energy /= 2
			child := *parent
			child.Age = 0
			child.VX, child.VY = -parent.VY, parent.VX
			child.Color = mutate(parent.Color, w.rng.Uint32())
			if _, ok := w.Spawn(child); ok {
				st.Births++
			}
		}
	}
	return st
}

// Publish copies the current cells into the free slot of buf and makes it the
// newest snapshot. The slot's cell slice is reused across frames.
func (w *World) Publish(buf *quintuple.Buffer[Snapshot]) {
	pw := buf.Begin()
	s := pw.Value()
	s.Frame = w.frame
	s.Width = w.width
	s.Height = w.height
	s.Cells = append(s.Cells[:0], w.cells.Values()...)
	s.Births = w.last.Births
	s.Deaths = w.last.Deaths
	pw.Commit()
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

var basePalette = [...]color.RGBA{
	{0x4c, 0xc9, 0xf0, 0xff},
	{0xf7, 0x25, 0x85, 0xff},
	{0x7b, 0xd3, 0x89, 0xff},
	{0xff, 0xb7, 0x03, 0xff},
	{0x90, 0x6b, 0xff, 0xff},
}

func palette(r uint32) color.RGBA {
	return basePalette[r%uint32(len(basePalette))]
}

// mutate nudges each channel of c by a small amount derived from r.
func mutate(c color.RGBA, r uint32) color.RGBA {
	nudge := func(v uint8, bits uint32) uint8 {
		d := int(bits&0x1f) - 16
		return uint8(max(0x20, min(0xff, int(v)+d))) //nolint:gosec // clamped to uint8 range
	}
	return color.RGBA{
		R: nudge(c.R, r),
		G: nudge(c.G, r>>5),
		B: nudge(c.B, r>>10),
		A: 0xff,
	}
}
