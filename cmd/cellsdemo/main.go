// Command cellsdemo runs the cell simulation on a thread pool, renders
// published frames on a separate system thread and writes the last frame as
// a PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	cells "github.com/psincf/Cells-sub001"
	"github.com/psincf/Cells-sub001/buffer"
	"github.com/psincf/Cells-sub001/internal/affinity"
	"github.com/psincf/Cells-sub001/internal/frame"
	"github.com/psincf/Cells-sub001/internal/hud"
	"github.com/psincf/Cells-sub001/internal/shader"
	"github.com/psincf/Cells-sub001/internal/world"
	"github.com/psincf/Cells-sub001/quintuple"
	"github.com/psincf/Cells-sub001/runner"
	"github.com/psincf/Cells-sub001/threadpool"
)

type config struct {
	cells         int
	maxCells      int
	frames        int
	fps           int
	threads       int
	renderThreads int
	resizeEvery   int
	width         int
	height        int
	scale         int
	seed          uint64
	output        string
	park          bool
	pin           bool
	single        bool
	verbose       bool
}

func parseFlags() config {
	var c config
	flag.IntVar(&c.cells, "cells", 2000, "initial cell count")
	flag.IntVar(&c.maxCells, "max-cells", 20000, "cell capacity")
	flag.IntVar(&c.frames, "frames", 600, "simulation steps to run")
	flag.IntVar(&c.fps, "fps", 0, "pace the simulation to this rate (0 = unpaced)")
	flag.IntVar(&c.threads, "threads", 0, "simulation workers (0 = GOMAXPROCS)")
	flag.IntVar(&c.renderThreads, "render-threads", 2, "render workers")
	flag.IntVar(&c.resizeEvery, "resize-every", 0, "halve or restore the simulation pool every n frames (0 = never)")
	flag.IntVar(&c.width, "width", 320, "canvas width")
	flag.IntVar(&c.height, "height", 180, "canvas height")
	flag.IntVar(&c.scale, "scale", 3, "output upscale factor")
	flag.Uint64Var(&c.seed, "seed", 1, "random seed")
	flag.StringVar(&c.output, "output", "cells.png", "output file")
	flag.BoolVar(&c.park, "park", false, "park idle workers instead of spinning")
	flag.BoolVar(&c.pin, "pin", false, "pin simulation workers to CPUs")
	flag.BoolVar(&c.single, "single", false, "run systems on the main goroutine")
	flag.BoolVar(&c.verbose, "verbose", false, "log debug events")
	flag.Parse()
	return c
}

func main() {
	cfg := parseFlags()

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cells.SetLogger(log)

	if err := run(cfg, log); err != nil {
		log.Error("cellsdemo failed", "err", err)
		os.Exit(1)
	}
}

// report is one stats line sent from the stats system to the driver.
type report struct {
	frame  uint64
	cells  int
	births int
	deaths int
	drift  float32
}

func run(cfg config, log *slog.Logger) error {
	var opts []threadpool.Option
	if cfg.park {
		opts = append(opts, threadpool.WithIdle(threadpool.IdlePark))
	}
	if cfg.pin {
		cpus, err := affinity.Allowed()
		if err != nil {
			log.Warn("cpu pinning disabled", "err", err)
		} else {
			opts = append(opts, threadpool.WithAffinity(cpus...))
		}
	}
	sim := threadpool.New(cfg.threads, opts...)
	defer sim.Close()
	render := threadpool.New(cfg.renderThreads)
	defer render.Close()

	shaders := shader.NewLibrary()
	for name, src := range shader.Builtin() {
		shaders.Add(name, src)
	}
	if err := shaders.Compile(render); err != nil {
		// The CPU renderer does not need them.
		log.Warn("shader compilation failed", "err", err)
	}

	overlay, err := hud.New()
	if err != nil {
		return err
	}

	w := world.New(float32(cfg.width), float32(cfg.height), cfg.maxCells, sim.Threads(), cfg.seed)
	w.Seed(cfg.cells)

	snaps := quintuple.New(world.Snapshot{})
	w.Publish(snaps)

	renderer := frame.New(render, cfg.width, cfg.height, cfg.scale)
	reports := buffer.New[report](64)

	var rendered atomic.Uint64
	var lastRendered uint64
	renderSystem := func() {
		g := snaps.GetLast()
		s := g.Value()
		if s.Frame == lastRendered && lastRendered != 0 {
			g.Release()
			runtime.Gosched()
			return
		}
		img := renderer.Render(s)
		drawHUD(overlay, img, s, sim.Threads())
		lastRendered = s.Frame
		g.Release()
		rendered.Add(1)
	}

	var lastStats uint64
	statsSystem := func() {
		p := snaps.GetPreLastAndLast()
		pre, last := p.Pre(), p.Last()
		if last.Frame == lastStats || last.Frame%60 != 0 {
			p.Release()
			runtime.Gosched()
			return
		}
		reports.Send(report{
			frame:  last.Frame,
			cells:  len(last.Cells),
			births: last.Births,
			deaths: last.Deaths,
			drift:  meanDrift(pre.Cells, last.Cells),
		})
		lastStats = last.Frame
		p.Release()
	}

	r := runner.New()
	r.Add(renderSystem)
	r.Add(statsSystem)
	if !cfg.single {
		r.RunMultiThread()
	}

	var tick <-chan time.Time
	if cfg.fps > 0 {
		t := time.NewTicker(time.Second / time.Duration(cfg.fps))
		defer t.Stop()
		tick = t.C
	}

	dt := float32(1.0 / 60)
	full := sim.Threads()
	start := time.Now()
	for f := 1; f <= cfg.frames; f++ {
		if tick != nil {
			<-tick
		}
		if cfg.resizeEvery > 0 && f%cfg.resizeEvery == 0 {
			if sim.Threads() == full {
				sim.SetThreads(max(full/2, 1))
			} else {
				sim.SetThreads(full)
			}
		}

		w.Step(sim, dt)
		w.Publish(snaps)

		if cfg.single {
			r.RunSingleThread()
		}
		if reports.IsSome() {
			for _, rep := range reports.Receive() {
				log.Info("frame",
					"frame", rep.frame,
					"cells", overlay.Sprintf("%d", rep.cells),
					"births", rep.births,
					"deaths", rep.deaths,
					"drift", fmt.Sprintf("%.2f", rep.drift),
				)
			}
		}
	}
	elapsed := time.Since(start)
	r.StopAndWait()

	log.Info("simulation done",
		"frames", cfg.frames,
		"rendered", rendered.Load(),
		"cells", w.Len(),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	g := snaps.GetLast()
	img := renderer.Render(g.Value())
	drawHUD(overlay, img, g.Value(), sim.Threads())
	g.Release()

	if err := writePNG(cfg.output, img); err != nil {
		return err
	}
	log.Info("frame written", "path", cfg.output, "size", img.Bounds().Size())
	return nil
}

func drawHUD(ov *hud.Overlay, img *image.RGBA, s *world.Snapshot, threads int) {
	ov.Draw(img, image.Pt(8, 8),
		ov.Sprintf("frame %d", s.Frame),
		ov.Sprintf("cells %d", len(s.Cells)),
		ov.Sprintf("+%d / -%d", s.Births, s.Deaths),
		ov.Sprintf("threads %d", threads),
	)
}

// meanDrift returns the mean squared displacement between the two snapshots'
// first n cells, where n is the shorter length. Removals reorder the dense
// slice, so this is an estimate.
func meanDrift(pre, last []world.Cell) float32 {
	n := min(len(pre), len(last))
	if n == 0 {
		return 0
	}
	var sum float32
	for i := range n {
		dx := last[i].X - pre[i].X
		dy := last[i].Y - pre[i].Y
		sum += dx*dx + dy*dy
	}
	return sum / float32(n)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
