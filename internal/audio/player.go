// Package audio plays personality welcome samples through an external player.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
)

// Status is the outcome of a playback attempt.
type Status int

const (
	// Played means a sample was found and the player started.
	Played Status = iota
	// NoSample means the personality ships no welcome sample.
	NoSample
	// Unavailable means playback is disabled or no player is installed.
	Unavailable
	// Failed means a sample exists but could not be played.
	Failed
)

func (s Status) String() string {
	switch s {
	case Played:
		return "played"
	case NoSample:
		return "no_sample"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what PlayWelcome did.
type Result struct {
	Status Status
	File   string
	Err    error
}

// SampleExtensions are the file types recognized as welcome samples.
var SampleExtensions = []string{".wav", ".mp3"}

// Player starts an external program (ffplay by default) for each sample.
type Player struct {
	enabled bool
	path    string
	args    []string
	log     *logging.Logger

	mu      sync.Mutex
	running map[*exec.Cmd]struct{}
}

// NewPlayer creates a player from configuration.
func NewPlayer(cfg config.AudioConfig, log *logging.Logger) *Player {
	return &Player{
		enabled: cfg.Enabled,
		path:    cfg.Player,
		args:    append([]string(nil), cfg.Args...),
		log:     log.Sub("audio"),
		running: make(map[*exec.Cmd]struct{}),
	}
}

// PlayWelcome plays the first welcome sample found in dir. Playback runs in
// the background; the call returns once the player process has started.
func (p *Player) PlayWelcome(ctx context.Context, dir string) Result {
	if dir == "" {
		return Result{Status: NoSample}
	}

	sample, err := FindSample(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Status: NoSample}
		}
		return Result{Status: Failed, Err: err}
	}
	if sample == "" {
		return Result{Status: NoSample}
	}

	if p == nil || !p.enabled {
		return Result{Status: Unavailable, File: sample}
	}
	bin, err := exec.LookPath(p.path)
	if err != nil {
		return Result{Status: Unavailable, File: sample, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: Failed, File: sample, Err: err}
	}

	args := append(append([]string(nil), p.args...), sample)
	cmd := exec.Command(bin, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	if err := cmd.Start(); err != nil {
		return Result{Status: Failed, File: sample, Err: fmt.Errorf("starting %s: %w", p.path, err)}
	}

	p.mu.Lock()
	p.running[cmd] = struct{}{}
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		delete(p.running, cmd)
		p.mu.Unlock()
		if err != nil {
			p.log.Debug().Err(err).Str("file", sample).Msg("player exited")
		}
	}()

	p.log.Debug().Str("file", sample).Str("player", bin).Msg("playing welcome sample")
	return Result{Status: Played, File: sample}
}

// Close stops every player process still running.
func (p *Player) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for cmd := range p.running {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return nil
}

// Running returns the number of player processes still alive.
func (p *Player) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// FindSample returns the first sample in dir in name order, or "" when the
// directory holds none.
func FindSample(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range SampleExtensions {
			if ext == want {
				names = append(names, e.Name())
				break
			}
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}
