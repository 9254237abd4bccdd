package pogo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	Pm "github.com/maroda/pogo/motion"
	Pt "github.com/maroda/pogo/types"
)

const sampleQueue = 256

var ErrNotRunning = errors.New("sample supervisor is not running")

// Command is a state transition requested from outside the sample loop
type Command int

const (
	CmdStartDetection Command = iota
	CmdStopDetection
	CmdStartCalibration
	CmdCancelCalibration
)

func (c Command) String() string {
	switch c {
	case CmdStartDetection:
		return "start-detection"
	case CmdStopDetection:
		return "stop-detection"
	case CmdStartCalibration:
		return "start-calibration"
	case CmdCancelCalibration:
		return "cancel-calibration"
	default:
		return "unknown"
	}
}

type request struct {
	cmd   Command
	reply chan error
}

// SampleSupervisor owns the one goroutine that drives the Analyzer.
// Sources feed Samples, the API and keyboard send Commands,
// and everyone else reads the published Snapshot.
type SampleSupervisor struct {
	Analyzer *Pm.Analyzer
	Sources  []Pm.Source
	Samples  chan Pt.Sample
	StopChan chan struct{}
	WG       sync.WaitGroup

	MU       sync.Mutex // guards running and cancel
	running  bool
	cancel   context.CancelFunc
	commands chan request
	snapshot atomic.Pointer[Pt.Snapshot]
}

func NewSampleSupervisor(a *Pm.Analyzer, sources []Pm.Source) *SampleSupervisor {
	ss := &SampleSupervisor{
		Analyzer: a,
		Sources:  sources,
		Samples:  make(chan Pt.Sample, sampleQueue),
		commands: make(chan request),
	}
	ss.snapshot.Store(a.Snapshot())
	return ss
}

// Start the analyzer loop and every source
func (ss *SampleSupervisor) Start() {
	ss.MU.Lock()
	defer ss.MU.Unlock()
	if ss.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ss.cancel = cancel
	ss.StopChan = make(chan struct{})
	ss.running = true

	ss.WG.Add(1)
	go ss.loop(ss.StopChan)

	for _, src := range ss.Sources {
		ss.WG.Add(1)
		go func(src Pm.Source) {
			defer ss.WG.Done()
			slog.Info("Starting sample source", slog.String("source", src.ID()))
			if err := src.Run(ctx, ss.Samples); err != nil {
				slog.Error("Sample source stopped", slog.String("source", src.ID()), slog.Any("Error", err))
			}
		}(src)
	}
}

func (ss *SampleSupervisor) loop(stop chan struct{}) {
	defer ss.WG.Done()
	for {
		select {
		case s := <-ss.Samples:
			ss.Analyzer.ProcessSample(s)
			ss.publish()
		case req := <-ss.commands:
			err := ss.run(req.cmd)
			ss.publish()
			req.reply <- err
		case <-stop:
			return
		}
	}
}

func (ss *SampleSupervisor) run(cmd Command) error {
	slog.Debug("Running command", slog.String("command", cmd.String()))
	switch cmd {
	case CmdStartDetection:
		return ss.Analyzer.StartDetection()
	case CmdStopDetection:
		ss.Analyzer.StopDetection()
	case CmdStartCalibration:
		return ss.Analyzer.StartCalibration()
	case CmdCancelCalibration:
		ss.Analyzer.CancelCalibration()
	default:
		return errors.New("unknown command")
	}
	return nil
}

func (ss *SampleSupervisor) publish() {
	ss.snapshot.Store(ss.Analyzer.Snapshot())
}

// Snapshot is the analyzer state as of the last sample or command
func (ss *SampleSupervisor) Snapshot() *Pt.Snapshot {
	return ss.snapshot.Load()
}

// Do runs cmd on the analyzer goroutine and waits for the result
func (ss *SampleSupervisor) Do(cmd Command) error {
	ss.MU.Lock()
	stop := ss.StopChan
	running := ss.running
	ss.MU.Unlock()
	if !running {
		return ErrNotRunning
	}

	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case ss.commands <- req:
	case <-stop:
		return ErrNotRunning
	}
	return <-req.reply
}

// Submit queues a sample, blocking while the queue is full.
// It returns false once the supervisor is stopped.
func (ss *SampleSupervisor) Submit(s Pt.Sample) bool {
	ss.MU.Lock()
	stop := ss.StopChan
	running := ss.running
	ss.MU.Unlock()
	if !running {
		return false
	}

	select {
	case ss.Samples <- s:
		return true
	case <-stop:
		return false
	}
}

// Stop the sources and the loop. Detection is stopped first so audio is silenced.
func (ss *SampleSupervisor) Stop() {
	ss.MU.Lock()
	if !ss.running {
		ss.MU.Unlock()
		return
	}
	ss.MU.Unlock()

	if err := ss.Do(CmdStopDetection); err != nil {
		slog.Error("Could not stop detection", slog.Any("Error", err))
	}

	ss.MU.Lock()
	ss.running = false
	ss.cancel()
	close(ss.StopChan)
	ss.MU.Unlock()

	ss.WG.Wait()
}

// Restart the SampleSupervisor
func (ss *SampleSupervisor) Restart() {
	ss.Stop()
	ss.Start()
}

// Running reports whether Start has been called without a Stop
func (ss *SampleSupervisor) Running() bool {
	ss.MU.Lock()
	defer ss.MU.Unlock()
	return ss.running
}
