package pogo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	Pm "github.com/maroda/pogo/motion"
	Po "github.com/maroda/pogo/obvy"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

const (
	screenGutter = 4
	FlashTime    = 200 * time.Millisecond
	HistoryStep  = 50 * time.Millisecond
	refresh      = 50 * time.Millisecond
)

// View is the visual indicator. It is a Feedback, fed from the
// analyzer goroutine, and draws on its own ticker.
type View struct {
	MU         sync.Mutex         // State locks to read data
	Screen     tcell.Screen       // nil when running without a TUI
	Supervisor *SampleSupervisor  // drives the analyzer
	Hub        *Hub               // websocket listeners
	Log        Mp.BounceLog       // bounce history for /api/bounces
	Outputs    Mp.Fanout          // everything the analyzer feeds
	Stats      *Po.StatsInternal  // Internal status for prometheus
	History    *Pm.Timeseries     // magnitude sparkline
	Step       time.Duration      // wall time per sparkline slot
	Now        func() time.Time   // clock, replaced in tests
	server     *http.Server       // API and metrics server
	quit       chan struct{}      // closed by the q key
	quitOnce   sync.Once

	status     Pt.Status
	message    string
	baseline   float64
	magnitude  float64
	flashUntil time.Time
	lastPush   time.Time
	slotPeak   float64
	slotSeen   bool
}

// NewView wires a View to a supervisor. screen may be nil.
func NewView(screen tcell.Screen, ss *SampleSupervisor, stats *Po.StatsInternal) *View {
	v := &View{
		Screen:     screen,
		Supervisor: ss,
		Hub:        NewHub(),
		Stats:      stats,
		History:    Pm.NewTimeseries(Pm.HistoryWindow),
		Step:       HistoryStep,
		Now:        time.Now,
		quit:       make(chan struct{}),
		status:     Pt.StatusReady,
		baseline:   Pm.StandardGravity,
	}
	if ss != nil {
		v.baseline = ss.Snapshot().Baseline
	}
	return v
}

////////// FEEDBACK

func (v *View) OnMagnitudeUpdate(m float64) {
	v.MU.Lock()
	defer v.MU.Unlock()

	v.magnitude = m
	// Keep the sample furthest from rest for this slot
	if !v.slotSeen || math.Abs(m-v.baseline) > math.Abs(v.slotPeak-v.baseline) {
		v.slotPeak = m
		v.slotSeen = true
	}

	now := v.Now()
	if now.Sub(v.lastPush) >= v.Step {
		v.History.Add(v.slotPeak, v.baseline, false)
		v.lastPush = now
		v.slotSeen = false
	}
}

func (v *View) OnBounceDetected(count int) {
	v.MU.Lock()
	defer v.MU.Unlock()
	v.flashUntil = v.Now().Add(FlashTime)
	v.History.Mark()
}

func (v *View) OnCalibrationComplete(baseline float64) {
	v.MU.Lock()
	defer v.MU.Unlock()
	v.baseline = baseline
	v.message = fmt.Sprintf("baseline %.2f m/s²", baseline)
}

func (v *View) OnStatusChanged(status Pt.Status, message string) {
	v.MU.Lock()
	defer v.MU.Unlock()
	v.status = status
	v.message = message
}

// Audio and haptics are rendered elsewhere
func (v *View) SetAudioTarget(float64, float64) {}
func (v *View) TriggerDiscreteTone()             {}
func (v *View) TriggerVibration(int)             {}
func (v *View) StopAudio()                       {}
func (v *View) Type() string                     { return "tcell" }

// Magnitude is the last vertical magnitude seen
func (v *View) Magnitude() float64 {
	v.MU.Lock()
	defer v.MU.Unlock()
	return v.magnitude
}

// Flashing is true for FlashTime after each bounce
func (v *View) Flashing() bool {
	v.MU.Lock()
	defer v.MU.Unlock()
	return v.Now().Before(v.flashUntil)
}

// Status is the last status and message from the analyzer
func (v *View) Status() (Pt.Status, string) {
	v.MU.Lock()
	defer v.MU.Unlock()
	return v.status, v.message
}

////////// DRAWING

// StatusStyle colors the status line
func StatusStyle(s Pt.Status) tcell.Style {
	base := tcell.StyleDefault.Background(tcell.ColorBlack)
	switch s {
	case Pt.StatusActive:
		return base.Foreground(tcell.ColorLightGreen)
	case Pt.StatusCalibrating:
		return base.Foreground(tcell.ColorDodgerBlue)
	case Pt.StatusWarning:
		return base.Foreground(tcell.ColorDarkOrange)
	case Pt.StatusError:
		return base.Foreground(tcell.ColorRed)
	default:
		return base.Foreground(tcell.ColorLightSteelBlue)
	}
}

// RuneStyle shades the sparkline by intensity
func RuneStyle(r rune, isBounce bool) tcell.Style {
	var style tcell.Style
	switch r {
	case '▁':
		style = tcell.StyleDefault.Foreground(tcell.ColorSeaGreen)
	case '▂':
		style = tcell.StyleDefault.Foreground(tcell.ColorMediumSeaGreen)
	case '▃':
		style = tcell.StyleDefault.Foreground(tcell.ColorLightSeaGreen)
	case '▄':
		style = tcell.StyleDefault.Foreground(tcell.ColorDarkTurquoise)
	case '▅':
		style = tcell.StyleDefault.Foreground(tcell.ColorMediumTurquoise)
	case '▆':
		style = tcell.StyleDefault.Foreground(tcell.ColorTurquoise)
	case '▇':
		style = tcell.StyleDefault.Foreground(tcell.ColorLightGreen)
	case '█':
		style = tcell.StyleDefault.Foreground(tcell.ColorAquaMarine)
	default:
		style = tcell.StyleDefault
	}
	if isBounce {
		style = style.Foreground(tcell.ColorHotPink).Bold(true)
	}
	return style
}

// DrawTimeseries displays the magnitude history
func (v *View) DrawTimeseries(x, y int) {
	runes, marks := v.History.GetDisplay()
	for i, r := range runes {
		v.Screen.SetContent(x+i, y, r, nil, RuneStyle(r, marks[i]))
	}
}

// DrawText displays the text string at the given (x1, y1) with box size (x2, y2)
func (v *View) DrawText(x1, y1, x2, y2 int, text string) {
	v.DrawTextStyle(x1, y1, x2, y2, text,
		tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue))
}

func (v *View) DrawTextStyle(x1, y1, x2, y2 int, text string, style tcell.Style) {
	row := y1
	col := x1
	for _, r := range text {
		v.Screen.SetContent(col, row, r, nil, style)
		col++
		if col >= x2 {
			row++
			col = x1
		}
		if row > y2 {
			break
		}
	}
}

// DrawViewBorder displays the outline of the View
func (v *View) DrawViewBorder(width, height int) {
	hvStyle := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorPink)
	v.Screen.SetContent(0, 0, tcell.RuneULCorner, nil, hvStyle)
	for i := 1; i < width; i++ {
		v.Screen.SetContent(i, 0, tcell.RuneHLine, nil, hvStyle)
		v.Screen.SetContent(i, height, tcell.RuneHLine, nil, hvStyle)
	}
	v.Screen.SetContent(width, 0, tcell.RuneURCorner, nil, hvStyle)
	for i := 1; i < height; i++ {
		v.Screen.SetContent(0, i, tcell.RuneVLine, nil, hvStyle)
		v.Screen.SetContent(width, i, tcell.RuneVLine, nil, hvStyle)
	}
	v.Screen.SetContent(0, height, tcell.RuneLLCorner, nil, hvStyle)
	v.Screen.SetContent(width, height, tcell.RuneLRCorner, nil, hvStyle)
}

// DrawBounceView lays out one frame
func (v *View) DrawBounceView() {
	width, height := v.GetScreenSize()
	snap := v.Supervisor.Snapshot()
	flashing := v.Flashing()
	status, message := v.Status()

	v.DrawViewBorder(width-2, height-1)

	header := fmt.Sprintf("%-12s bounces: %-5d cadence: %5.1f bpm",
		snap.StateName, snap.BounceCount, snap.CadenceBPM)
	v.DrawText(2, 1, width-3, 1, header)

	v.DrawText(2, 2, width-3, 2, fmt.Sprintf("magnitude %6.2f  baseline %6.2f  deviation %6.2f",
		snap.Magnitude, snap.Baseline, snap.Deviation))

	v.DrawTimeseries(2, screenGutter)

	// The flash pulse under the sparkline
	flashStyle := tcell.StyleDefault.Background(tcell.ColorBlack)
	if flashing {
		flashStyle = tcell.StyleDefault.Background(tcell.ColorHotPink)
	}
	WriteBar(v.Screen, 2, screenGutter+2, 2+v.History.MaxSize, screenGutter+5, flashStyle)

	if snap.State == Pt.Calibrating {
		v.DrawText(2, screenGutter+6, width-3, screenGutter+6,
			fmt.Sprintf("calibrating %d/%d, hold still", snap.CalibrationProgress, Pm.CalibrationSamples))
	}

	v.DrawTextStyle(2, height-3, width-3, height-3,
		fmt.Sprintf("[%s] %s", status, message), StatusStyle(status))
	v.DrawText(1, height-1, width, height+10, "/d/ detect | /s/ stop | /c/ calibrate | /q/ quit")
	v.DrawText(width-8, height-1, width, height+10, "POGO")
}

// GetScreenSize provides the terminal size for drawing
func (v *View) GetScreenSize() (int, int) {
	return v.Screen.Size()
}

// ResizeScreen redraws after terminal changes
func (v *View) ResizeScreen() {
	v.Screen.Sync()
	v.UpdateScreen()
}

func (v *View) UpdateScreen() {
	v.Screen.Clear()
	v.DrawBounceView()
	v.Screen.Show()
}

////////// INPUT

// HandleKey runs the command for a key and reports whether to quit
func (v *View) HandleKey(ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
		return true
	}

	var err error
	switch ev.Rune() {
	case 'd', 'D':
		err = v.Supervisor.Do(CmdStartDetection)
	case 's', 'S':
		err = v.Supervisor.Do(CmdStopDetection)
	case 'c', 'C':
		err = v.Supervisor.Do(CmdStartCalibration)
	case 'x', 'X':
		err = v.Supervisor.Do(CmdCancelCalibration)
	case 'q', 'Q':
		return true
	}
	if err != nil {
		// The analyzer has already put the reason on the status line
		slog.Debug("Key command refused", slog.String("key", string(ev.Rune())), slog.Any("Error", err))
	}
	return false
}

// Running Loop to handle events
func (v *View) handleKeyBoardEvent() {
	for {
		ev := v.Screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return
		case *tcell.EventResize:
			v.ResizeScreen()
		case *tcell.EventKey:
			if v.HandleKey(ev) {
				v.Quit()
				return
			}
		}
	}
}

// Quit ends Run
func (v *View) Quit() {
	v.quitOnce.Do(func() { close(v.quit) })
}

// run redraws until Quit
func (v *View) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in run loop", slog.Any("panic", r))
			slog.Error("Recovered from panic", slog.String("stack", string(debug.Stack())))
		}
	}()

	slog.Info("Starting BounceView")
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.UpdateScreen()
		case <-v.quit:
			return
		}
	}
}

////////// SERVING

// RespWriter is a wrapper with StatsMiddleware, used for Prometheus
type RespWriter struct {
	http.ResponseWriter
	Status int
}

// WriteHeader is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

// Write is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) Write(b []byte) (int, error) {
	return w.ResponseWriter.Write(b)
}

func (v *View) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         200,
		}
		next.ServeHTTP(wrapped, r)
		if v.Stats != nil {
			v.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
		}
	})
}

// Serve runs the API until Shutdown
func (v *View) Serve(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           v.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	v.MU.Lock()
	v.server = server
	v.MU.Unlock()

	slog.Info("Starting Pogo web server...", slog.String("Port", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Could not start web server", slog.Any("Error", err))
		return err
	}
	return nil
}

// Shutdown stops the web server if it is running
func (v *View) Shutdown(ctx context.Context) error {
	v.MU.Lock()
	server := v.server
	v.MU.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// StartBounceView is called by main to run the program with the TUI.
// It returns when the user quits.
func (v *View) StartBounceView(addr string) error {
	if v.Screen == nil {
		return errors.New("no screen for the terminal view")
	}
	defer v.Screen.Fini()

	v.Supervisor.Start()
	defer v.Supervisor.Stop()

	go func() {
		if err := v.Serve(addr); err != nil {
			slog.Error("Web server stopped", slog.Any("Error", err))
		}
	}()
	defer v.Shutdown(context.Background())

	go v.handleKeyBoardEvent()
	v.UpdateScreen()
	v.run()
	return nil
}

// StartWebNoTUI runs headless until ctx is done
func (v *View) StartWebNoTUI(ctx context.Context, addr string) error {
	v.Supervisor.Start()
	defer v.Supervisor.Stop()

	errc := make(chan error, 1)
	go func() { errc <- v.Serve(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return v.Shutdown(shutCtx)
	}
}
