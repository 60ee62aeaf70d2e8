//go:build windows || linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/owlcms/clickrec/internal/app"
	"github.com/owlcms/clickrec/internal/camera"
	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/devices"
	"github.com/owlcms/clickrec/internal/frame"
	"github.com/owlcms/clickrec/internal/jobutil"
	"github.com/owlcms/clickrec/internal/logging"
	"github.com/owlcms/clickrec/internal/session"
	"github.com/owlcms/clickrec/internal/status"
)

const previewInterval = 100 * time.Millisecond

var sigChan = make(chan os.Signal, 1)

func main() {
	// Disable Fyne telemetry
	os.Setenv("FYNE_TELEMETRY", "0")

	configPath := flag.String("config", "", "path to config.toml")
	verbose := flag.Bool("v", false, "enable verbose logging")
	flag.Parse()

	cfg, err := config.InitConfig(*configPath, *verbose)
	if err != nil {
		logging.ErrorLogger.Fatalf("Error loading configuration: %v", err)
	}
	defer logging.Close()

	if err := jobutil.Init(); err != nil {
		logging.WarningLogger.Printf("Could not create job object: %v", err)
	}
	defer jobutil.Close()

	opener, err := camera.NewOpener(camera.OptionsFromConfig(cfg.Camera))
	if err != nil {
		logging.ErrorLogger.Fatalf("%v", err)
	}

	preview := canvas.NewImageFromImage(nil)
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(480, 270))

	var lastPreview atomic.Int64
	showFrame := func(f frame.Frame) {
		now := time.Now().UnixNano()
		if now-lastPreview.Load() < int64(previewInterval) {
			return
		}
		lastPreview.Store(now)
		preview.Image = frame.Thumbnail(f, 640, 360)
		preview.Refresh()
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, opener, session.WithPreview(showFrame))

	myApp := fyneapp.New()
	window := myApp.NewWindow("Click Recorder")

	if err != nil {
		logging.ErrorLogger.Printf("Startup failed: %v", err)
		dialog.ShowError(err, window)
		window.SetOnClosed(func() { os.Exit(1) })
		window.Resize(fyne.NewSize(500, 200))
		window.ShowAndRun()
		return
	}

	ui := newRecorderUI(a, opener, window, preview)
	window.SetContent(ui.content())
	window.Resize(fyne.NewSize(720, 560))
	window.CenterOnScreen()

	window.SetCloseIntercept(func() {
		if !a.Controller.State().Active() {
			window.Close()
			return
		}
		dialog.ShowConfirm(
			"Confirm Exit",
			"A recording is in progress and will be discarded. Exit anyway?",
			func(confirm bool) {
				if confirm {
					shutdown(a)
					window.Close()
				}
			},
			window,
		)
	})

	window.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("Files",
			fyne.NewMenuItem("Open Recordings Folder", func() {
				openDirectory(cfg.Recording.SaveDirAbs())
			}),
			fyne.NewMenuItem("Open Application Directory", func() {
				openDirectory(config.GetInstallDir())
			}),
		),
		fyne.NewMenu("Help",
			fyne.NewMenuItem("About", func() {
				dialog.ShowInformation("About", fmt.Sprintf("Click Recorder\nVersion %s\nEncoder %s", config.GetProgramVersion(), a.Codec), window)
			}),
		),
	))

	go ui.followStatus()
	go ui.followCountdown()
	go ui.loadCameras(ctx)

	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.InfoLogger.Println("Interrupt signal received. Shutting down...")
		shutdown(a)
		myApp.Quit()
	}()

	window.ShowAndRun()
	shutdown(a)
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := a.Shutdown(ctx); err != nil {
		logging.WarningLogger.Printf("Recorder did not stop in time: %v", err)
	}
}

type recorderUI struct {
	app     *app.App
	opener  *camera.Opener
	window  fyne.Window
	preview *canvas.Image

	cameras   []devices.Camera
	modes     []devices.Mode
	camera    *widget.Select
	mode      *widget.Select
	duration  *widget.Entry
	gray      *widget.Check
	previewB  *widget.Button
	recordB   *widget.Button
	cancelB   *widget.Button
	status    *widget.Label
	countdown *widget.Label
}

func newRecorderUI(a *app.App, opener *camera.Opener, window fyne.Window, preview *canvas.Image) *recorderUI {
	ui := &recorderUI{app: a, opener: opener, window: window, preview: preview}

	ui.camera = widget.NewSelect(nil, func(string) { ui.showModes() })
	ui.camera.PlaceHolder = "Detecting cameras..."
	ui.mode = widget.NewSelect(nil, nil)
	ui.mode.PlaceHolder = "Driver default"

	ui.duration = widget.NewEntry()
	ui.duration.SetText(strconv.Itoa(a.Config.Recording.Duration))
	ui.duration.Validator = func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("enter a whole number of seconds")
		}
		return nil
	}

	ui.gray = widget.NewCheck("Grayscale", nil)
	ui.gray.SetChecked(a.Config.Recording.Grayscale)

	ui.previewB = widget.NewButton("Preview", ui.startPreview)
	ui.recordB = widget.NewButton("Record", ui.startRecording)
	ui.cancelB = widget.NewButton("Cancel", a.Controller.Cancel)

	ui.status = widget.NewLabel("Ready")
	ui.status.Wrapping = fyne.TextWrapWord
	ui.countdown = widget.NewLabel("")
	ui.countdown.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}

	ui.updateButtons(session.StateIdle)
	return ui
}

func (ui *recorderUI) content() fyne.CanvasObject {
	form := widget.NewForm(
		widget.NewFormItem("Camera", ui.camera),
		widget.NewFormItem("Mode", ui.mode),
		widget.NewFormItem("Duration (s)", ui.duration),
		widget.NewFormItem("", ui.gray),
	)
	buttons := container.NewHBox(ui.previewB, ui.recordB, ui.cancelB)
	bottom := container.NewVBox(
		widget.NewSeparator(),
		container.NewBorder(nil, nil, nil, ui.countdown, ui.status),
	)
	return container.NewPadded(container.NewBorder(
		container.NewVBox(form, buttons),
		bottom,
		nil,
		nil,
		ui.preview,
	))
}

func (ui *recorderUI) loadCameras(ctx context.Context) {
	ui.cameras = ui.app.Cameras(ctx)
	labels := make([]string, len(ui.cameras))
	selected := 0
	for i, c := range ui.cameras {
		labels[i] = c.Label()
		if c.ID == ui.app.Config.Camera.Device {
			selected = i
		}
	}
	ui.camera.PlaceHolder = "Select a camera"
	ui.camera.Options = labels
	ui.camera.SetSelectedIndex(selected)
}

func (ui *recorderUI) selectedCamera() (devices.Camera, bool) {
	i := ui.camera.SelectedIndex()
	if i < 0 || i >= len(ui.cameras) {
		return devices.Camera{}, false
	}
	return ui.cameras[i], true
}

// showModes lists the capture modes of the selected camera.
func (ui *recorderUI) showModes() {
	c, ok := ui.selectedCamera()
	ui.modes = nil
	ui.mode.ClearSelected()
	ui.mode.Options = nil
	if !ok {
		ui.mode.Refresh()
		return
	}
	modes, selected := c.ModeChoices()
	ui.modes = modes
	labels := make([]string, len(modes))
	for i, m := range modes {
		labels[i] = m.String()
	}
	ui.mode.Options = labels
	if len(modes) == 0 {
		ui.mode.Disable()
		ui.mode.Refresh()
		return
	}
	ui.mode.Enable()
	ui.mode.SetSelectedIndex(selected)
}

// applyMode makes the next camera open request the selected mode, or the
// configured one when the camera reported none.
func (ui *recorderUI) applyMode() {
	i := ui.mode.SelectedIndex()
	if i < 0 || i >= len(ui.modes) {
		cfg := ui.app.Config.Camera
		ui.opener.SetMode(cfg.Width, cfg.Height, cfg.FPS)
		return
	}
	m := ui.modes[i]
	logging.InfoLogger.Printf("Requesting capture mode %s (%s)", m, m.PixFmt)
	ui.opener.SetMode(m.Width, m.Height, m.FPS)
}

func (ui *recorderUI) startPreview() {
	c, ok := ui.selectedCamera()
	if !ok {
		dialog.ShowInformation("Camera", "Select a camera first.", ui.window)
		return
	}
	ui.previewB.Disable()
	ui.applyMode()
	go func() {
		if err := ui.app.Controller.StartPreview(context.Background(), c.ID); err != nil {
			logging.ErrorLogger.Printf("Preview failed: %v", err)
			ui.setStatus(status.Message{Code: status.Failed, Text: "Error: " + err.Error()})
			ui.updateButtons(ui.app.Controller.State())
		}
	}()
}

func (ui *recorderUI) startRecording() {
	if err := ui.duration.Validate(); err != nil {
		dialog.ShowError(err, ui.window)
		return
	}
	seconds, _ := strconv.Atoi(ui.duration.Text)
	cameraID := ui.app.Controller.Session().CameraID
	req, err := ui.app.Request(cameraID, seconds, ui.gray.Checked)
	if err == nil {
		err = ui.app.Controller.StartRecording(req)
	}
	if err != nil {
		logging.ErrorLogger.Printf("Recording not started: %v", err)
		dialog.ShowError(err, ui.window)
	}
}

// followStatus applies controller events to the status line and buttons.
func (ui *recorderUI) followStatus() {
	var hideTimer *time.Timer
	for msg := range ui.app.Status.C {
		if hideTimer != nil {
			hideTimer.Stop()
		}
		ui.setStatus(msg)
		ui.updateButtons(ui.app.Controller.State())

		// Auto-hide Ready messages after 10 seconds
		if msg.Code == status.Ready {
			hideTimer = time.AfterFunc(10*time.Second, func() {
				ui.setStatus(status.Message{Code: status.Idle, Text: "Ready"})
			})
		}
	}
}

// followCountdown refreshes the countdown and resyncs the buttons with the
// controller when a status message was missed.
func (ui *recorderUI) followCountdown() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	last := session.StateIdle
	for range ticker.C {
		s := ui.app.Controller.Session()
		if s.State != last {
			last = s.State
			ui.updateButtons(s.State)
		}
		text := ""
		if s.State == session.StateRecording {
			text = status.Countdown(s.Remaining()) + " s"
		}
		if ui.countdown.Text != text {
			ui.countdown.SetText(text)
		}
	}
}

func (ui *recorderUI) setStatus(msg status.Message) {
	ui.status.SetText(msg.Text)
	ui.status.TextStyle = fyne.TextStyle{Bold: msg.IsError()}
	ui.status.Refresh()
}

func (ui *recorderUI) updateButtons(state session.State) {
	enable := func(b *widget.Button, on bool) {
		if on {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	enable(ui.previewB, state.Terminal())
	enable(ui.recordB, state == session.StatePreviewing)
	enable(ui.cancelB, state == session.StatePreviewing || state == session.StateRecording)
	if state.Active() {
		ui.camera.Disable()
		ui.mode.Disable()
	} else {
		ui.camera.Enable()
		if len(ui.modes) > 0 {
			ui.mode.Enable()
		}
	}
	if state.Terminal() {
		ui.preview.Image = nil
		ui.preview.Refresh()
	}
}

// openDirectory opens dir in the file explorer
func openDirectory(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.ErrorLogger.Printf("Failed to create %s: %v", dir, err)
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", dir)
	case "darwin":
		cmd = exec.Command("open", dir)
	case "linux":
		cmd = exec.Command("xdg-open", dir)
	default:
		logging.WarningLogger.Printf("Unsupported platform: %s", runtime.GOOS)
		return
	}
	if err := cmd.Start(); err != nil {
		logging.ErrorLogger.Printf("Failed to open %s: %v", dir, err)
	}
}
