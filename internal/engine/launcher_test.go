package engine

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/smazurov/teecast/internal/events"
	"github.com/smazurov/teecast/internal/process"
	"github.com/smazurov/teecast/internal/streams"
)

// fakeLaunch writes an executable that stands in for gst-launch-1.0.
func fakeLaunch(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gst-launch-1.0")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func engineEvents(bus *events.Bus) (<-chan events.EngineEvent, func()) {
	ch := make(chan events.EngineEvent, 10)
	unsub := bus.Subscribe(func(e events.EngineEvent) { ch <- e })
	return ch, unsub
}

func nextEngineEvent(t *testing.T, ch <-chan events.EngineEvent) events.EngineEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for engine event")
		return events.EngineEvent{}
	}
}

func TestLauncherCommand(t *testing.T) {
	l := NewLauncher(Options{})
	defer l.Close()

	l.Register("fanout", `videotestsrc ! video/x-raw,width=640 ! fakesink`)
	cmd, err := l.Command("fanout")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	want := process.Command{
		Path: "gst-launch-1.0",
		Args: []string{"-e", "videotestsrc", "!", "video/x-raw,width=640", "!", "fakesink"},
	}
	if !reflect.DeepEqual(cmd, want) {
		t.Errorf("Command = %+v, want %+v", cmd, want)
	}

	if _, err := l.Command("missing"); err == nil {
		t.Error("expected error for unregistered pipeline")
	}
}

func TestLauncherStartFailureIsGraphStartError(t *testing.T) {
	l := NewLauncher(Options{Binary: "/nonexistent/gst-launch-1.0"})
	defer l.Close()

	p := l.Register("fanout", "videotestsrc ! fakesink")
	err := p.Start()
	if err == nil {
		t.Fatal("expected start error")
	}
	if !streams.HasCode(err, streams.ErrCodeGraphStart) {
		t.Errorf("expected GRAPH_START_ERROR, got %v", err)
	}
	if p.Running() {
		t.Error("pipeline should not be running")
	}
}

func TestLauncherPublishesEngineError(t *testing.T) {
	bus := events.New()
	ch, unsub := engineEvents(bus)
	defer unsub()

	bin := fakeLaunch(t, `echo 'Setting pipeline to PLAYING ...'
echo 'ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: Could not open device.' >&2
echo 'ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: Internal data stream error.' >&2
exit 1`)
	l := NewLauncher(Options{Binary: bin, Bus: bus})
	defer l.Close()

	if err := l.Register("fanout", "v4l2src ! fakesink").Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e := nextEngineEvent(t, ch)
	if e.Kind != events.EngineError {
		t.Fatalf("Kind = %s, want error", e.Kind)
	}
	if e.PipelineID != "fanout" || e.ExitCode != 1 {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Message != "from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: Could not open device." {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestLauncherPublishesEOS(t *testing.T) {
	bus := events.New()
	ch, unsub := engineEvents(bus)
	defer unsub()

	bin := fakeLaunch(t, `echo 'Got EOS from element "pipeline0".'
echo 'Execution ended after 0:00:01.000000000'`)
	l := NewLauncher(Options{Binary: bin, Bus: bus})
	defer l.Close()

	if err := l.Register("fanout", "videotestsrc num-buffers=1 ! fakesink").Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e := nextEngineEvent(t, ch); e.Kind != events.EngineEOS || e.ExitCode != 0 {
		t.Errorf("expected EOS event, got %+v", e)
	}
}

func TestLauncherWarningEvent(t *testing.T) {
	bus := events.New()
	ch, unsub := engineEvents(bus)
	defer unsub()

	bin := fakeLaunch(t, `echo 'WARNING: from element /GstPipeline:pipeline0/GstQueue:queue0: late buffers'
trap 'exit 0' INT TERM
while :; do sleep 0.1; done`)
	l := NewLauncher(Options{Binary: bin, Bus: bus, GracefulTimeout: time.Second})
	defer l.Close()

	p := l.Register("fanout", "videotestsrc ! fakesink")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e := nextEngineEvent(t, ch)
	if e.Kind != events.EngineWarning || e.Message != "from element /GstPipeline:pipeline0/GstQueue:queue0: late buffers" {
		t.Errorf("unexpected warning event %+v", e)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestLauncherStopIsQuiet(t *testing.T) {
	bus := events.New()
	ch, unsub := engineEvents(bus)
	defer unsub()

	bin := fakeLaunch(t, `trap 'exit 0' INT TERM
while :; do sleep 0.1; done`)
	l := NewLauncher(Options{Binary: bin, Bus: bus, GracefulTimeout: time.Second})
	defer l.Close()

	p := l.Register("fanout", "videotestsrc ! fakesink")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Running() {
		t.Fatal("expected running")
	}
	// a second Start is a no-op
	if err := p.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Running() {
		t.Error("expected stopped")
	}
	if info := l.Status("fanout"); info.Starts != 1 {
		t.Errorf("Starts = %d, want 1", info.Starts)
	}

	select {
	case e := <-ch:
		t.Errorf("requested stop published %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLauncherPublishesStateChanges(t *testing.T) {
	bus := events.New()
	ch := make(chan events.PipelineStateEvent, 10)
	defer bus.Subscribe(func(e events.PipelineStateEvent) { ch <- e })()

	l := NewLauncher(Options{Binary: fakeLaunch(t, "exit 0"), Bus: bus})
	defer l.Close()

	if err := l.Register("fanout", "fakesrc ! fakesink").Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []string{"starting", "running", "exited"}
	for i, state := range want {
		select {
		case e := <-ch:
			if e.NewState != state {
				t.Errorf("transition %d: NewState = %s, want %s", i, e.NewState, state)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", state)
		}
	}
}
