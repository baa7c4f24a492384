package runs

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
)

type recorder struct {
	mu   sync.Mutex
	msgs []events.Event
}

func (r *recorder) publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, e)
}

func (r *recorder) decoded(t *testing.T) []map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, 0, len(r.msgs))
	for _, e := range r.msgs {
		data, err := e.ToJSON()
		if err != nil {
			t.Fatalf("ToJSON: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		out = append(out, m)
	}
	return out
}

func TestMirror_RunLifecycle(t *testing.T) {
	rec := &recorder{}
	m := NewMirror(rec.publish)

	m.ProcessStarted(ports.ProcessStart{
		ExecutionID: "exec-1",
		Name:        "tests",
		ConfigID:    "cfg-1",
		ExecutorID:  "run",
		ProjectName: "demo",
	})
	m.ProcessOutput(ports.ProcessOutput{ExecutionID: "exec-1", Text: "ok\n", Stream: ports.StreamStdout})
	m.ProcessOutput(ports.ProcessOutput{ExecutionID: "exec-1", Text: "warn\n", Stream: ports.StreamStderr})
	m.ProcessOutput(ports.ProcessOutput{ExecutionID: "exec-1", Text: ""})

	if m.ActiveRuns() != 1 {
		t.Fatalf("ActiveRuns() = %d, want 1", m.ActiveRuns())
	}
	m.ProcessTerminated(ports.ProcessExit{ExecutionID: "exec-1"})
	if m.ActiveRuns() != 0 {
		t.Fatalf("ActiveRuns() after exit = %d, want 0", m.ActiveRuns())
	}

	msgs := rec.decoded(t)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	first, second := msgs[0], msgs[1]
	if first["type"] != "run_output" || first["name"] != "tests" || first["configId"] != "cfg-1" ||
		first["executorId"] != "run" || first["projectName"] != "demo" || first["stream"] != "stdout" {
		t.Errorf("first = %v", first)
	}
	if second["stream"] != "stderr" {
		t.Errorf("second stream = %v", second["stream"])
	}
	if first["runId"] == "" || first["runId"] != second["runId"] {
		t.Errorf("runId not stable: %v vs %v", first["runId"], second["runId"])
	}
	if first["runId"] == "exec-1" {
		t.Error("runId must not expose the host execution id")
	}
}

func TestMirror_OutputWithoutStart(t *testing.T) {
	rec := &recorder{}
	m := NewMirror(rec.publish)
	m.SetDefaultProject(func() string { return "fallback" })

	m.ProcessOutput(ports.ProcessOutput{ExecutionID: "x", Text: "hi", Stream: "weird"})

	msgs := rec.decoded(t)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0]["name"] != defaultRunName || msgs[0]["stream"] != "stdout" || msgs[0]["projectName"] != "fallback" {
		t.Errorf("msg = %v", msgs[0])
	}
}

func TestMirror_BuildLifecycle(t *testing.T) {
	rec := &recorder{}
	m := NewMirror(rec.publish)

	m.BuildStarted(ports.BuildStart{BuildID: "b1", Title: "Build demo", ProjectName: "demo"})
	m.BuildMessage(ports.BuildMessage{BuildID: "b1", Text: "main.go:1: oops", Severity: ports.SeverityError})
	m.BuildFinished(ports.BuildResult{BuildID: "b1", Success: false, Errors: 1})

	if m.ActiveBuilds() != 0 {
		t.Errorf("ActiveBuilds() = %d, want 0", m.ActiveBuilds())
	}

	msgs := rec.decoded(t)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0]["type"] != "build_status" || msgs[0]["status"] != "started" {
		t.Errorf("start = %v", msgs[0])
	}
	out := msgs[1]
	if out["type"] != "build_output" || out["level"] != "error" || out["title"] != "Build demo" || out["projectName"] != "demo" {
		t.Errorf("output = %v", out)
	}
	end := msgs[2]
	if end["status"] != "failed" || end["message"] != "Build failed (1 error, 0 warnings)" {
		t.Errorf("end = %v", end)
	}
	if out["buildId"] != msgs[0]["buildId"] || end["buildId"] != out["buildId"] {
		t.Error("buildId not stable across the build")
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		in   ports.BuildResult
		want string
	}{
		{ports.BuildResult{Success: true}, "Build succeeded"},
		{ports.BuildResult{Success: true, Warnings: 2}, "Build succeeded (0 errors, 2 warnings)"},
		{ports.BuildResult{Success: false, Message: "custom"}, "custom"},
	}
	for _, tt := range tests {
		if got := summary(tt.in); got != tt.want {
			t.Errorf("summary(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
