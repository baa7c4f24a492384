package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brianly1003/ideremote/internal/terminal"
)

func decode(t *testing.T, m *Message) map[string]interface{} {
	t.Helper()
	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	return parsed
}

func TestMessage_Timestamp(t *testing.T) {
	before := time.Now()
	m := NewHelloAck("c1")
	after := time.Now()

	if m.Timestamp().Before(before) || m.Timestamp().After(after) {
		t.Errorf("Timestamp() = %v, want between %v and %v", m.Timestamp(), before, after)
	}
}

func TestMessage_ToJSONFlattensPayload(t *testing.T) {
	parsed := decode(t, NewHelloAck("conn-1"))

	if parsed["type"] != "hello_ack" {
		t.Errorf("type = %v, want hello_ack", parsed["type"])
	}
	if parsed["deviceId"] != "conn-1" {
		t.Errorf("deviceId = %v, want conn-1", parsed["deviceId"])
	}
	if len(parsed) != 2 {
		t.Errorf("unexpected fields: %v", parsed)
	}
}

func TestMessage_ToJSONNilAndEmptyPayload(t *testing.T) {
	data, err := New(TypeApprovalGranted, nil).ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"approval_granted"}` {
		t.Errorf("nil payload = %s", data)
	}

	data, err = New(TypeApprovalGranted, ApprovalPayload{}).ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"approval_granted"}` {
		t.Errorf("empty payload = %s", data)
	}
}

func TestMessage_ToJSONRejectsNonObjectPayload(t *testing.T) {
	if _, err := New(TypeError, []string{"a"}).ToJSON(); err == nil {
		t.Error("expected error for array payload")
	}
}

func TestNewTerminalOutput_StylesAlwaysArray(t *testing.T) {
	parsed := decode(t, NewTerminalOutput("s1", terminal.Snapshot{Output: "hi", CursorOffset: 2}))

	styles, ok := parsed["styles"].([]interface{})
	if !ok {
		t.Fatalf("styles = %#v, want array", parsed["styles"])
	}
	if len(styles) != 0 {
		t.Errorf("styles = %v, want empty", styles)
	}
	if parsed["cursorOffset"] != float64(2) {
		t.Errorf("cursorOffset = %v", parsed["cursorOffset"])
	}
}

func TestNewSessions_EmptyItems(t *testing.T) {
	parsed := decode(t, NewSessions(nil))

	items, ok := parsed["items"].([]interface{})
	if !ok || len(items) != 0 {
		t.Errorf("items = %#v, want empty array", parsed["items"])
	}
}

func TestNewError_OmitsEmptyFields(t *testing.T) {
	parsed := decode(t, NewError("", "boom", ""))

	if parsed["message"] != "boom" {
		t.Errorf("message = %v", parsed["message"])
	}
	if _, ok := parsed["code"]; ok {
		t.Error("code should be omitted")
	}
	if _, ok := parsed["requestType"]; ok {
		t.Error("requestType should be omitted")
	}
}

func TestNewIDEProgress_Fraction(t *testing.T) {
	half := 0.5
	parsed := decode(t, NewIDEProgress([]ProgressTask{
		{ID: "a", Kind: "build", Title: "Build", Fraction: &half},
		{ID: "b", Kind: "indexing", Title: "Indexing", Indeterminate: true},
	}))

	tasks := parsed["tasks"].([]interface{})
	first := tasks[0].(map[string]interface{})
	second := tasks[1].(map[string]interface{})
	if first["fraction"] != 0.5 {
		t.Errorf("fraction = %v", first["fraction"])
	}
	if _, ok := second["fraction"]; ok {
		t.Error("fraction should be omitted for indeterminate task")
	}
	if second["indeterminate"] != true {
		t.Errorf("indeterminate = %v", second["indeterminate"])
	}
}
