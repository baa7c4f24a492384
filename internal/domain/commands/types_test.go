package commands

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"terminal_input","sessionId":"s1","data":"ls\n"}`))
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if cmd.Type != CommandTerminalInput {
		t.Errorf("Type = %q", cmd.Type)
	}

	payload, err := cmd.ParseTerminalInputPayload()
	if err != nil {
		t.Fatalf("ParseTerminalInputPayload() error = %v", err)
	}
	if payload.SessionID != "s1" || payload.Data != "ls\n" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		missing bool
	}{
		{"invalid json", `{"type":`, false},
		{"not an object", `[1,2]`, false},
		{"missing type", `{"sessionId":"x"}`, true},
		{"blank type", `{"type":"  "}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.missing != errors.Is(err, ErrMissingType) {
				t.Errorf("err = %v, missing type = %v", err, tt.missing)
			}
		})
	}
}

func TestParseHelloPayload_Trims(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"hello","deviceId":" phone-1 ","deviceName":"Pixel "}`))
	if err != nil {
		t.Fatal(err)
	}
	hello, err := cmd.ParseHelloPayload()
	if err != nil {
		t.Fatal(err)
	}
	if hello.DeviceID != "phone-1" || hello.DeviceName != "Pixel" {
		t.Errorf("hello = %+v", hello)
	}
}

func TestParseTerminalSnapshotPayload_WrongType(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"terminal_snapshot","sessionId":"s","lines":"ten"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cmd.ParseTerminalSnapshotPayload(); err == nil {
		t.Error("expected decode error for non-numeric lines")
	}
}
