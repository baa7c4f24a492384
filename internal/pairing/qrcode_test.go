package pairing

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerator_Info(t *testing.T) {
	gen := NewGenerator("192.168.1.100", 8766, "demo")
	gen.SetToken("ider_p_secret")

	info := gen.Info()

	if info.WebSocket != "ws://192.168.1.100:8766/ws" {
		t.Errorf("expected ws://192.168.1.100:8766/ws, got %s", info.WebSocket)
	}
	if info.HTTP != "http://192.168.1.100:8766" {
		t.Errorf("expected http://192.168.1.100:8766, got %s", info.HTTP)
	}
	if info.Project != "demo" || !info.TokenRequired || info.Token != "ider_p_secret" {
		t.Errorf("info = %+v", info)
	}
	if info.Server == "" {
		t.Error("server name is empty")
	}
}

func TestGenerator_ExternalURL(t *testing.T) {
	gen := NewGenerator("localhost", 8766, "demo")
	gen.SetExternalURL("https://example.com/")

	info := gen.Info()

	if info.WebSocket != "wss://example.com/ws" {
		t.Errorf("expected wss://example.com/ws, got %s", info.WebSocket)
	}
	if info.HTTP != "https://example.com" {
		t.Errorf("expected https://example.com, got %s", info.HTTP)
	}
}

func TestGenerator_WildcardHost(t *testing.T) {
	gen := NewGenerator("0.0.0.0", 8766, "demo")
	if strings.Contains(gen.Info().HTTP, "0.0.0.0") {
		t.Errorf("wildcard host advertised: %s", gen.Info().HTTP)
	}
}

func TestGenerator_ForRequestOmitsToken(t *testing.T) {
	gen := NewGenerator("localhost", 8766, "demo")
	gen.SetToken("ider_p_secret")

	req := httptest.NewRequest("GET", "http://10.1.2.3:8766/pair", nil)
	info := gen.ForRequest(req)

	if info.HTTP != "http://10.1.2.3:8766" || info.WebSocket != "ws://10.1.2.3:8766/ws" {
		t.Errorf("info = %+v", info)
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") || strings.Contains(string(data), `"token"`) {
		t.Errorf("token leaked: %s", data)
	}
}

func TestGenerator_QRCode(t *testing.T) {
	gen := NewGenerator("localhost", 8766, "demo")

	qr, err := gen.Terminal()
	if err != nil {
		t.Fatalf("Terminal() error = %v", err)
	}
	if len(qr) == 0 {
		t.Error("empty QR code")
	}

	png, err := gen.PNG(128)
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("PNG() did not return a PNG image")
	}

	var buf bytes.Buffer
	if err := gen.Print(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Scan with the ideremote app") {
		t.Errorf("Print() output = %q", buf.String())
	}
}
