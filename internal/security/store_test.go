package security

import (
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_TokenIsLazyAndStable(t *testing.T) {
	s := openTestStore(t)

	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if !strings.HasPrefix(tok, TokenPrefix) || len(tok) < len(TokenPrefix)+40 {
		t.Errorf("Token() = %q", tok)
	}
	again, _ := s.Token()
	if again != tok {
		t.Errorf("Token() changed without regeneration")
	}
}

func TestStore_IsTokenValid(t *testing.T) {
	s := openTestStore(t)
	tok, _ := s.Token()

	tests := []struct {
		name      string
		presented string
		want      bool
	}{
		{"current", tok, true},
		{"padded", "  " + tok + " ", true},
		{"blank", "", false},
		{"spaces", "   ", false},
		{"wrong", tok + "x", false},
		{"prefix only", TokenPrefix, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsTokenValid(tt.presented); got != tt.want {
				t.Errorf("IsTokenValid(%q) = %v, want %v", tt.presented, got, tt.want)
			}
		})
	}
}

func TestStore_ApproveDevice(t *testing.T) {
	s := openTestStore(t)

	if s.IsDeviceApproved("phone") {
		t.Fatal("device approved before ApproveDevice")
	}
	if err := s.ApproveDevice("phone", "Pixel"); err != nil {
		t.Fatal(err)
	}
	// Idempotent; an empty name keeps the previous one.
	if err := s.ApproveDevice("phone", ""); err != nil {
		t.Fatal(err)
	}
	if !s.IsDeviceApproved("phone") {
		t.Error("device not approved")
	}
	if s.IsDeviceApproved("") {
		t.Error("blank device id approved")
	}

	devices, err := s.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].ID != "phone" || devices[0].Name != "Pixel" {
		t.Errorf("Devices() = %+v", devices)
	}

	if err := s.ApproveDevice(" ", "x"); err == nil {
		t.Error("expected error for blank device id")
	}
}

func TestStore_RegenerateTokenClearsDevices(t *testing.T) {
	s := openTestStore(t)
	old, _ := s.Token()
	_ = s.ApproveDevice("phone", "Pixel")

	fresh, err := s.RegenerateToken()
	if err != nil {
		t.Fatalf("RegenerateToken() error = %v", err)
	}
	if fresh == old {
		t.Fatal("token not rotated")
	}
	if s.IsTokenValid(old) {
		t.Error("old token still valid")
	}
	if !s.IsTokenValid(fresh) {
		t.Error("new token invalid")
	}
	if s.IsDeviceApproved("phone") {
		t.Error("approved device survived token rotation")
	}
}

func TestStore_RotationSeenBySharedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ideremote.db")
	server, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = server.Close() })
	cli, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	old, err := server.Token()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := cli.Token(); got != old {
		t.Fatalf("second store token = %q, want %q", got, old)
	}
	if !server.IsTokenValid(old) {
		t.Fatal("current token rejected")
	}

	fresh, err := cli.RegenerateToken()
	if err != nil {
		t.Fatalf("RegenerateToken() error = %v", err)
	}
	if server.IsTokenValid(old) {
		t.Error("rotated-out token still accepted by the other store")
	}
	if !server.IsTokenValid(fresh) {
		t.Error("rotated token rejected by the other store")
	}
}

func TestStore_RevokeAndClear(t *testing.T) {
	s := openTestStore(t)
	_ = s.ApproveDevice("a", "")
	_ = s.ApproveDevice("b", "")

	ok, err := s.RevokeDevice("a")
	if err != nil || !ok {
		t.Fatalf("RevokeDevice(a) = %v, %v", ok, err)
	}
	if ok, _ := s.RevokeDevice("a"); ok {
		t.Error("second revoke reported a device")
	}
	if err := s.ClearDevices(); err != nil {
		t.Fatal(err)
	}
	devices, _ := s.Devices()
	if len(devices) != 0 {
		t.Errorf("Devices() = %+v, want none", devices)
	}
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ideremote.db")

	s, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	tok, _ := s.Token()
	_ = s.ApproveDevice("phone", "Pixel")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if got, _ := reopened.Token(); got != tok {
		t.Errorf("token not persisted: %q != %q", got, tok)
	}
	if !reopened.IsDeviceApproved("phone") {
		t.Error("device not persisted")
	}
	if reopened.Path() != path {
		t.Errorf("Path() = %q", reopened.Path())
	}
}

func TestDefaultStorePath(t *testing.T) {
	if got := DefaultStorePath("/data"); got != filepath.Join("/data", "ideremote.db") {
		t.Errorf("DefaultStorePath() = %q", got)
	}
}
