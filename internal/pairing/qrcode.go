// Package pairing describes how a phone reaches this server, as JSON for
// GET /pair and as a QR code for the terminal.
package pairing

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/brianly1003/ideremote/internal/security"
	"github.com/skip2/go-qrcode"
)

// Info is the pairing payload. Token is only set for the QR code shown on
// the host; GET /pair never carries it.
type Info struct {
	WebSocket     string `json:"ws"`
	HTTP          string `json:"http"`
	Project       string `json:"project,omitempty"`
	Server        string `json:"server"`
	TokenRequired bool   `json:"tokenRequired"`
	Token         string `json:"token,omitempty"`
}

// Generator builds pairing info for one server.
type Generator struct {
	host        string
	port        int
	project     string
	server      string
	externalURL string
	token       string
	trusted     []*net.IPNet
}

// NewGenerator creates a generator for a server listening on host:port.
// Wildcard hosts are replaced by the first LAN address.
func NewGenerator(host string, port int, project string) *Generator {
	server, err := os.Hostname()
	if err != nil || server == "" {
		server = "ideremote"
	}
	return &Generator{
		host:    advertisedHost(host),
		port:    port,
		project: project,
		server:  server,
	}
}

// SetExternalURL overrides the advertised base URL, e.g. behind a tunnel
// or port forward.
func (g *Generator) SetExternalURL(u string) {
	g.externalURL = strings.TrimRight(strings.TrimSpace(u), "/")
}

// SetPort sets the advertised port, e.g. once a listener on port 0 is
// bound. ForRequest does not use it.
func (g *Generator) SetPort(port int) {
	g.port = port
}

// SetToken sets the token embedded in the QR code.
func (g *Generator) SetToken(token string) {
	g.token = token
}

// SetTrustedProxies sets the proxies whose forwarded headers ForRequest
// honors.
func (g *Generator) SetTrustedProxies(trusted []*net.IPNet) {
	g.trusted = trusted
}

func (g *Generator) baseURL() string {
	if g.externalURL != "" {
		return g.externalURL
	}
	return "http://" + net.JoinHostPort(g.host, strconv.Itoa(g.port))
}

// Info returns the pairing info including the token.
func (g *Generator) Info() *Info {
	base := g.baseURL()
	return &Info{
		WebSocket:     security.WebSocketURL(base),
		HTTP:          base,
		Project:       g.project,
		Server:        g.server,
		TokenRequired: true,
		Token:         g.token,
	}
}

// ForRequest returns the pairing info as seen by the client that sent r,
// without the token.
func (g *Generator) ForRequest(r *http.Request) *Info {
	base := g.externalURL
	if base == "" {
		base = security.BaseURL(r, g.trusted)
	}
	return &Info{
		WebSocket:     security.WebSocketURL(base),
		HTTP:          base,
		Project:       g.project,
		Server:        g.server,
		TokenRequired: true,
	}
}

// JSON returns Info as JSON.
func (g *Generator) JSON() (string, error) {
	data, err := json.Marshal(g.Info())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Terminal renders the QR code as block characters.
func (g *Generator) Terminal() (string, error) {
	data, err := g.JSON()
	if err != nil {
		return "", err
	}
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// PNG renders the QR code as a PNG image of size pixels.
func (g *Generator) PNG(size int) ([]byte, error) {
	data, err := g.JSON()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(data, qrcode.Medium, size)
}

// Print writes the QR code with an indent to w.
func (g *Generator) Print(w io.Writer) error {
	qr, err := g.Terminal()
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Scan with the ideremote app:")
	fmt.Fprintln(w)
	for _, line := range strings.Split(qr, "\n") {
		if line != "" {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func advertisedHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		return localIP()
	}
	return host
}

// localIP returns the first non-loopback IPv4 address.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "localhost"
}
