package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brianly1003/ideremote/internal/config"
	"github.com/brianly1003/ideremote/internal/pairing"
	"github.com/spf13/cobra"
)

var (
	pairJSON        bool
	pairURL         bool
	pairPNG         string
	pairExternalURL string
)

// pairCmd displays QR code for mobile pairing.
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Display QR code for mobile app pairing",
	Long: `Display a QR code that the ideremote mobile app scans to connect.

The QR code carries the server address from the configuration (or
--external-url) and the pairing token.

Examples:
  ideremote pair                 # Display QR code in terminal
  ideremote pair --json          # Output pairing info as JSON
  ideremote pair --url           # Output connection URLs only
  ideremote pair --png pair.png  # Write the QR code as an image`,
	RunE: runPair,
}

func init() {
	rootCmd.AddCommand(pairCmd)

	pairCmd.Flags().BoolVar(&pairJSON, "json", false, "output pairing info as JSON")
	pairCmd.Flags().BoolVar(&pairURL, "url", false, "output connection URLs only")
	pairCmd.Flags().StringVar(&pairPNG, "png", "", "write the QR code to this PNG file")
	pairCmd.Flags().StringVar(&pairExternalURL, "external-url", "", "override external URL for pairing output")
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	token, err := store.Token()
	if err != nil {
		return fmt.Errorf("failed to load pairing token: %w", err)
	}

	gen := newPairingGenerator(cfg, pairExternalURL)
	gen.SetToken(token)

	if _, err := getPairingFromServer(cfg); err == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "ideremote server is running")
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "No running ideremote server found; start one with 'ideremote start'")
	}

	out := cmd.OutOrStdout()
	switch {
	case pairJSON:
		return outputJSON(out, gen.Info())
	case pairURL:
		info := gen.Info()
		fmt.Fprintf(out, "WebSocket: %s\n", info.WebSocket)
		fmt.Fprintf(out, "HTTP:      %s\n", info.HTTP)
		return nil
	case pairPNG != "":
		data, err := gen.PNG(512)
		if err != nil {
			return fmt.Errorf("failed to render QR code: %w", err)
		}
		if err := os.WriteFile(pairPNG, data, 0600); err != nil {
			return err
		}
		fmt.Fprintf(out, "QR code written to %s\n", pairPNG)
		return nil
	default:
		return gen.Print(out)
	}
}

func newPairingGenerator(cfg *config.Config, externalURL string) *pairing.Generator {
	project := ""
	if len(cfg.Host.Projects) > 0 {
		project = cfg.Host.Projects[0].Name
	} else if cwd, err := os.Getwd(); err == nil {
		project = filepath.Base(cwd)
	}

	gen := pairing.NewGenerator(cfg.Server.Host, cfg.Server.Port, project)
	if externalURL != "" {
		gen.SetExternalURL(externalURL)
	} else if cfg.Server.ExternalURL != "" {
		gen.SetExternalURL(cfg.Server.ExternalURL)
	}
	return gen
}

func getPairingFromServer(cfg *config.Config) (*pairing.Info, error) {
	host := cfg.Server.Host
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "127.0.0.1"
	}
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)) + "/pair"

	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var info pairing.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	if info.HTTP == "" {
		return nil, fmt.Errorf("server returned no address")
	}
	return &info, nil
}

func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
