package app

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

func (a *App) printConnectionInfo(w io.Writer) {
	info := a.pairing.Info()

	project := info.Project
	if project == "" {
		project = "(in-memory terminals)"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                     ideremote ready                        ║")
	fmt.Fprintln(w, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Project:    %-46s ║\n", truncateString(project, 46))
	fmt.Fprintf(w, "║  Approval:   %-46s ║\n", truncateString(a.cfg.Security.ApprovalMode, 46))
	fmt.Fprintln(w, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  HTTP:       %-46s ║\n", truncateString(info.HTTP, 46))
	fmt.Fprintf(w, "║  WebSocket:  %-46s ║\n", truncateString(info.WebSocket, 46))
	if a.cfg.Server.ExternalURL != "" {
		fmt.Fprintln(w, "║  (using external URL for port forwarding)                  ║")
	}
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════╝")

	if err := a.pairing.Print(w); err != nil {
		log.Warn().Err(err).Msg("failed to render pairing QR code")
	}
}

// truncateString shortens s to maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
