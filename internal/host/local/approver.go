package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// Approval modes accepted by NewApprover.
const (
	ApprovalPrompt = "prompt"
	ApprovalAuto   = "auto"
	ApprovalDeny   = "deny"
)

// PolicyApprover answers every request the same way.
type PolicyApprover struct {
	Approve bool
}

func (a PolicyApprover) RequestApproval(ctx context.Context, _ ports.ApprovalRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.Approve, nil
}

// ConsoleApprover asks on the controlling terminal. Prompts are shown one
// at a time.
type ConsoleApprover struct {
	sem     chan struct{}
	out     io.Writer
	confirm func(label string) (bool, error)
}

// NewConsoleApprover creates an approver that prompts with promptui.
func NewConsoleApprover() *ConsoleApprover {
	return &ConsoleApprover{
		sem:     make(chan struct{}, 1),
		out:     os.Stderr,
		confirm: promptYesNo,
	}
}

// RequestApproval shows a yes/no prompt. When ctx ends first a notice is
// printed and the request fails with ctx's error. A blocked stdin read
// cannot be interrupted, so the expired prompt stays on screen and keeps
// the console until it is answered; that answer is discarded and the next
// request is prompted after it.
func (a *ConsoleApprover) RequestApproval(ctx context.Context, req ports.ApprovalRequest) (bool, error) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() { <-a.sem }()
		ok, err := a.confirm(approvalLabel(req))
		done <- answer{ok, err}
	}()

	select {
	case ans := <-done:
		return ans.ok, ans.err
	case <-ctx.Done():
		fmt.Fprintf(a.out, "\nApproval request from %s expired; the answer to this prompt will be ignored.\n", deviceLabel(req))
		return false, ctx.Err()
	}
}

func deviceLabel(req ports.ApprovalRequest) string {
	if req.DeviceName == "" {
		return req.DeviceID
	}
	return req.DeviceName
}

func approvalLabel(req ports.ApprovalRequest) string {
	label := fmt.Sprintf("Allow %q (%s)", deviceLabel(req), req.DeviceID)
	if req.RemoteAddr != "" {
		label += " from " + req.RemoteAddr
	}
	return label + " to control this machine"
}

func promptYesNo(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	result = strings.ToLower(strings.TrimSpace(result))
	return result == "y" || result == "yes", nil
}

// Interactive reports whether stdin is a terminal a prompt can use.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// NewApprover returns the approver for mode. A prompt without a terminal
// falls back to denying, and reports that it did.
func NewApprover(mode string) (approver ports.Approver, fellBack bool, err error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ApprovalPrompt:
		if !Interactive() {
			return PolicyApprover{Approve: false}, true, nil
		}
		return NewConsoleApprover(), false, nil
	case ApprovalAuto:
		return PolicyApprover{Approve: true}, false, nil
	case ApprovalDeny:
		return PolicyApprover{Approve: false}, false, nil
	default:
		return nil, false, fmt.Errorf("unknown approval mode %q", mode)
	}
}
