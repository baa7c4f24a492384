package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/commands"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/server/common"
)

// handlerFunc handles one approved command. A returned error is reported to
// the client as an internal_error.
type handlerFunc func(st *ConnState, cmd *commands.Command) error

func (b *Bridge) handlers() map[commands.CommandType]handlerFunc {
	return map[commands.CommandType]handlerFunc{
		commands.CommandListSessions:          b.handleListSessions,
		commands.CommandStartTerminal:         b.handleStartTerminal,
		commands.CommandTerminalInput:         b.handleTerminalInput,
		commands.CommandTerminalSnapshot:      b.handleTerminalSnapshot,
		commands.CommandTerminalSubscribe:     b.handleTerminalSubscribe,
		commands.CommandTerminalUnsubscribe:   b.handleTerminalUnsubscribe,
		commands.CommandCloseTerminal:         b.handleCloseTerminal,
		commands.CommandBuildProject:          b.handleBuildProject,
		commands.CommandListIDEProgress:       b.handleListIDEProgress,
		commands.CommandListRunConfigurations: b.handleListRunConfigurations,
		commands.CommandRunConfiguration:      b.handleRunConfiguration,
	}
}

// OnMessage dispatches one inbound message. It never lets a handler failure
// reach the transport: errors and panics become an error reply.
func (b *Bridge) OnMessage(c common.Conn, data []byte) {
	st, ok := b.conns.Get(c.ID())
	if !ok {
		return
	}

	var requestType string
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic",
				"conn_id", c.ID(),
				"type", requestType,
				"panic", r)
			b.send(st, events.NewError(domain.ErrCodeInternalError, fmt.Sprint(r), requestType))
		}
	}()

	cmd, err := commands.ParseCommand(data)
	if err != nil {
		b.send(st, events.NewError(domain.ErrCodeBadRequest, "invalid message: "+err.Error(), ""))
		return
	}
	requestType = string(cmd.Type)

	if cmd.Type == commands.CommandHello {
		hello, err := cmd.ParseHelloPayload()
		if err != nil {
			b.send(st, events.NewError(domain.ErrCodeBadRequest, err.Error(), requestType))
			return
		}
		b.handleHello(st, hello.DeviceID, hello.DeviceName)
		return
	}

	if !st.Approved() {
		b.gate(st)
		return
	}

	handler, ok := b.handlers()[cmd.Type]
	if !ok {
		b.send(st, events.NewError(domain.ErrCodeUnknownType, "unknown message type: "+requestType, requestType))
		return
	}

	b.logger.Debug("handling command", "conn_id", c.ID(), "type", requestType)
	if err := handler(st, cmd); err != nil {
		b.logger.Warn("command failed", "conn_id", c.ID(), "type", requestType, "error", err)
		b.send(st, events.NewError(domain.ErrCodeInternalError, err.Error(), requestType))
	}
}

func (b *Bridge) handleListSessions(st *ConnState, _ *commands.Command) error {
	list := b.sessions.List()
	items := make([]events.SessionInfo, 0, len(list))
	for _, s := range list {
		items = append(items, s.Info())
	}
	b.send(st, events.NewSessions(items))
	return nil
}

func (b *Bridge) handleStartTerminal(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseStartTerminalPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}

	s, err := b.sessions.Create(b.ctx, p.Name, p.WorkingDirectory)
	if err != nil {
		b.send(st, events.NewTerminalError("", errorMessage(err)))
		return nil
	}
	b.send(st, events.NewTerminalStarted(s.Info()))
	return nil
}

func (b *Bridge) handleTerminalInput(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseTerminalInputPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}
	if err := b.sessions.SendInput(p.SessionID, p.Data); err != nil {
		b.send(st, events.NewTerminalError(p.SessionID, err.Error()))
	}
	return nil
}

func (b *Bridge) handleTerminalSnapshot(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseTerminalSnapshotPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}
	snap, err := b.sessions.Snapshot(p.SessionID, p.Lines)
	if err != nil {
		b.send(st, events.NewTerminalError(p.SessionID, err.Error()))
		return nil
	}
	b.send(st, events.NewTerminalOutput(p.SessionID, snap))
	return nil
}

// handleTerminalSubscribe registers the subscription and pushes the current
// snapshot right away, outside the diff loop.
func (b *Bridge) handleTerminalSubscribe(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseSessionPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}
	snap, err := b.sessions.Snapshot(p.SessionID, b.cfg.SnapshotLines)
	if err != nil {
		b.send(st, events.NewTerminalError(p.SessionID, err.Error()))
		return nil
	}

	sole := b.subs.Subscribe(st.ID(), p.SessionID)
	if b.send(st, events.NewTerminalOutput(p.SessionID, snap)) && sole {
		b.subs.SetLast(p.SessionID, snap)
	}
	return nil
}

func (b *Bridge) handleTerminalUnsubscribe(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseSessionPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}
	b.subs.Unsubscribe(st.ID(), p.SessionID)
	return nil
}

func (b *Bridge) handleCloseTerminal(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseSessionPayload()
	if err != nil {
		b.send(st, events.NewTerminalError("", err.Error()))
		return nil
	}
	if err := b.sessions.Close(p.SessionID); err != nil {
		b.send(st, events.NewTerminalError(p.SessionID, err.Error()))
		return nil
	}
	b.send(st, events.NewTerminalClosed(p.SessionID))
	return nil
}

// handleBuildProject acknowledges the request. The build's own lifecycle is
// broadcast by the run mirror.
func (b *Bridge) handleBuildProject(st *ConnState, _ *commands.Command) error {
	if b.host == nil {
		b.send(st, events.NewBuildStatus(events.StatusFailed, domain.ErrNoProject.Error(), "", ""))
		return nil
	}
	projects := b.host.Projects()
	if len(projects) == 0 {
		b.send(st, events.NewBuildStatus(events.StatusFailed, domain.ErrNoProject.Error(), "", ""))
		return nil
	}
	project := projects[0]

	if err := b.host.Build(b.ctx, project); err != nil {
		b.send(st, events.NewBuildStatus(events.StatusFailed, err.Error(), "", project.Name))
		return nil
	}
	b.send(st, events.NewBuildStatus(events.StatusRequested, "Build requested", "", project.Name))
	return nil
}

func (b *Bridge) handleListIDEProgress(st *ConnState, _ *commands.Command) error {
	b.send(st, events.NewIDEProgress(b.tracker.Snapshot()))
	return nil
}

func (b *Bridge) handleListRunConfigurations(st *ConnState, _ *commands.Command) error {
	b.send(st, b.runConfigurationsMessage())
	return nil
}

func (b *Bridge) runConfigurationsMessage() events.Event {
	cfgs, err := b.runConfigurations(b.ctx)
	if err != nil {
		b.logger.Warn("listing run configurations failed", "error", err)
	}
	items := make([]events.RunConfigurationInfo, 0, len(cfgs))
	for _, c := range cfgs {
		items = append(items, events.RunConfigurationInfo{
			ID:          c.ID,
			Name:        c.Name,
			Type:        c.Type,
			ProjectName: c.ProjectName,
		})
	}
	return events.NewRunConfigurations(items)
}

func (b *Bridge) runConfigurations(ctx context.Context) ([]ports.RunConfiguration, error) {
	if b.host == nil {
		return nil, nil
	}
	return b.host.RunConfigurations(ctx)
}

func (b *Bridge) handleRunConfiguration(st *ConnState, cmd *commands.Command) error {
	p, err := cmd.ParseRunConfigurationPayload()
	if err != nil {
		b.send(st, events.NewRunConfigurationStatus(events.StatusFailed, "", "", err.Error()))
		return nil
	}

	cfg, err := b.findRunConfiguration(p.ID)
	if err != nil {
		b.send(st, events.NewRunConfigurationStatus(events.StatusFailed, p.ID, "", err.Error()))
		return nil
	}

	if _, err := b.host.Run(b.ctx, cfg); err != nil {
		b.send(st, events.NewRunConfigurationStatus(events.StatusFailed, cfg.ID, cfg.Name, err.Error()))
		return nil
	}
	b.send(st, events.NewRunConfigurationStatus(events.StatusStarted, cfg.ID, cfg.Name, ""))
	return nil
}

func (b *Bridge) findRunConfiguration(id string) (ports.RunConfiguration, error) {
	if b.host == nil {
		return ports.RunConfiguration{}, domain.ErrRunConfigNotFound
	}
	cfgs, err := b.host.RunConfigurations(b.ctx)
	if err != nil {
		return ports.RunConfiguration{}, err
	}
	for _, c := range cfgs {
		if c.ID == id {
			return c, nil
		}
	}
	return ports.RunConfiguration{}, domain.ErrRunConfigNotFound
}

// errorMessage unwraps host errors to the message a client should see.
func errorMessage(err error) string {
	var hostErr *domain.HostError
	if errors.As(err, &hostErr) {
		return hostErr.Err.Error()
	}
	return err.Error()
}
