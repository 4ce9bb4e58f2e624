package main

import (
	"context"
	"encoding/json"
	"sync"

	"goaltrack/common/logger"
	"goaltrack/common/ws"
	"goaltrack/notify"
	"goaltrack/worker"
)

// channelPlatform is the daemon's notification surface. The daemon has no
// OS permission dialog of its own: the foreground app negotiates permission
// with its host and only then connects to this worker, so the daemon side
// mirrors granted. Rendering pushes the payload into every connected page
// over the channel; with no page connected the payload is logged so the
// event stays traceable.
type channelPlatform struct {
	log *logger.Logger

	mu     sync.Mutex
	server *worker.ChannelServer
}

func newChannelPlatform(log *logger.Logger) *channelPlatform {
	return &channelPlatform{log: log}
}

// setServer attaches the channel server once it exists. The platform is
// created before the server because the dispatch service needs it first.
func (p *channelPlatform) setServer(server *worker.ChannelServer) {
	p.mu.Lock()
	p.server = server
	p.mu.Unlock()
}

func (p *channelPlatform) Permission() notify.PermissionState {
	return notify.PermissionGranted
}

func (p *channelPlatform) RequestPermission(ctx context.Context) (notify.PermissionState, error) {
	return notify.PermissionGranted, nil
}

func (p *channelPlatform) ShowNotification(payload notify.Payload) error {
	return p.Render(payload)
}

// Render satisfies the worker agent's renderer contract.
func (p *channelPlatform) Render(payload notify.Payload) error {
	p.mu.Lock()
	server := p.server
	p.mu.Unlock()

	if server == nil {
		p.log.Debug("No channel server yet; dropping notification", "tag", payload.Tag)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	server.PostToApp(ws.Message{
		Type: ws.MessageTypeShowNotification,
		Data: data,
	})
	p.log.Info("Notification dispatched", "tag", payload.Tag, "title", payload.Title)
	return nil
}
