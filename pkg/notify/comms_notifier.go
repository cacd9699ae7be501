package notify

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/driftware/hookrelay/pkg/commsutil"
)

const commsNotifierLogPrefix = "notify:comms_notifier"

// CommsNotifierOpts configures CommsNotifier. Nil or zero values use defaults.
type CommsNotifierOpts struct {
	// GlobalSubject overrides the global notification subject.
	GlobalSubject string
}

// CommsNotifier publishes notifications to COMMS subjects.
type CommsNotifier struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsNotifier creates a new CommsNotifier. Pass nil for opts to use defaults.
func NewCommsNotifier(nc *comms.Conn, opts *CommsNotifierOpts) *CommsNotifier {
	globalSubject := commsutil.SubjectNotify
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsNotifier{nc: nc, globalSubject: globalSubject}
}

// Post publishes a Notification to both the granular and global subjects.
func (p *CommsNotifier) Post(_ context.Context, n *Notification) error {
	data, err := commsutil.EncodePayload(n)
	if err != nil {
		return fmt.Errorf("%s - failed to encode notification: %w", commsNotifierLogPrefix, err)
	}

	granularSubject := commsutil.BuildNotifySubject(n.Kind)
	if err := p.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsNotifierLogPrefix, granularSubject, err))
		return err
	}

	if err := p.nc.Publish(p.globalSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsNotifierLogPrefix, p.globalSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published notification for kind %s", commsNotifierLogPrefix, n.Kind))
	return nil
}
