// AngelaMos | 2026
// notifications.go

package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/principal"
)

const (
	ServiceName       = "taskmanager.v1.Notifications"
	ConnectMethod     = "/" + ServiceName + "/Connect"
	channelPrefix     = "notifications:"
	subscriptionQueue = 64
)

const (
	OpPing         = "ping"
	OpPong         = "pong"
	OpWhoAmI       = "whoami"
	OpSubscribe    = "subscribe"
	OpSubscribed   = "subscribed"
	OpNotification = "notification"
	OpError        = "error"
)

type NotificationsServer interface {
	Connect(stream grpc.ServerStream) error
}

// ServiceDesc describes a bidirectional stream of google.protobuf.Struct
// frames. The default proto codec carries them without generated stubs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationsServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Connect",
		Handler:       connectHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "taskmanager/v1/notifications.proto",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(NotificationsServer).Connect(stream)
}

type Notification struct {
	Channel string
	Payload string
}

// Subscriber delivers a user's notifications until cancel is called or ctx
// ends.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan Notification, func(), error)
}

type RedisSubscriber struct {
	Client *redis.Client
}

func (s RedisSubscriber) Subscribe(
	ctx context.Context,
	userID string,
) (<-chan Notification, func(), error) {
	ps := s.Client.Subscribe(ctx, channelPrefix+userID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close() //nolint:errcheck // cleanup on subscribe failure
		return nil, nil, err
	}

	out := make(chan Notification, subscriptionQueue)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- Notification{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = ps.Close() }, nil
}

type Notifications struct {
	subs   Subscriber
	logger *slog.Logger
}

func NewNotifications(subs Subscriber, logger *slog.Logger) *Notifications {
	return &Notifications{subs: subs, logger: logger}
}

// Connect serves one connection. ping needs no principal; whoami and
// subscribe answer with an error frame when the handshake bound none.
func (n *Notifications) Connect(ss grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(ss.Context())

	conn := &connection{stream: ss}
	p, authed := principal.FromContext(ctx)

	var (
		wg         sync.WaitGroup
		subscribed bool
	)
	defer wg.Wait()
	defer cancel()

	for {
		frame := &structpb.Struct{}
		if err := ss.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		op := frame.GetFields()["op"].GetStringValue()
		switch op {
		case OpPing:
			if err := conn.send(map[string]any{"op": OpPong}); err != nil {
				return err
			}

		case OpWhoAmI:
			if !authed {
				if err := conn.sendError(op, "unauthenticated", "authentication required"); err != nil {
					return err
				}
				continue
			}
			if err := conn.send(whoAmIFrame(p)); err != nil {
				return err
			}

		case OpSubscribe:
			if !authed {
				if err := conn.sendError(op, "unauthenticated", "authentication required"); err != nil {
					return err
				}
				continue
			}
			if subscribed {
				if err := conn.sendError(op, "already_subscribed", "subscription already active"); err != nil {
					return err
				}
				continue
			}

			ch, stop, err := n.subs.Subscribe(ctx, p.Subject)
			if err != nil {
				n.logger.WarnContext(ctx, "notification subscribe failed",
					"user_id", p.Subject,
					"error", err,
				)
				if err := conn.sendError(op, "unavailable", "notifications unavailable"); err != nil {
					return err
				}
				continue
			}
			subscribed = true

			if err := conn.send(map[string]any{"op": OpSubscribed}); err != nil {
				stop()
				return err
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer stop()
				n.relay(ctx, conn, ch)
			}()

		default:
			if err := conn.sendError(op, "unknown_op", "unknown operation"); err != nil {
				return err
			}
		}
	}
}

func (n *Notifications) relay(ctx context.Context, conn *connection, ch <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			err := conn.send(map[string]any{
				"op":      OpNotification,
				"channel": msg.Channel,
				"payload": msg.Payload,
			})
			if err != nil {
				n.logger.DebugContext(ctx, "notification relay stopped", "error", err)
				return
			}
		}
	}
}

func whoAmIFrame(p *principal.Principal) map[string]any {
	roles := make([]any, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, r)
	}
	return map[string]any{
		"op":       OpWhoAmI,
		"subject":  p.Subject,
		"username": p.Username,
		"roles":    roles,
		"source":   p.Source,
	}
}

// connection serializes SendMsg, which grpc forbids calling concurrently.
type connection struct {
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (c *connection) send(fields map[string]any) error {
	frame, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(frame)
}

func (c *connection) sendError(op, code, message string) error {
	return c.send(map[string]any{
		"op":      OpError,
		"request": op,
		"code":    code,
		"message": message,
	})
}
