package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttercontrol/internal/control"
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	topicPrefix = "shuttercontrol"

	mqttOpenCmd  = "open"
	mqttCloseCmd = "close"

	defaultPublishTimeout = 5 * time.Second
)

// Client is the subset of the paho client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Bridge mirrors the shutter and its schedule to MQTT and accepts commands.
type Bridge struct {
	mqtt    Client
	shutter shutter.Shutter
	ctrl    *control.Controller

	StateTopic     string
	NextEventTopic string
	SettingsTopic  string
	ReplyTopic     string

	CommandTopic     string
	TextCommandTopic string

	publishTimeout time.Duration
}

func NewBridge(client Client, sh shutter.Shutter, ctrl *control.Controller) *Bridge {
	bridge := &Bridge{mqtt: client, shutter: sh, ctrl: ctrl, publishTimeout: defaultPublishTimeout}
	bridge.StateTopic = topic(sh, "state")
	bridge.NextEventTopic = topic(sh, "next_event")
	bridge.SettingsTopic = topic(sh, "settings")
	bridge.ReplyTopic = topic(sh, "reply")
	bridge.CommandTopic = topic(sh, "set")
	bridge.TextCommandTopic = topic(sh, "command")

	sh.OnUpdate(bridge.onShutterUpdateHandler())

	return bridge
}

func topic(sh shutter.Shutter, name string) string {
	return fmt.Sprintf("%s/%s/%s", topicPrefix, sh.Name(), name)
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.CommandTopic, b.TextCommandTopic); token.WaitTimeout(b.publishTimeout) && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.shutter.Name(), token.Error())
		}
	}()

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.shutter.Name())

	if token := b.mqtt.Subscribe(b.TextCommandTopic, 0, b.onTextCommandHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT text command topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT text command topic subscribed", b.shutter.Name())

	return nil
}

// OnSchedulerUpdate publishes the next event and the settings it was
// computed from. It does not block the scheduler.
func (b *Bridge) OnSchedulerUpdate(u scheduler.Update) {
	go func() {
		if err := b.PublishStatus(context.Background()); err != nil {
			logrus.Error(err)
		}
	}()
}

func (b *Bridge) PublishStatus(ctx context.Context) error {
	st, err := b.ctrl.Status(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: MQTT status", b.shutter.Name())
	}

	if err := b.publishJSON(b.NextEventTopic, nextEventPayload(st.Next)); err != nil {
		return errors.Wrapf(err, "%s: MQTT next event publish failed", b.shutter.Name())
	}
	if err := b.publishJSON(b.SettingsTopic, control.NewSettingsView(st.Settings)); err != nil {
		return errors.Wrapf(err, "%s: MQTT settings publish failed", b.shutter.Name())
	}

	return nil
}

type nextEvent struct {
	Action string     `json:"action"`
	At     *time.Time `json:"at"`
}

func nextEventPayload(ev *scheduler.Event) nextEvent {
	if ev == nil {
		return nextEvent{Action: "none"}
	}
	at := ev.At
	return nextEvent{Action: string(ev.Action), At: &at}
}

func (b *Bridge) publishJSON(topic string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return b.publish(topic, true, payload)
}

// publish gives up after publishTimeout so a stalled broker never blocks
// the caller for long.
func (b *Bridge) publish(topic string, retained bool, payload interface{}) error {
	token := b.mqtt.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(b.publishTimeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}

	return token.Error()
}

func (b *Bridge) onShutterUpdateHandler() shutter.ShutterUpdateHandler {
	return func(state shutter.State) {
		if err := b.publish(b.StateTopic, true, string(state)); err != nil {
			logrus.Errorf("%s: MQTT state publish failed: %s", b.shutter.Name(), err)
		}
	}
}

func (b *Bridge) onCommandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		var cmd control.Command
		switch payload := strings.ToLower(string(msg.Payload())); payload {
		case mqttOpenCmd:
			cmd.Kind = control.KindOpen
		case mqttCloseCmd:
			cmd.Kind = control.KindClose
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.shutter.Name(), payload)
			return
		}

		if _, err := b.ctrl.Execute(ctx, cmd); err != nil {
			logrus.Errorf("%s: MQTT command failed: %s", b.shutter.Name(), err)
		}
	}
}

func (b *Bridge) onTextCommandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		replies := b.ctrl.Handle(ctx, string(msg.Payload()))

		texts := make([]string, 0, len(replies))
		for _, r := range replies {
			texts = append(texts, r.Text)
		}

		if err := b.publish(b.ReplyTopic, false, strings.Join(texts, "\n\n")); err != nil {
			logrus.Errorf("%s: MQTT reply publish failed: %s", b.shutter.Name(), err)
		}
	}
}

// RestoreState seeds a stateless shutter with the last retained state.
func (b *Bridge) RestoreState() error {
	sh, ok := b.shutter.(shutter.StatelessShutter)
	if !ok {
		logrus.Warnf("%s: MQTT state restore: shutter is not stateless", b.shutter.Name())
		return nil
	}

	var once sync.Once
	restoreHandler := func(c mqtt.Client, msg mqtt.Message) {
		once.Do(func() {
			defer func() {
				if token := b.mqtt.Unsubscribe(b.StateTopic); token.Wait() && token.Error() != nil {
					logrus.Errorf("%s: MQTT state restore topic unsubscribe failed: %s", b.shutter.Name(), token.Error())
					return
				}
				logrus.Debugf("%s: MQTT state restore topic unsubscribed", b.shutter.Name())
			}()

			state, err := shutter.ParseState(string(msg.Payload()))
			if err != nil {
				logrus.Errorf("%s: MQTT state restore failed: %s", b.shutter.Name(), err)
				return
			}
			if err := sh.ResetState(state); err != nil {
				logrus.Errorf("%s: MQTT state restore failed: %s", b.shutter.Name(), err)
				return
			}

			logrus.Infof("%s: MQTT state restored to %s", b.shutter.Name(), state)
		})
	}

	if token := b.mqtt.Subscribe(b.StateTopic, 0, restoreHandler); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT state restore topic subscription failed", b.shutter.Name())
	}

	return nil
}
