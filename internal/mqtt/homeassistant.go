package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type haDevice struct {
	Identifiers []string `json:"ids,omitempty"`
	Name        string   `json:"name,omitempty"`
	SWVersion   string   `json:"sw,omitempty"`
}

type haEntity struct {
	UniqueID    string `json:"uniq_id,omitempty"`
	Name        string `json:"name,omitempty"`
	DeviceClass string `json:"dev_cla,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

// haCover has no position: the shutter only knows open and closed.
type haCover struct {
	haEntity
	StateTopic   string  `json:"stat_t"`
	CommandTopic string  `json:"cmd_t"`
	PayloadOpen  string  `json:"pl_open"`
	PayloadClose string  `json:"pl_cls"`
	PayloadStop  *string `json:"pl_stop"`
	StateOpen    string  `json:"stat_open"`
	StateClosed  string  `json:"stat_clsd"`
	Optimistic   bool    `json:"opt"`
}

type haSensor struct {
	haEntity
	StateTopic    string `json:"stat_t"`
	ValueTemplate string `json:"val_tpl"`
}

func haDeviceFor(bridge *Bridge) haDevice {
	return haDevice{
		Identifiers: []string{topicPrefix + "_" + bridge.shutter.Name()},
		Name:        bridge.shutter.Name(),
		SWVersion:   topicPrefix,
	}
}

func NewHACoverFromMQTTBridge(bridge *Bridge) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    bridge.shutter.Name(),
			Name:        bridge.shutter.Name(),
			DeviceClass: "shutter",
			Device:      haDeviceFor(bridge),
		},
		StateTopic:   bridge.StateTopic,
		CommandTopic: bridge.CommandTopic,
		PayloadOpen:  mqttOpenCmd,
		PayloadClose: mqttCloseCmd,
		StateOpen:    "open",
		StateClosed:  "closed",
	}
}

func NewHANextEventSensorFromMQTTBridge(bridge *Bridge) haSensor {
	return haSensor{
		haEntity: haEntity{
			UniqueID:    bridge.shutter.Name() + "_next_event",
			Name:        bridge.shutter.Name() + " next event",
			DeviceClass: "timestamp",
			Device:      haDeviceFor(bridge),
		},
		StateTopic:    bridge.NextEventTopic,
		ValueTemplate: "{{ value_json.at }}",
	}
}

// PublishHAAutoDiscovery announces the cover and its next event sensor.
func PublishHAAutoDiscovery(client Client, homeAssistantDiscoveryTopicPrefix string, bridge *Bridge) error {
	cover := NewHACoverFromMQTTBridge(bridge)
	sensor := NewHANextEventSensorFromMQTTBridge(bridge)

	configs := map[string]interface{}{
		fmt.Sprintf("%s/cover/%s/%s/config", homeAssistantDiscoveryTopicPrefix, topicPrefix, cover.UniqueID):   cover,
		fmt.Sprintf("%s/sensor/%s/%s/config", homeAssistantDiscoveryTopicPrefix, topicPrefix, sensor.UniqueID): sensor,
	}

	for topic, config := range configs {
		payload, err := json.Marshal(config)
		if err != nil {
			return err
		}

		if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
			return errors.Wrapf(token.Error(), "%s: home assistant discovery", topic)
		}
	}

	return nil
}
