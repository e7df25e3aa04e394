package types

import "sensornode-go/bus"

// Retained topics published by the node.
var (
	TopicState  = bus.T("node", "state")
	TopicReport = bus.T("node", "report")
)

// TopicSensor is node/sensor/<id>.
func TopicSensor(id string) bus.Topic { return bus.T("node", "sensor", id) }
