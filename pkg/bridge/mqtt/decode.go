package mqtt

import (
	"fmt"
	"strings"

	"github.com/golang/protobuf/proto"
)

var topicMessages = []struct {
	name string
	new  func() proto.Message
}{
	{TopicState, func() proto.Message { return &LinkState{} }},
	{TopicNotify, func() proto.Message { return &Notification{} }},
	{TopicFileEvent, func() proto.Message { return &TransferEvent{} }},
	{TopicFOTAEvent, func() proto.Message { return &TransferEvent{} }},
	{TopicCall, func() proto.Message { return &RemoteCall{} }},
	{TopicResult, func() proto.Message { return &RemoteResult{} }},
}

// Decode parses a message published on a bridge topic. The topic may carry
// any prefix and device ID.
func Decode(topic string, payload []byte) (proto.Message, error) {
	for _, tm := range topicMessages {
		if topic == tm.name || strings.HasSuffix(topic, "/"+tm.name) {
			msg := tm.new()
			if err := proto.Unmarshal(payload, msg); err != nil {
				return nil, fmt.Errorf("%s: %w", topic, err)
			}
			return msg, nil
		}
	}
	return nil, fmt.Errorf("unknown topic %q", topic)
}
