package registry

import (
	"fmt"

	"github.com/ros-tools/rosserial-bridge/internal/wire"
)

// TopicInfo is the rosserial_msgs/TopicInfo shape advertised by the
// device for each publisher or subscriber it owns.
type TopicInfo struct {
	TopicID     uint16
	TopicName   string
	MessageType string
	MD5Sum      string
	BufferSize  uint32
}

// ParseTopicInfo decodes a TopicInfo payload as serialized by rosserial:
// a uint16 topic id followed by three ROS strings (each a little-endian
// uint32 length prefix and its bytes) and a uint32 buffer size.
func ParseTopicInfo(payload []byte) (TopicInfo, error) {
	var info TopicInfo
	r := wire.NewReader(payload)

	id, err := r.Uint16()
	if err != nil {
		return TopicInfo{}, fmt.Errorf("topic_info: topic_id: %w", err)
	}
	info.TopicID = id

	name, err := r.String()
	if err != nil {
		return TopicInfo{}, fmt.Errorf("topic_info: topic_name: %w", err)
	}
	info.TopicName = name

	msgType, err := r.String()
	if err != nil {
		return TopicInfo{}, fmt.Errorf("topic_info: message_type: %w", err)
	}
	info.MessageType = msgType

	md5, err := r.String()
	if err != nil {
		return TopicInfo{}, fmt.Errorf("topic_info: md5sum: %w", err)
	}
	info.MD5Sum = md5

	bufSize, err := r.Uint32()
	if err != nil {
		return TopicInfo{}, fmt.Errorf("topic_info: buffer_size: %w", err)
	}
	info.BufferSize = bufSize

	return info, nil
}

// Marshal encodes a TopicInfo back to its wire shape. Not used by the
// engine (the device, never the host, advertises TopicInfo) but kept
// symmetric for tests.
func (t TopicInfo) Marshal() []byte {
	w := &wire.Writer{}
	w.Uint16(t.TopicID)
	w.String(t.TopicName)
	w.String(t.MessageType)
	w.String(t.MD5Sum)
	w.Uint32(t.BufferSize)
	return w.Bytes()
}
