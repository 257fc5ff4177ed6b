package engine

// Control topic ids recognized on ID_PUBLISHER..ID_TX_STOP. Any id not
// listed here is a data id, routed to a registered publisher.
const (
	idPublisher         uint16 = 0
	idSubscriber        uint16 = 1
	idServiceServer     uint16 = 2
	idServiceServerRole uint16 = 3
	idServiceClient     uint16 = 4
	idServiceClientRole uint16 = 5
	idParameterRequest  uint16 = 6
	idLog               uint16 = 7
	idTime              uint16 = 10
	idTxStop            uint16 = 11
)

// requestTopicsProbe is the 6-byte payload of the raw-frame request-topics
// probe, sent verbatim (no topic id, length, or checksum) via
// codec.EncodeRaw. The device answers by advertising every topic it owns
// through ID_PUBLISHER/ID_SUBSCRIBER frames.
var requestTopicsProbe = []byte{0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}

// emptyParameterResponse is the wire shape of an empty
// rosserial_msgs/RequestParamResponse: three zero-length arrays
// (ints, floats, strings), each a uint32 count of zero.
var emptyParameterResponse = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

const (
	defaultWriteQueueSize = 1024
	defaultReadBufSize    = 4096
	minSubscriberQueueCap = 1000
	subscriberQueueFactor = 4
)

func subscriberQueueCapacity(bufferSize uint32) int {
	n := int(bufferSize) * subscriberQueueFactor
	if n < minSubscriberQueueCap {
		return minSubscriberQueueCap
	}
	return n
}
