package dlq

// Codec defines the serialization contract for DLQ payloads handled by
// typed replay handlers. The DLQ itself never interprets payload bytes;
// codecs only come into play when a handler decodes a payload for replay.
type Codec interface {
	// Marshal serializes a value to payload bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes payload bytes into a value.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// CodecName constants.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	case CodecNameJSON, "":
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}
