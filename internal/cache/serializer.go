package cache

import (
	"github.com/bytedance/sonic"
	"github.com/ugorji/go/codec"
	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Serializer turns cache values into payload bytes.
type Serializer interface {
	Encoding() enum.SerializationEncoding
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// NewSerializer returns the serializer for encoding.
func NewSerializer(encoding enum.SerializationEncoding) (Serializer, error) {
	switch encoding {
	case enum.SerializationEncodingMsgPack:
		h := &codec.MsgpackHandle{}
		h.WriteExt = true
		return msgpackSerializer{h: h}, nil
	case enum.SerializationEncodingJSON:
		return jsonSerializer{}, nil
	default:
		return nil, errors.Wrap(exception.ErrUnsupportedEncoding, "new serializer").With("encoding", encoding)
	}
}

type msgpackSerializer struct {
	h *codec.MsgpackHandle
}

func (msgpackSerializer) Encoding() enum.SerializationEncoding {
	return enum.SerializationEncodingMsgPack
}

func (s msgpackSerializer) Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, s.h).Encode(v); err != nil {
		return nil, errors.Wrap(err, "msgpack encode")
	}
	return out, nil
}

func (s msgpackSerializer) Unmarshal(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, s.h).Decode(v); err != nil {
		return errors.Wrap(err, "msgpack decode")
	}
	return nil
}

type jsonSerializer struct{}

func (jsonSerializer) Encoding() enum.SerializationEncoding {
	return enum.SerializationEncodingJSON
}

func (jsonSerializer) Marshal(v any) ([]byte, error) {
	out, err := sonic.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json encode")
	}
	return out, nil
}

func (jsonSerializer) Unmarshal(data []byte, v any) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "json decode")
	}
	return nil
}
