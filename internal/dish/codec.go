package dish

import (
	"fmt"
)

// codecName keeps the standard application/grpc+proto content type.
const codecName = "proto"

// codec implements encoding.Codec for the dish envelope types.
type codec struct{}

func (codec) Name() string {
	return codecName
}

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *request:
		return m.marshal()
	case *response:
		return m.marshal()
	default:
		return nil, fmt.Errorf("%w: cannot marshal %T", ErrMalformed, v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *request:
		return m.unmarshal(data)
	case *response:
		return m.unmarshal(data)
	default:
		return fmt.Errorf("%w: cannot unmarshal into %T", ErrMalformed, v)
	}
}
