package dish

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the SpaceX.API.Device messages the bridge uses, as
// declared in dish.proto.
const (
	fieldRequestID            protowire.Number = 1
	fieldRequestGetDeviceInfo protowire.Number = 1008
	fieldRequestGetLocation   protowire.Number = 1017

	fieldResponseID            protowire.Number = 1
	fieldResponseStatus        protowire.Number = 2
	fieldResponseGetDeviceInfo protowire.Number = 1004
	fieldResponseGetLocation   protowire.Number = 1017

	fieldStatusCode    protowire.Number = 1
	fieldStatusMessage protowire.Number = 2

	fieldDeviceInfoResponseInfo protowire.Number = 1

	fieldDeviceInfoID              protowire.Number = 1
	fieldDeviceInfoHardwareVersion protowire.Number = 2
	fieldDeviceInfoSoftwareVersion protowire.Number = 3

	fieldLocationLLA protowire.Number = 1

	fieldLLALat protowire.Number = 1
	fieldLLALon protowire.Number = 2
	fieldLLAAlt protowire.Number = 3
)

// requestKind selects which oneof arm of the Request envelope is set.
type requestKind int

const (
	requestGetDeviceInfo requestKind = iota + 1
	requestGetLocation
)

func (k requestKind) String() string {
	switch k {
	case requestGetDeviceInfo:
		return "get_device_info"
	case requestGetLocation:
		return "get_location"
	default:
		return fmt.Sprintf("request(%d)", int(k))
	}
}

// request is the Request envelope sent to Device/Handle.
type request struct {
	ID   uint64
	Kind requestKind
}

// response is the Response envelope returned by Device/Handle.
// At most one of DeviceInfo and Location is set.
type response struct {
	ID         uint64
	Status     Status
	DeviceInfo *DeviceInfo
	Location   *LLA
	// HasLocation is true when the get_location arm was present, even
	// without an lla position inside it.
	HasLocation bool
}

func (r *request) marshal() ([]byte, error) {
	var field protowire.Number
	switch r.Kind {
	case requestGetDeviceInfo:
		field = fieldRequestGetDeviceInfo
	case requestGetLocation:
		field = fieldRequestGetLocation
	default:
		return nil, fmt.Errorf("%w: unknown request kind %d", ErrMalformed, r.Kind)
	}

	var b []byte
	if r.ID != 0 {
		b = protowire.AppendTag(b, fieldRequestID, protowire.VarintType)
		b = protowire.AppendVarint(b, r.ID)
	}
	// The request arms are empty messages.
	b = protowire.AppendTag(b, field, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)
	return b, nil
}

func (r *request) unmarshal(b []byte) error {
	*r = request{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == fieldRequestID && typ == protowire.VarintType:
			id, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return parseErr(n)
			}
			r.ID = id
		case num == fieldRequestGetDeviceInfo && typ == protowire.BytesType:
			r.Kind = requestGetDeviceInfo
		case num == fieldRequestGetLocation && typ == protowire.BytesType:
			r.Kind = requestGetLocation
		}
		return nil
	})
}

func (r *response) marshal() ([]byte, error) {
	var b []byte
	if r.ID != 0 {
		b = protowire.AppendTag(b, fieldResponseID, protowire.VarintType)
		b = protowire.AppendVarint(b, r.ID)
	}

	if r.Status.Code != 0 || r.Status.Message != "" {
		var s []byte
		if r.Status.Code != 0 {
			s = protowire.AppendTag(s, fieldStatusCode, protowire.VarintType)
			s = protowire.AppendVarint(s, uint64(int64(r.Status.Code)))
		}
		s = appendString(s, fieldStatusMessage, r.Status.Message)
		b = appendMessage(b, fieldResponseStatus, s)
	}

	if r.DeviceInfo != nil {
		var d []byte
		d = appendString(d, fieldDeviceInfoID, r.DeviceInfo.ID)
		if r.DeviceInfo.HardwareVersion != nil {
			d = protowire.AppendTag(d, fieldDeviceInfoHardwareVersion, protowire.BytesType)
			d = protowire.AppendString(d, *r.DeviceInfo.HardwareVersion)
		}
		if r.DeviceInfo.SoftwareVersion != nil {
			d = protowire.AppendTag(d, fieldDeviceInfoSoftwareVersion, protowire.BytesType)
			d = protowire.AppendString(d, *r.DeviceInfo.SoftwareVersion)
		}
		var resp []byte
		resp = appendMessage(resp, fieldDeviceInfoResponseInfo, d)
		b = appendMessage(b, fieldResponseGetDeviceInfo, resp)
	}

	if r.HasLocation || r.Location != nil {
		var loc []byte
		if r.Location != nil {
			var lla []byte
			lla = appendDouble(lla, fieldLLALat, r.Location.Lat)
			lla = appendDouble(lla, fieldLLALon, r.Location.Lon)
			lla = appendDouble(lla, fieldLLAAlt, r.Location.Alt)
			loc = appendMessage(loc, fieldLocationLLA, lla)
		}
		b = appendMessage(b, fieldResponseGetLocation, loc)
	}

	return b, nil
}

func (r *response) unmarshal(b []byte) error {
	*r = response{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == fieldResponseID && typ == protowire.VarintType:
			id, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return parseErr(n)
			}
			r.ID = id
		case num == fieldResponseStatus && typ == protowire.BytesType:
			return r.Status.unmarshal(v)
		case num == fieldResponseGetDeviceInfo && typ == protowire.BytesType:
			info, err := unmarshalDeviceInfoResponse(v)
			if err != nil {
				return err
			}
			r.DeviceInfo = info
		case num == fieldResponseGetLocation && typ == protowire.BytesType:
			r.HasLocation = true
			lla, err := unmarshalLocationResponse(v)
			if err != nil {
				return err
			}
			r.Location = lla
		}
		return nil
	})
}

func (s *Status) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == fieldStatusCode && typ == protowire.VarintType:
			code, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return parseErr(n)
			}
			s.Code = int32(code) //nolint:gosec // int32 fields are sign-extended varints
		case num == fieldStatusMessage && typ == protowire.BytesType:
			s.Message = string(v)
		}
		return nil
	})
}

func unmarshalDeviceInfoResponse(b []byte) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldDeviceInfoResponseInfo || typ != protowire.BytesType {
			return nil
		}
		return walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if typ != protowire.BytesType {
				return nil
			}
			s := string(v)
			switch num {
			case fieldDeviceInfoID:
				info.ID = s
			case fieldDeviceInfoHardwareVersion:
				info.HardwareVersion = &s
			case fieldDeviceInfoSoftwareVersion:
				info.SoftwareVersion = &s
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func unmarshalLocationResponse(b []byte) (*LLA, error) {
	var lla *LLA
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldLocationLLA || typ != protowire.BytesType {
			return nil
		}
		lla = &LLA{}
		return walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
			if typ != protowire.Fixed64Type {
				return nil
			}
			f, n := protowire.ConsumeFixed64(v)
			if n < 0 {
				return parseErr(n)
			}
			switch num {
			case fieldLLALat:
				lla.Lat = math.Float64frombits(f)
			case fieldLLALon:
				lla.Lon = math.Float64frombits(f)
			case fieldLLAAlt:
				lla.Alt = math.Float64frombits(f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lla, nil
}

// walkFields calls fn for each top-level field of a message. For
// length-delimited fields v is the payload; for scalar fields v holds the
// raw encoded value, ready for the matching protowire.Consume function.
// Unknown fields are passed through and ignored by the callers.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		switch typ {
		case protowire.BytesType:
			payload, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			v, n = payload, m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			v, n = b[:m], m
		}

		if err := fn(num, typ, v); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func parseErr(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, f float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}
