package wire

import (
	"fmt"
)

const (
	TagNewSession  uint8 = 0x01
	TagJoinSession uint8 = 0x02

	tagOk      uint8 = 0x01
	tagFailure uint8 = 0x02
)

// Reason explains why a control request was refused.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonIdInUse
	ReasonInvalidRequestFormat
	ReasonInvalidIdFormat
	ReasonInvalidPassword
	ReasonIdDoesntExist
	ReasonWrongPassword
	ReasonSessionFull
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonIdInUse:
		return "id in use"
	case ReasonInvalidRequestFormat:
		return "invalid request format"
	case ReasonInvalidIdFormat:
		return "invalid id format"
	case ReasonInvalidPassword:
		return "invalid password"
	case ReasonIdDoesntExist:
		return "id doesn't exist"
	case ReasonWrongPassword:
		return "wrong password"
	case ReasonSessionFull:
		return "session full"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

func (r Reason) valid() bool {
	return r > ReasonNone && r <= ReasonSessionFull
}

// Error lets a Reason travel as an error value.
func (r Reason) Error() string {
	return r.String()
}

type NewSessionRequest struct {
	Id          []byte
	Password    []byte
	PlayerLimit uint8
}

type JoinSessionRequest struct {
	Id       []byte
	Password []byte
}

// ServerRequest is the first message on every connection. Exactly one of the
// fields is set.
type ServerRequest struct {
	NewSession  *NewSessionRequest
	JoinSession *JoinSessionRequest
}

func (r ServerRequest) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	switch {
	case r.NewSession != nil:
		e.u8(TagNewSession)
		e.bytes(r.NewSession.Id)
		e.bytes(r.NewSession.Password)
		e.u8(r.NewSession.PlayerLimit)
	case r.JoinSession != nil:
		e.u8(TagJoinSession)
		e.bytes(r.JoinSession.Id)
		e.bytes(r.JoinSession.Password)
	default:
		return nil, fmt.Errorf("empty server request")
	}
	return e.buf, nil
}

func (r *ServerRequest) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	*r = ServerRequest{}
	switch tag := d.u8(); {
	case d.err != nil:
	case tag == TagNewSession:
		r.NewSession = &NewSessionRequest{
			Id:       d.bytes(),
			Password: d.bytes(),
		}
		r.NewSession.PlayerLimit = d.u8()
	case tag == TagJoinSession:
		r.JoinSession = &JoinSessionRequest{
			Id:       d.bytes(),
			Password: d.bytes(),
		}
	default:
		return fmt.Errorf("decoding server request: %w: 0x%02x", ErrUnknownTag, tag)
	}
	if err := d.finish(); err != nil {
		return fmt.Errorf("decoding server request: %w", err)
	}
	return nil
}

// ServerResponse answers a NewSession request: either the creator's first
// snapshot or the refusal reason.
type ServerResponse struct {
	Ok     *ResponseSignal
	Reason Reason
}

func (r ServerResponse) MarshalBinary() ([]byte, error) {
	e := &encoder{}
	if r.Ok != nil {
		e.u8(tagOk)
		if err := r.Ok.encode(e); err != nil {
			return nil, err
		}
		return e.buf, nil
	}
	if !r.Reason.valid() {
		return nil, fmt.Errorf("server response has neither snapshot nor reason")
	}
	e.u8(tagFailure)
	e.u8(uint8(r.Reason))
	return e.buf, nil
}

func (r *ServerResponse) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	*r = ServerResponse{}
	switch tag := d.u8(); {
	case d.err != nil:
	case tag == tagOk:
		r.Ok = &ResponseSignal{}
		r.Ok.decode(d, 0)
	case tag == tagFailure:
		r.Reason = Reason(d.u8())
		if d.err == nil && !r.Reason.valid() {
			return fmt.Errorf("decoding server response: unknown reason %d", uint8(r.Reason))
		}
	default:
		return fmt.Errorf("decoding server response: %w: 0x%02x", ErrUnknownTag, tag)
	}
	if err := d.finish(); err != nil {
		return fmt.Errorf("decoding server response: %w", err)
	}
	return nil
}

// JoinResponse answers a JoinSession request. A zero Reason means Ok.
type JoinResponse struct {
	Reason Reason
}

func (r JoinResponse) Ok() bool {
	return r.Reason == ReasonNone
}

func (r JoinResponse) MarshalBinary() ([]byte, error) {
	if r.Ok() {
		return []byte{tagOk}, nil
	}
	return []byte{tagFailure, uint8(r.Reason)}, nil
}

func (r *JoinResponse) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	*r = JoinResponse{}
	switch tag := d.u8(); {
	case d.err != nil:
	case tag == tagOk:
	case tag == tagFailure:
		r.Reason = Reason(d.u8())
		if d.err == nil && !r.Reason.valid() {
			return fmt.Errorf("decoding join response: unknown reason %d", uint8(r.Reason))
		}
	default:
		return fmt.Errorf("decoding join response: %w: 0x%02x", ErrUnknownTag, tag)
	}
	if err := d.finish(); err != nil {
		return fmt.Errorf("decoding join response: %w", err)
	}
	return nil
}
