package envelope

import (
	"time"

	"github.com/pkg/errors"

	"github.com/aria-robotics/telemetry/internal/wire"
)

const (
	flagAbsent byte = 0
	flagPresent byte = 1
)

// Marshal encodes e per spec §6: fixed 16-byte id, 8-byte big-endian
// microsecond timestamp, 4-byte schema_id, 1-byte priority, length-
// prefixed topic and payload, then the metadata block.
func Marshal(e Envelope) []byte {
	buf := make([]byte, 0, 64+len(e.Payload))

	idBytes, _ := e.ID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = wire.PutUint64(buf, uint64(e.Timestamp.UnixMicro()))
	buf = wire.PutUint32(buf, e.SchemaID)
	buf = append(buf, byte(e.Priority))
	buf = wire.PutString(buf, e.Topic)
	buf = wire.PutBytes(buf, e.Payload)

	buf = wire.PutString(buf, e.Metadata.SourceNode)
	buf = wire.PutUint64(buf, e.Metadata.SequenceNumber)

	buf = marshalFragmentInfo(buf, e.Metadata.FragmentInfo)
	buf = marshalFECInfo(buf, e.Metadata.FECInfo)
	buf = marshalCryptoInfo(buf, e.Metadata.CryptoInfo)

	buf = wire.PutString(buf, e.Metadata.QoSClass)
	return buf
}

func marshalFragmentInfo(buf []byte, fi *FragmentInfo) []byte {
	if fi == nil {
		return append(buf, flagAbsent)
	}
	body := make([]byte, 0, 32)
	key, _ := fi.CorrelationKey.MarshalBinary()
	body = append(body, key...)
	body = wire.PutUint32(body, fi.FragmentID)
	body = wire.PutUint32(body, fi.TotalFragments)
	body = wire.PutUint64(body, fi.Offset)
	buf = append(buf, flagPresent)
	return wire.PutBytes(buf, body)
}

func marshalFECInfo(buf []byte, fi *FECInfo) []byte {
	if fi == nil {
		return append(buf, flagAbsent)
	}
	body := make([]byte, 0, 16)
	body = wire.PutUint32(body, fi.K)
	body = wire.PutUint32(body, fi.M)
	body = wire.PutUint32(body, fi.BlockID)
	body = wire.PutUint32(body, fi.DataLen)
	body = wire.PutUint32(body, fi.ShardIndex)
	buf = append(buf, flagPresent)
	return wire.PutBytes(buf, body)
}

func marshalCryptoInfo(buf []byte, ci *CryptoInfo) []byte {
	if ci == nil {
		return append(buf, flagAbsent)
	}
	body := make([]byte, 0, 16+len(ci.Signature)+len(ci.Nonce))
	body = wire.PutBytes(body, ci.Signature)
	body = wire.PutString(body, ci.KeyID)
	body = wire.PutBytes(body, ci.Nonce)
	buf = append(buf, flagPresent)
	return wire.PutBytes(buf, body)
}

// Unmarshal decodes a buffer produced by Marshal. It never returns a
// partially populated Envelope: on error the zero value is returned.
func Unmarshal(buf []byte) (Envelope, error) {
	var e Envelope
	if len(buf) < 16 {
		return Envelope{}, errors.WithStack(ErrMalformed)
	}
	if err := e.ID.UnmarshalBinary(buf[:16]); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	rest := buf[16:]

	micros, rest, err := wire.ReadUint64(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Timestamp = time.UnixMicro(int64(micros)).UTC()

	schemaID, rest, err := wire.ReadUint32(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.SchemaID = schemaID

	if len(rest) < 1 {
		return Envelope{}, errors.WithStack(ErrMalformed)
	}
	e.Priority = Priority(rest[0])
	rest = rest[1:]

	topic, rest, err := wire.ReadString(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Topic = topic

	payload, rest, err := wire.ReadBytes(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Payload = append([]byte(nil), payload...)

	sourceNode, rest, err := wire.ReadString(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Metadata.SourceNode = sourceNode

	seq, rest, err := wire.ReadUint64(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Metadata.SequenceNumber = seq

	fi, rest, err := unmarshalFragmentInfo(rest)
	if err != nil {
		return Envelope{}, err
	}
	e.Metadata.FragmentInfo = fi

	feci, rest, err := unmarshalFECInfo(rest)
	if err != nil {
		return Envelope{}, err
	}
	e.Metadata.FECInfo = feci

	ci, rest, err := unmarshalCryptoInfo(rest)
	if err != nil {
		return Envelope{}, err
	}
	e.Metadata.CryptoInfo = ci

	qosClass, _, err := wire.ReadString(rest)
	if err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	e.Metadata.QoSClass = qosClass

	return e, nil
}

func unmarshalFragmentInfo(buf []byte) (*FragmentInfo, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, errors.WithStack(ErrMalformed)
	}
	flag, rest := buf[0], buf[1:]
	if flag == flagAbsent {
		return nil, rest, nil
	}
	body, rest, err := wire.ReadBytes(rest)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if len(body) < 16 {
		return nil, nil, errors.WithStack(ErrMalformed)
	}
	var fi FragmentInfo
	if err := fi.CorrelationKey.UnmarshalBinary(body[:16]); err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	body = body[16:]
	fi.FragmentID, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.TotalFragments, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.Offset, _, err = wire.ReadUint64(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return &fi, rest, nil
}

func unmarshalFECInfo(buf []byte) (*FECInfo, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, errors.WithStack(ErrMalformed)
	}
	flag, rest := buf[0], buf[1:]
	if flag == flagAbsent {
		return nil, rest, nil
	}
	body, rest, err := wire.ReadBytes(rest)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	var fi FECInfo
	fi.K, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.M, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.BlockID, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.DataLen, body, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	fi.ShardIndex, _, err = wire.ReadUint32(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return &fi, rest, nil
}

func unmarshalCryptoInfo(buf []byte) (*CryptoInfo, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, errors.WithStack(ErrMalformed)
	}
	flag, rest := buf[0], buf[1:]
	if flag == flagAbsent {
		return nil, rest, nil
	}
	body, rest, err := wire.ReadBytes(rest)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	var ci CryptoInfo
	sig, body, err := wire.ReadBytes(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ci.Signature = append([]byte(nil), sig...)
	keyID, body, err := wire.ReadString(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ci.KeyID = keyID
	nonce, _, err := wire.ReadBytes(body)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ci.Nonce = append([]byte(nil), nonce...)
	return &ci, rest, nil
}
