// Package codec implements the binary wire format exchanged with the
// external hive-writer process: a two-level typed Envelope carrying one of
// three inner messages (WriteRequest, WriteError, HiveTransaction).
//
// No schema-compiler toolchain for this format exists anywhere in this
// module's dependency set, so the layout below is a concrete, hand-written
// binary encoding rather than a generated one. It follows the length-prefixed
// framing idiom used elsewhere in this codebase's protocol code: fixed-width
// BigEndian integers for numeric fields, and a uint32 BigEndian length prefix
// ahead of every variable-length field (text, bytes, and list elements).
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/podcastindex/podping-gateway/internal/podping"
)

// Type names are stable strings carried in Envelope.TypeName; they mirror the
// capnp schema identifiers the original writer process was built against.
const (
	TypeWriteRequest   = "org.podcastindex.podping.hivewriter.PodpingWrite.capnp"
	TypeWriteError     = "org.podcastindex.podping.hivewriter.PodpingWriteError.capnp"
	TypeHiveTransaction = "org.podcastindex.podping.hivewriter.PodpingHiveTransaction.capnp"
)

// Sentinel decode errors, per SPEC_FULL.md §4.A.
var (
	ErrMalformedFrame  = errors.New("codec: malformed frame")
	ErrUnknownTypeName = errors.New("codec: unknown type name")
	ErrOutOfRangeEnum  = errors.New("codec: enum ordinal out of range")
)

// Envelope is the outer framed message. Payload is always the fully-framed
// encoding of the inner message named by TypeName — decoding an Envelope
// never also decodes its Payload; callers dispatch on TypeName first.
type Envelope struct {
	TypeName string
	Payload  []byte
}

// WriteRequest is the outbound message asking the writer to commit one IRI.
type WriteRequest struct {
	IRI    string
	Reason podping.Reason
	Medium podping.Medium
}

// WriteError is the inbound message reporting that the writer gave up on a
// WriteRequest.
type WriteError struct {
	Request      WriteRequest
	HasRequest   bool
	ErrorMessage string
}

// PodpingWritten is one confirmed ledger entry: the set of IRIs written
// together under one reason/medium.
type PodpingWritten struct {
	IRIs   []string
	Medium string
	Reason string
}

// HiveTransaction is the inbound confirmation of a ledger write.
// HiveBlockNum == 0 means "not yet in a block"; see SPEC_FULL.md invariant 5.
type HiveTransaction struct {
	HiveTxID      string
	HiveBlockNum  uint64
	Podpings      []PodpingWritten
}

// --- low level field encoders -------------------------------------------------

func putText(buf []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(s)))
	pos += 4
	copy(buf[pos:], s)
	return pos + len(s)
}

func textLen(s string) int { return 4 + len(s) }

func getText(b []byte, pos int) (string, int, error) {
	if pos+4 > len(b) {
		return "", 0, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	if n < 0 || pos+n > len(b) {
		return "", 0, ErrMalformedFrame
	}
	return string(b[pos : pos+n]), pos + n, nil
}

func putBytes(buf []byte, pos int, v []byte) int {
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(v)))
	pos += 4
	copy(buf[pos:], v)
	return pos + len(v)
}

func bytesLen(v []byte) int { return 4 + len(v) }

func getBytes(b []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(b) {
		return nil, 0, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	if n < 0 || pos+n > len(b) {
		return nil, 0, ErrMalformedFrame
	}
	out := make([]byte, n)
	copy(out, b[pos:pos+n])
	return out, pos + n, nil
}

// --- WriteRequest ---------------------------------------------------------

// Marshal encodes a WriteRequest: { 0: text iri; 1: u16 reason; 2: u16 medium }.
func (m WriteRequest) Marshal() []byte {
	size := textLen(m.IRI) + 2 + 2
	buf := make([]byte, size)
	pos := putText(buf, 0, m.IRI)
	binary.BigEndian.PutUint16(buf[pos:], uint16(m.Reason))
	pos += 2
	binary.BigEndian.PutUint16(buf[pos:], uint16(m.Medium))
	return buf
}

// UnmarshalWriteRequest decodes a WriteRequest, validating enum ranges.
func UnmarshalWriteRequest(b []byte) (WriteRequest, error) {
	iri, pos, err := getText(b, 0)
	if err != nil {
		return WriteRequest{}, err
	}
	if pos+4 > len(b) {
		return WriteRequest{}, ErrMalformedFrame
	}
	reason := binary.BigEndian.Uint16(b[pos:])
	pos += 2
	medium := binary.BigEndian.Uint16(b[pos:])
	if reason > podping.MaxReasonOrdinal || medium > podping.MaxMediumOrdinal {
		return WriteRequest{}, ErrOutOfRangeEnum
	}
	return WriteRequest{IRI: iri, Reason: podping.Reason(reason), Medium: podping.Medium(medium)}, nil
}

// --- WriteError ------------------------------------------------------------

// Marshal encodes a WriteError: { 0: WriteRequest podping_write; 1: text error_message? }.
// The inner WriteRequest is itself framed (length-prefixed bytes) since it is
// a struct-valued field, consistent with how Envelope nests its Payload.
func (m WriteError) Marshal() []byte {
	var reqBytes []byte
	if m.HasRequest {
		reqBytes = m.Request.Marshal()
	}
	size := bytesLen(reqBytes) + textLen(m.ErrorMessage) + 1
	buf := make([]byte, size)
	pos := 0
	buf[pos] = 0
	if m.HasRequest {
		buf[pos] = 1
	}
	pos++
	pos = putBytes(buf, pos, reqBytes)
	putText(buf, pos, m.ErrorMessage)
	return buf
}

// UnmarshalWriteError decodes a WriteError.
func UnmarshalWriteError(b []byte) (WriteError, error) {
	if len(b) < 1 {
		return WriteError{}, ErrMalformedFrame
	}
	has := b[0] != 0
	pos := 1
	reqBytes, pos, err := getBytes(b, pos)
	if err != nil {
		return WriteError{}, err
	}
	msg, _, err := getText(b, pos)
	if err != nil {
		return WriteError{}, err
	}
	out := WriteError{HasRequest: has, ErrorMessage: msg}
	if has {
		if len(reqBytes) == 0 {
			return WriteError{}, ErrMalformedFrame
		}
		req, err := UnmarshalWriteRequest(reqBytes)
		if err != nil {
			return WriteError{}, err
		}
		out.Request = req
	}
	return out, nil
}

// --- HiveTransaction ---------------------------------------------------------

func (p PodpingWritten) marshal() []byte {
	size := 4
	for _, iri := range p.IRIs {
		size += textLen(iri)
	}
	size += textLen(p.Medium) + textLen(p.Reason)
	buf := make([]byte, size)
	pos := 0
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(p.IRIs)))
	pos += 4
	for _, iri := range p.IRIs {
		pos = putText(buf, pos, iri)
	}
	pos = putText(buf, pos, p.Medium)
	putText(buf, pos, p.Reason)
	return buf
}

func unmarshalPodpingWritten(b []byte) (PodpingWritten, int, error) {
	if len(b) < 4 {
		return PodpingWritten{}, 0, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(b))
	pos := 4
	iris := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, next, err := getText(b, pos)
		if err != nil {
			return PodpingWritten{}, 0, err
		}
		iris = append(iris, s)
		pos = next
	}
	medium, pos, err := getText(b, pos)
	if err != nil {
		return PodpingWritten{}, 0, err
	}
	reason, pos, err := getText(b, pos)
	if err != nil {
		return PodpingWritten{}, 0, err
	}
	return PodpingWritten{IRIs: iris, Medium: medium, Reason: reason}, pos, nil
}

// Marshal encodes a HiveTransaction:
// { 0: text hive_tx_id; 1: u64 hive_block_num; 2: list<PodpingWritten> podpings }.
func (m HiveTransaction) Marshal() []byte {
	inner := make([][]byte, len(m.Podpings))
	listSize := 4
	for i, p := range m.Podpings {
		inner[i] = p.marshal()
		listSize += bytesLen(inner[i])
	}
	size := textLen(m.HiveTxID) + 8 + listSize
	buf := make([]byte, size)
	pos := putText(buf, 0, m.HiveTxID)
	binary.BigEndian.PutUint64(buf[pos:], m.HiveBlockNum)
	pos += 8
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(m.Podpings)))
	pos += 4
	for _, ib := range inner {
		pos = putBytes(buf, pos, ib)
	}
	return buf
}

// UnmarshalHiveTransaction decodes a HiveTransaction.
func UnmarshalHiveTransaction(b []byte) (HiveTransaction, error) {
	txID, pos, err := getText(b, 0)
	if err != nil {
		return HiveTransaction{}, err
	}
	if pos+8 > len(b) {
		return HiveTransaction{}, ErrMalformedFrame
	}
	blockNum := binary.BigEndian.Uint64(b[pos:])
	pos += 8
	if pos+4 > len(b) {
		return HiveTransaction{}, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	podpings := make([]PodpingWritten, 0, n)
	for i := 0; i < n; i++ {
		pb, next, err := getBytes(b, pos)
		if err != nil {
			return HiveTransaction{}, err
		}
		pos = next
		pw, _, err := unmarshalPodpingWritten(pb)
		if err != nil {
			return HiveTransaction{}, err
		}
		podpings = append(podpings, pw)
	}
	return HiveTransaction{HiveTxID: txID, HiveBlockNum: blockNum, Podpings: podpings}, nil
}

// --- Envelope ---------------------------------------------------------------

// Marshal encodes an Envelope: { 0: text type_name; 1: bytes payload }.
func (e Envelope) Marshal() []byte {
	size := textLen(e.TypeName) + bytesLen(e.Payload)
	buf := make([]byte, size)
	pos := putText(buf, 0, e.TypeName)
	putBytes(buf, pos, e.Payload)
	return buf
}

// UnmarshalEnvelope decodes an Envelope without touching Payload's inner
// structure.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	typeName, pos, err := getText(b, 0)
	if err != nil {
		return Envelope{}, err
	}
	payload, _, err := getBytes(b, pos)
	if err != nil {
		return Envelope{}, err
	}
	switch typeName {
	case TypeWriteRequest, TypeWriteError, TypeHiveTransaction:
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownTypeName, typeName)
	}
	return Envelope{TypeName: typeName, Payload: payload}, nil
}

// EncodeWriteRequestEnvelope is the convenience the Forwarder uses on every
// outbound send.
func EncodeWriteRequestEnvelope(m WriteRequest) []byte {
	return Envelope{TypeName: TypeWriteRequest, Payload: m.Marshal()}.Marshal()
}

// EncodeWriteErrorEnvelope wraps a WriteError the way the writer process
// sends one back; used by tests exercising the forwarder's receive path.
func EncodeWriteErrorEnvelope(m WriteError) []byte {
	return Envelope{TypeName: TypeWriteError, Payload: m.Marshal()}.Marshal()
}

// EncodeHiveTransactionEnvelope wraps a HiveTransaction the way the writer
// process sends one back; used by tests exercising the forwarder's receive
// path.
func EncodeHiveTransactionEnvelope(m HiveTransaction) []byte {
	return Envelope{TypeName: TypeHiveTransaction, Payload: m.Marshal()}.Marshal()
}
