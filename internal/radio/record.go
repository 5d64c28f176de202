package radio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotRecord is returned for lines that are not JSON objects (firmware debug output).
var ErrNotRecord = errors.New("not a node record")

// RecvPacket is one received packet inside a reception report.
type RecvPacket struct {
	PktNum int `json:"pkt_num"`
	RSSI   int `json:"rssi"`
	LQI    int `json:"lqi"`
}

// SendPacket is the transmit status of one packet inside a transmission report.
type SendPacket struct {
	PktNum  int `json:"pkt_num"`
	PktSend int `json:"pkt_send"`
}

// SendReport holds the "send" field of a transmission report. The firmware
// prints a list of packets; older firmware prints `"send": true` with
// pkt_num/pkt_send at the top level of the record.
type SendReport struct {
	Packets []SendPacket
	flag    bool
}

// UnmarshalJSON accepts either a packet list or a boolean.
func (s *SendReport) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && (b[0] == 't' || b[0] == 'f') {
		return json.Unmarshal(b, &s.flag)
	}
	return json.Unmarshal(b, &s.Packets)
}

// MarshalJSON writes the field back in the form it was read.
func (s SendReport) MarshalJSON() ([]byte, error) {
	if s.flag {
		return []byte("true"), nil
	}
	if s.Packets == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Packets)
}

// Record is one JSON line printed by the node firmware. Only the fields
// relevant to the record kind are present.
type Record struct {
	Ack     string `json:"ack,omitempty"`
	Channel *int   `json:"channel,omitempty"`
	Power   *int   `json:"power,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	NbPkt   *int   `json:"nb_pkt,omitempty"`

	// reception report
	NbGenericError *int         `json:"nb_generic_error,omitempty"`
	NbMagicError   *int         `json:"nb_magic_error,omitempty"`
	NbCRCError     *int         `json:"nb_crc_error,omitempty"`
	NbControlError *int         `json:"nb_control_error,omitempty"`
	Recv           []RecvPacket `json:"recv,omitempty"`

	// transmission report
	NbError *int        `json:"nb_error,omitempty"`
	Send    *SendReport `json:"send,omitempty"`
	PktNum  *int        `json:"pkt_num,omitempty"`
	PktSend *int        `json:"pkt_send,omitempty"`
}

// ParseRecord decodes one line. Lines that are not JSON objects return ErrNotRecord.
func ParseRecord(line string) (Record, error) {
	var r Record
	b := bytes.TrimSpace([]byte(line))
	if len(b) == 0 || b[0] != '{' {
		return r, ErrNotRecord
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrNotRecord, err)
	}
	return r, nil
}

// IsAck reports whether the record acknowledges a command.
func (r Record) IsAck() bool { return r.Ack != "" }

// IsReception reports whether the record is a reception report with at least one packet.
func (r Record) IsReception() bool { return len(r.Recv) > 0 }

// IsTransmission reports whether the record is a transmission report.
func (r Record) IsTransmission() bool { return r.Send != nil }

// TxNode returns the numeric id of the transmitter named in node_id.
func (r Record) TxNode() (int, error) {
	id, err := strconv.Atoi(r.NodeID)
	if err != nil {
		return 0, fmt.Errorf("invalid node_id %q: %w", r.NodeID, err)
	}
	return id, nil
}

// Transmissions returns the per-packet transmit status carried by the record.
func (r Record) Transmissions() []SendPacket {
	if r.Send == nil {
		return nil
	}
	if r.Send.flag {
		if r.PktNum == nil {
			return nil
		}
		return []SendPacket{{PktNum: *r.PktNum, PktSend: intOr(r.PktSend)}}
	}
	return r.Send.Packets
}

// ErrorCounters holds the link error counters of a reception session.
type ErrorCounters struct {
	Generic int `json:"generic"`
	Magic   int `json:"magic"`
	CRC     int `json:"crc"`
	Control int `json:"control"`
}

// Errors returns the error counters of a reception report; absent counters are zero.
func (r Record) Errors() ErrorCounters {
	return ErrorCounters{
		Generic: intOr(r.NbGenericError),
		Magic:   intOr(r.NbMagicError),
		CRC:     intOr(r.NbCRCError),
		Control: intOr(r.NbControlError),
	}
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Int returns a pointer to v, for building records.
func Int(v int) *int { return &v }
