package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrForeignDatagram = errors.New("not a meshchat datagram")
	ErrInvalidDatagram = errors.New("invalid datagram")
)

// Datagram is the LAN discovery message. Address is the sender's
// link-layer identity and Port its messaging port.
type Datagram struct {
	Type    MessageType
	Address string
	Name    string
	Port    int
}

func (d Datagram) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"proto":   Marker,
		"type":    int(d.Type),
		"address": d.Address,
		"name":    d.Name,
		"port":    d.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("build datagram: %w", err)
	}

	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal datagram: %w", err)
	}
	if len(data) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidDatagram, len(data), MaxDatagramSize)
	}
	return data, nil
}

func UnmarshalDatagram(data []byte) (Datagram, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Datagram{}, fmt.Errorf("%w: %v", ErrForeignDatagram, err)
	}

	fields := s.GetFields()
	if fields["proto"].GetStringValue() != Marker {
		return Datagram{}, ErrForeignDatagram
	}

	d := Datagram{
		Type:    MessageType(fields["type"].GetNumberValue()),
		Address: fields["address"].GetStringValue(),
		Name:    fields["name"].GetStringValue(),
		Port:    int(fields["port"].GetNumberValue()),
	}

	if !d.Type.Valid() {
		return Datagram{}, fmt.Errorf("%w: unknown type %d", ErrInvalidDatagram, d.Type)
	}
	if d.Address == "" {
		return Datagram{}, fmt.Errorf("%w: missing address", ErrInvalidDatagram)
	}
	if d.Port < 0 || d.Port > 65535 {
		return Datagram{}, fmt.Errorf("%w: port %d out of range", ErrInvalidDatagram, d.Port)
	}
	return d, nil
}
