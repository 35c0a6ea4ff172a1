package event

import (
	"fmt"
	"time"

	"github.com/gogo/protobuf/proto"
)

func unixNanoToTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// EventDescriptorProto is the canonical protobuf encoding of Descriptor.
// Hand-declared in the teacher's era's style (struct-tag reflection,
// no protoc step) per spec §6's "canonical protobuf of the event".
type EventDescriptorProto struct {
	Hash       string `protobuf:"bytes,1,opt,name=hash,proto3" json:"hash,omitempty"`
	Generation uint64 `protobuf:"varint,2,opt,name=generation,proto3" json:"generation,omitempty"`
	BirthRound uint64 `protobuf:"varint,3,opt,name=birth_round,json=birthRound,proto3" json:"birth_round,omitempty"`
	CreatorId  uint64 `protobuf:"varint,4,opt,name=creator_id,json=creatorId,proto3" json:"creator_id,omitempty"`
}

func (m *EventDescriptorProto) Reset()         { *m = EventDescriptorProto{} }
func (m *EventDescriptorProto) String() string { return proto.CompactTextString(m) }
func (m *EventDescriptorProto) ProtoMessage()  {}

// EventProto is the canonical protobuf encoding of an Event's signed body.
type EventProto struct {
	CreatorId           uint64                `protobuf:"varint,1,opt,name=creator_id,json=creatorId,proto3" json:"creator_id,omitempty"`
	SelfParent          *EventDescriptorProto `protobuf:"bytes,2,opt,name=self_parent,json=selfParent,proto3" json:"self_parent,omitempty"`
	OtherParent         *EventDescriptorProto `protobuf:"bytes,3,opt,name=other_parent,json=otherParent,proto3" json:"other_parent,omitempty"`
	Generation          uint64                `protobuf:"varint,4,opt,name=generation,proto3" json:"generation,omitempty"`
	BirthRound          uint64                `protobuf:"varint,5,opt,name=birth_round,json=birthRound,proto3" json:"birth_round,omitempty"`
	TimeCreatedUnixNano int64                 `protobuf:"varint,6,opt,name=time_created_unix_nano,json=timeCreatedUnixNano,proto3" json:"time_created_unix_nano,omitempty"`
	Transactions        [][]byte              `protobuf:"bytes,7,rep,name=transactions,proto3" json:"transactions,omitempty"`
	Signature           []byte                `protobuf:"bytes,8,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *EventProto) Reset()         { *m = EventProto{} }
func (m *EventProto) String() string { return proto.CompactTextString(m) }
func (m *EventProto) ProtoMessage()  {}

func toDescriptorProto(d *Descriptor) *EventDescriptorProto {
	if d.IsZero() {
		return nil
	}
	return &EventDescriptorProto{
		Hash:       d.Hash,
		Generation: d.Generation,
		BirthRound: d.BirthRound,
		CreatorId:  d.CreatorID,
	}
}

func fromDescriptorProto(d *EventDescriptorProto) *Descriptor {
	if d == nil {
		return nil
	}
	return &Descriptor{
		Hash:       d.Hash,
		Generation: d.Generation,
		BirthRound: d.BirthRound,
		CreatorID:  d.CreatorId,
	}
}

// marshalBody encodes Body only (no signature) — this is what gets signed.
func (e *Event) marshalBody() ([]byte, error) {
	return proto.Marshal(e.toProto(false))
}

// Marshal encodes Body+Signature — this is what gets hashed and what is
// written to PCES segments / sent over gossip.
func (e *Event) Marshal() ([]byte, error) {
	return proto.Marshal(e.toProto(true))
}

func (e *Event) toProto(withSig bool) *EventProto {
	p := &EventProto{
		CreatorId:           e.Body.CreatorID,
		SelfParent:          toDescriptorProto(e.Body.SelfParent),
		OtherParent:         toDescriptorProto(e.Body.OtherParent),
		Generation:          e.Body.Generation,
		BirthRound:          e.Body.BirthRound,
		TimeCreatedUnixNano: e.Body.TimeCreated.UnixNano(),
		Transactions:        e.Body.Transactions,
	}
	if withSig {
		p.Signature = e.Signature
	}
	return p
}

// Unmarshal decodes canonical protobuf bytes into a fresh Event, as used by
// the gossip-in stage and the PCES replayer.
func Unmarshal(data []byte) (*Event, error) {
	p := &EventProto{}
	if err := proto.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &Event{
		Body: Body{
			CreatorID:    p.CreatorId,
			SelfParent:   fromDescriptorProto(p.SelfParent),
			OtherParent:  fromDescriptorProto(p.OtherParent),
			Generation:   p.Generation,
			BirthRound:   p.BirthRound,
			TimeCreated:  unixNanoToTime(p.TimeCreatedUnixNano),
			Transactions: p.Transactions,
		},
		Signature: p.Signature,
	}, nil
}
