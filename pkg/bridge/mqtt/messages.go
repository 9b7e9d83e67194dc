package mqtt

import "github.com/golang/protobuf/proto"

// Messages of bridge.proto.

// LinkState is the link status.
type LinkState struct {
	State      string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
	Path       string `protobuf:"bytes,2,opt,name=path,proto3" json:"path,omitempty"`
	FramesIn   uint64 `protobuf:"varint,3,opt,name=frames_in,json=framesIn,proto3" json:"frames_in,omitempty"`
	FramesOut  uint64 `protobuf:"varint,4,opt,name=frames_out,json=framesOut,proto3" json:"frames_out,omitempty"`
	Timeouts   uint64 `protobuf:"varint,5,opt,name=timeouts,proto3" json:"timeouts,omitempty"`
	Reconnects uint64 `protobuf:"varint,6,opt,name=reconnects,proto3" json:"reconnects,omitempty"`
	Timestamp  int64  `protobuf:"varint,7,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *LinkState) Reset()         { *m = LinkState{} }
func (m *LinkState) String() string { return proto.CompactTextString(m) }
func (*LinkState) ProtoMessage()    {}

// Notification is a Notify frame from the device.
type Notification struct {
	Cmd       uint32 `protobuf:"varint,1,opt,name=cmd,proto3" json:"cmd,omitempty"`
	Seq       uint32 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Data      []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	Timestamp int64  `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *Notification) Reset()         { *m = Notification{} }
func (m *Notification) String() string { return proto.CompactTextString(m) }
func (*Notification) ProtoMessage()    {}

// TransferEvent is a file transfer or FOTA event.
type TransferEvent struct {
	Kind     string `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Event    string `protobuf:"bytes,2,opt,name=event,proto3" json:"event,omitempty"`
	Name     string `protobuf:"bytes,3,opt,name=name,proto3" json:"name,omitempty"`
	State    string `protobuf:"bytes,4,opt,name=state,proto3" json:"state,omitempty"`
	Bytes    uint32 `protobuf:"varint,5,opt,name=bytes,proto3" json:"bytes,omitempty"`
	Total    uint32 `protobuf:"varint,6,opt,name=total,proto3" json:"total,omitempty"`
	Progress int32  `protobuf:"varint,7,opt,name=progress,proto3" json:"progress,omitempty"`
	Code     uint32 `protobuf:"varint,8,opt,name=code,proto3" json:"code,omitempty"`
	Error    string `protobuf:"bytes,9,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *TransferEvent) Reset()         { *m = TransferEvent{} }
func (m *TransferEvent) String() string { return proto.CompactTextString(m) }
func (*TransferEvent) ProtoMessage()    {}

// RemoteCall requests a raw command.
type RemoteCall struct {
	Id        uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Cmd       uint32 `protobuf:"varint,2,opt,name=cmd,proto3" json:"cmd,omitempty"`
	Data      []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	TimeoutMs uint32 `protobuf:"varint,4,opt,name=timeout_ms,json=timeoutMs,proto3" json:"timeout_ms,omitempty"`
}

func (m *RemoteCall) Reset()         { *m = RemoteCall{} }
func (m *RemoteCall) String() string { return proto.CompactTextString(m) }
func (*RemoteCall) ProtoMessage()    {}

// RemoteResult answers a RemoteCall with the same Id.
type RemoteResult struct {
	Id       uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Ok       bool   `protobuf:"varint,2,opt,name=ok,proto3" json:"ok,omitempty"`
	Data     []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	Error    string `protobuf:"bytes,4,opt,name=error,proto3" json:"error,omitempty"`
	NackCode uint32 `protobuf:"varint,5,opt,name=nack_code,json=nackCode,proto3" json:"nack_code,omitempty"`
}

func (m *RemoteResult) Reset()         { *m = RemoteResult{} }
func (m *RemoteResult) String() string { return proto.CompactTextString(m) }
func (*RemoteResult) ProtoMessage()    {}
