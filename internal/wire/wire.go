// Package wire serializes AgentInstanceSettings to the protobuf message the
// agent runtime reads from the bus.
//
// The schema is proto2 and is built in code. Optional fields that are absent
// on the wire decode as unset; required fields that are absent, and known
// fields carrying the wrong wire type, fail with ErrMalformedPayload.
package wire

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/settings"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var ErrMalformedPayload = errors.New("malformed settings payload")

// Marshal encodes s in the binary wire format. Output is deterministic.
// The settings are not re-validated; Marshal fails only when a required
// field is empty.
func Marshal(s *settings.AgentInstanceSettings) ([]byte, error) {
	m, err := toMessage(s)
	if err != nil {
		return nil, err
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling settings: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a binary settings message.
func Unmarshal(b []byte) (*settings.AgentInstanceSettings, error) {
	d, err := getDescriptors()
	if err != nil {
		return nil, err
	}
	m := dynamicpb.NewMessage(d.settings)
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if err := checkWireTypes(m); err != nil {
		return nil, err
	}
	return fromMessage(m), nil
}

// MarshalJSON renders s in the protobuf JSON mapping using the field names
// of the schema. Bytes fields are base64.
func MarshalJSON(s *settings.AgentInstanceSettings) ([]byte, error) {
	m, err := toMessage(s)
	if err != nil {
		return nil, err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  ", UseProtoNames: true}.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling settings to JSON: %w", err)
	}
	return b, nil
}

// UnmarshalJSON decodes the JSON form produced by MarshalJSON.
func UnmarshalJSON(b []byte) (*settings.AgentInstanceSettings, error) {
	d, err := getDescriptors()
	if err != nil {
		return nil, err
	}
	m := dynamicpb.NewMessage(d.settings)
	if err := protojson.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return fromMessage(m), nil
}

func toMessage(s *settings.AgentInstanceSettings) (*dynamicpb.Message, error) {
	if s == nil {
		return nil, errors.New("marshaling settings: nil settings")
	}
	d, err := getDescriptors()
	if err != nil {
		return nil, err
	}

	m := dynamicpb.NewMessage(d.settings)
	fields := d.settings.Fields()
	set := func(num protoreflect.FieldNumber, v protoreflect.Value) {
		m.Set(fields.ByNumber(num), v)
	}

	setString(m, fields.ByNumber(fieldKey), s.Key)
	setString(m, fields.ByNumber(fieldBusURL), s.BusURL)
	setString(m, fields.ByNumber(fieldBusExchangeTopic), s.BusExchangeTopic)
	if s.BusManagementURL != nil {
		set(fieldBusManagementURL, protoreflect.ValueOfString(*s.BusManagementURL))
	}
	if s.BusVhost != nil {
		set(fieldBusVhost, protoreflect.ValueOfString(*s.BusVhost))
	}

	if len(s.Args) > 0 {
		list := m.Mutable(fields.ByNumber(fieldArgs)).List()
		argFields := d.arg.Fields()
		for _, a := range s.Args {
			am := dynamicpb.NewMessage(d.arg)
			am.Set(argFields.ByNumber(fieldArgName), protoreflect.ValueOfString(a.Name))
			am.Set(argFields.ByNumber(fieldArgType), protoreflect.ValueOfString(a.Type))
			am.Set(argFields.ByNumber(fieldArgValue), protoreflect.ValueOfBytes(bytesOrEmpty(a.Value)))
			list.Append(protoreflect.ValueOfMessage(am))
		}
	}
	appendStrings(m, fields.ByNumber(fieldConstraints), s.Constraints)
	appendStrings(m, fields.ByNumber(fieldMounts), s.Mounts)

	set(fieldRestartPolicy, protoreflect.ValueOfString(s.RestartPolicy))
	if s.MemLimit != nil {
		set(fieldMemLimit, protoreflect.ValueOfInt64(*s.MemLimit))
	}

	if len(s.OpenPorts) > 0 {
		list := m.Mutable(fields.ByNumber(fieldOpenPorts)).List()
		portFields := d.portMapping.Fields()
		for _, p := range s.OpenPorts {
			pm := dynamicpb.NewMessage(d.portMapping)
			pm.Set(portFields.ByNumber(fieldSourcePort), protoreflect.ValueOfInt32(p.SourcePort))
			pm.Set(portFields.ByNumber(fieldDestinationPort), protoreflect.ValueOfInt32(p.DestinationPort))
			list.Append(protoreflect.ValueOfMessage(pm))
		}
	}

	set(fieldReplicas, protoreflect.ValueOfInt32(s.Replicas))
	set(fieldHealthcheckHost, protoreflect.ValueOfString(s.HealthcheckHost))
	set(fieldHealthcheckPort, protoreflect.ValueOfInt32(s.HealthcheckPort))
	return m, nil
}

func fromMessage(m *dynamicpb.Message) *settings.AgentInstanceSettings {
	d := desc
	fields := d.settings.Fields()
	get := func(num protoreflect.FieldNumber) protoreflect.Value {
		return m.Get(fields.ByNumber(num))
	}

	s := &settings.AgentInstanceSettings{
		Key:              get(fieldKey).String(),
		BusURL:           get(fieldBusURL).String(),
		BusExchangeTopic: get(fieldBusExchangeTopic).String(),
		BusManagementURL: optionalString(m, fields.ByNumber(fieldBusManagementURL)),
		BusVhost:         optionalString(m, fields.ByNumber(fieldBusVhost)),
		Constraints:      repeatedStrings(m, fields.ByNumber(fieldConstraints)),
		Mounts:           repeatedStrings(m, fields.ByNumber(fieldMounts)),
		RestartPolicy:    get(fieldRestartPolicy).String(),
		Replicas:         int32(get(fieldReplicas).Int()),
		HealthcheckHost:  get(fieldHealthcheckHost).String(),
		HealthcheckPort:  int32(get(fieldHealthcheckPort).Int()),
	}
	if fd := fields.ByNumber(fieldMemLimit); m.Has(fd) {
		n := m.Get(fd).Int()
		s.MemLimit = &n
	}

	if list := get(fieldArgs).List(); list.Len() > 0 {
		argFields := d.arg.Fields()
		s.Args = make([]agentarg.Arg, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			am := list.Get(i).Message()
			s.Args = append(s.Args, agentarg.Arg{
				Name:  am.Get(argFields.ByNumber(fieldArgName)).String(),
				Type:  am.Get(argFields.ByNumber(fieldArgType)).String(),
				Value: slices.Clone(am.Get(argFields.ByNumber(fieldArgValue)).Bytes()),
			})
		}
	}

	if list := get(fieldOpenPorts).List(); list.Len() > 0 {
		portFields := d.portMapping.Fields()
		s.OpenPorts = make([]settings.PortMapping, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			pm := list.Get(i).Message()
			s.OpenPorts = append(s.OpenPorts, settings.PortMapping{
				SourcePort:      int32(pm.Get(portFields.ByNumber(fieldSourcePort)).Int()),
				DestinationPort: int32(pm.Get(portFields.ByNumber(fieldDestinationPort)).Int()),
			})
		}
	}
	return s
}

// checkWireTypes rejects messages whose unknown fields reuse a declared
// field number. The decoder keeps such fields as unknown when their wire
// type does not match the schema.
func checkWireTypes(m protoreflect.Message) error {
	fields := m.Descriptor().Fields()
	unknown := m.GetUnknown()
	for len(unknown) > 0 {
		num, typ, n := protowire.ConsumeTag(unknown)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(n))
		}
		if fd := fields.ByNumber(num); fd != nil {
			return fmt.Errorf("%w: field %s has wire type %d", ErrMalformedPayload, fd.FullName(), typ)
		}
		v := protowire.ConsumeFieldValue(num, typ, unknown[n:])
		if v < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(v))
		}
		unknown = unknown[n+v:]
	}

	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Kind() != protoreflect.MessageKind {
			return true
		}
		list := v.List()
		for i := 0; i < list.Len(); i++ {
			if err = checkWireTypes(list.Get(i).Message()); err != nil {
				return false
			}
		}
		return true
	})
	return err
}

func setString(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, v string) {
	if v != "" {
		m.Set(fd, protoreflect.ValueOfString(v))
	}
}

func appendStrings(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, values []string) {
	if len(values) == 0 {
		return
	}
	list := m.Mutable(fd).List()
	for _, v := range values {
		list.Append(protoreflect.ValueOfString(v))
	}
}

func optionalString(m *dynamicpb.Message, fd protoreflect.FieldDescriptor) *string {
	if !m.Has(fd) {
		return nil
	}
	v := m.Get(fd).String()
	return &v
}

func repeatedStrings(m *dynamicpb.Message, fd protoreflect.FieldDescriptor) []string {
	list := m.Get(fd).List()
	if list.Len() == 0 {
		return nil
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, list.Get(i).String())
	}
	return out
}

func bytesOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
