package wire

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	protoPackage = "agentscan.settings"
	protoFile    = "agentscan/settings/settings.proto"
)

// Field numbers of the AgentInstanceSettings message.
const (
	fieldKey              protoreflect.FieldNumber = 1
	fieldBusURL           protoreflect.FieldNumber = 2
	fieldBusExchangeTopic protoreflect.FieldNumber = 3
	fieldBusManagementURL protoreflect.FieldNumber = 4
	fieldBusVhost         protoreflect.FieldNumber = 5
	fieldArgs             protoreflect.FieldNumber = 6
	fieldConstraints      protoreflect.FieldNumber = 7
	fieldMounts           protoreflect.FieldNumber = 8
	fieldRestartPolicy    protoreflect.FieldNumber = 9
	fieldMemLimit         protoreflect.FieldNumber = 10
	fieldOpenPorts        protoreflect.FieldNumber = 11
	fieldReplicas         protoreflect.FieldNumber = 12
	fieldHealthcheckHost  protoreflect.FieldNumber = 13
	fieldHealthcheckPort  protoreflect.FieldNumber = 14
)

// Field numbers of the nested Arg and PortMapping messages.
const (
	fieldArgName  protoreflect.FieldNumber = 1
	fieldArgType  protoreflect.FieldNumber = 2
	fieldArgValue protoreflect.FieldNumber = 3

	fieldSourcePort      protoreflect.FieldNumber = 1
	fieldDestinationPort protoreflect.FieldNumber = 2
)

type descriptors struct {
	file        protoreflect.FileDescriptor
	settings    protoreflect.MessageDescriptor
	arg         protoreflect.MessageDescriptor
	portMapping protoreflect.MessageDescriptor
}

var (
	descOnce sync.Once
	desc     *descriptors
	descErr  error
)

func getDescriptors() (*descriptors, error) {
	descOnce.Do(func() {
		fd, err := protodesc.NewFile(fileDescriptorProto(), nil)
		if err != nil {
			descErr = fmt.Errorf("building settings descriptor: %w", err)
			return
		}
		msgs := fd.Messages()
		desc = &descriptors{
			file:        fd,
			arg:         msgs.ByName("Arg"),
			portMapping: msgs.ByName("PortMapping"),
			settings:    msgs.ByName("AgentInstanceSettings"),
		}
	})
	return desc, descErr
}

// Descriptor returns the message descriptor of AgentInstanceSettings.
func Descriptor() (protoreflect.MessageDescriptor, error) {
	d, err := getDescriptors()
	if err != nil {
		return nil, err
	}
	return d.settings, nil
}

// FileDescriptorProto returns the schema of the settings messages as a
// descriptor proto, e.g. for publishing to a schema registry.
func FileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return fileDescriptorProto()
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(protoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Arg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("name", fieldArgName, required, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("type", fieldArgType, required, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("value", fieldArgValue, required, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
			{
				Name: proto.String("PortMapping"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("source_port", fieldSourcePort, required, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					field("destination_port", fieldDestinationPort, required, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				},
			},
			{
				Name: proto.String("AgentInstanceSettings"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("key", fieldKey, required, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("bus_url", fieldBusURL, required, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("bus_exchange_topic", fieldBusExchangeTopic, required, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("bus_management_url", fieldBusManagementURL, optional, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("bus_vhost", fieldBusVhost, optional, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					message("args", fieldArgs, "Arg"),
					field("constraints", fieldConstraints, repeated, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("mounts", fieldMounts, repeated, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					withDefault(field("restart_policy", fieldRestartPolicy, optional, descriptorpb.FieldDescriptorProto_TYPE_STRING), "any"),
					field("mem_limit", fieldMemLimit, optional, descriptorpb.FieldDescriptorProto_TYPE_INT64),
					message("open_ports", fieldOpenPorts, "PortMapping"),
					withDefault(field("replicas", fieldReplicas, optional, descriptorpb.FieldDescriptorProto_TYPE_INT32), "1"),
					withDefault(field("healthcheck_host", fieldHealthcheckHost, optional, descriptorpb.FieldDescriptorProto_TYPE_STRING), "0.0.0.0"),
					withDefault(field("healthcheck_port", fieldHealthcheckPort, optional, descriptorpb.FieldDescriptorProto_TYPE_INT32), "5000"),
				},
			},
		},
	}
}

var (
	required = descriptorpb.FieldDescriptorProto_LABEL_REQUIRED.Enum()
	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
)

func field(name string, num protoreflect.FieldNumber, label *descriptorpb.FieldDescriptorProto_Label, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(int32(num)),
		Label:  label,
		Type:   typ.Enum(),
	}
}

func message(name string, num protoreflect.FieldNumber, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, repeated, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String("." + protoPackage + "." + typeName)
	return f
}

func withDefault(f *descriptorpb.FieldDescriptorProto, value string) *descriptorpb.FieldDescriptorProto {
	f.DefaultValue = proto.String(value)
	return f
}
