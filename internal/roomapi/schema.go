package roomapi

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "roomApi.RoomApi"

	SaveVariableMethod   = "/" + ServiceName + "/saveVariable"
	BroadcastEventMethod = "/" + ServiceName + "/broadcastEvent"
)

// The room API only needs two request messages, so the schema is described
// here and resolved against the well-known types at init instead of shipping
// generated stubs.
var (
	saveVariableRequest  protoreflect.MessageDescriptor
	dispatchEventRequest protoreflect.MessageDescriptor
)

func init() {
	file, err := protodesc.NewFile(roomAPIFile(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("roomapi: build descriptors: %v", err))
	}
	saveVariableRequest = file.Messages().ByName("SaveVariableRequest")
	dispatchEventRequest = file.Messages().ByName("DispatchEventRequest")
}

func roomAPIFile() *descriptorpb.FileDescriptorProto {
	valueType := "." + string((&structpb.Value{}).ProtoReflect().Descriptor().FullName())
	request := func(name, payloadField string) *descriptorpb.DescriptorProto {
		return &descriptorpb.DescriptorProto{
			Name: proto.String(name),
			Field: []*descriptorpb.FieldDescriptorProto{
				stringField("room", 1),
				stringField("name", 2),
				{
					Name:     proto.String(payloadField),
					JsonName: proto.String(payloadField),
					Number:   proto.Int32(3),
					Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
					TypeName: proto.String(valueType),
				},
			},
		}
	}

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("incidentroom/room-api.proto"),
		Package:    proto.String("roomApi"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/struct.proto"},
		MessageType: []*descriptorpb.DescriptorProto{
			request("SaveVariableRequest", "value"),
			request("DispatchEventRequest", "data"),
		},
	}
}

func stringField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
	}
}
