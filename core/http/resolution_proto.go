package http

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Proto encodes msg in protobuf wire format. Encoding failures yield a 500.
func Proto(code int, msg proto.Message) Resolution {
	data, err := proto.Marshal(msg)
	if err != nil {
		return Error(500, "response encoding failed", ErrorPlain)
	}
	return Bytes(code, ContentTypeProtobuf, data)
}

// ProtoJSON encodes msg with the canonical protobuf JSON mapping
func ProtoJSON(code int, msg proto.Message) Resolution {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return Error(500, "response encoding failed", ErrorJSON)
	}
	return Bytes(code, ContentTypeJSON, data)
}
