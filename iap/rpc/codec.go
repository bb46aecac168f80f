package rpc

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Billing messages travel as google.protobuf.Struct values over the default
// proto codec. Field names follow the json tags of the message types, so a
// nil list arrives as null and decodes back to nil.

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}

	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to convert message")
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
