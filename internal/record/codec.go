package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records cross into byte form as protobuf Struct values in their JSON
// mapping. Float is a JSON number. A Reference is written as a string
// carrying ReferencePrefix and an Int as a decimal string carrying IntPrefix,
// so that neither loses its variant or precision. A literal string that could
// be mistaken for either (or that starts with the escape character) gets a
// leading escape character.
const (
	ReferencePrefix = "CacheReference{"
	IntPrefix       = "CacheInt{"
	markerSuffix    = "}"
	escapeChar      = `\`
)

// EncodeValue converts v to its protobuf Struct value.
func EncodeValue(v Value) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil, Null:
		return structpb.NewNullValue(), nil
	case String:
		s := string(x)
		if strings.HasPrefix(s, escapeChar) || strings.HasPrefix(s, ReferencePrefix) || strings.HasPrefix(s, IntPrefix) {
			s = escapeChar + s
		}
		return structpb.NewStringValue(s), nil
	case Int:
		return structpb.NewStringValue(IntPrefix + strconv.FormatInt(int64(x), 10) + markerSuffix), nil
	case Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("encode value: %v is not representable", f)
		}
		return structpb.NewNumberValue(f), nil
	case Bool:
		return structpb.NewBoolValue(bool(x)), nil
	case Reference:
		return structpb.NewStringValue(ReferencePrefix + string(x) + markerSuffix), nil
	case List:
		lv := &structpb.ListValue{Values: make([]*structpb.Value, len(x))}
		for i, item := range x {
			ev, err := EncodeValue(item)
			if err != nil {
				return nil, err
			}
			lv.Values[i] = ev
		}
		return structpb.NewListValue(lv), nil
	case Composite:
		st := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(x))}
		for k, item := range x {
			ev, err := EncodeValue(item)
			if err != nil {
				return nil, err
			}
			st.Fields[k] = ev
		}
		return structpb.NewStructValue(st), nil
	default:
		return nil, fmt.Errorf("encode value: unexpected %T", v)
	}
}

// DecodeValue is the inverse of EncodeValue. Numbers decode as Float.
func DecodeValue(pv *structpb.Value) (Value, error) {
	switch k := pv.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return Null{}, nil
	case *structpb.Value_StringValue:
		s := k.StringValue
		if strings.HasPrefix(s, escapeChar) {
			return String(s[len(escapeChar):]), nil
		}
		if strings.HasPrefix(s, ReferencePrefix) && strings.HasSuffix(s, markerSuffix) {
			return Reference(s[len(ReferencePrefix) : len(s)-len(markerSuffix)]), nil
		}
		if strings.HasPrefix(s, IntPrefix) && strings.HasSuffix(s, markerSuffix) {
			i, err := strconv.ParseInt(s[len(IntPrefix):len(s)-len(markerSuffix)], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("decode value: %q: %w", s, err)
			}
			return Int(i), nil
		}
		return String(s), nil
	case *structpb.Value_NumberValue:
		return Float(k.NumberValue), nil
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue), nil
	case *structpb.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make(List, len(values))
		for i, item := range values {
			dv, err := DecodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		out := make(Composite, len(fields))
		for name, item := range fields {
			dv, err := DecodeValue(item)
			if err != nil {
				return nil, err
			}
			out[name] = dv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode value: unexpected kind %T", k)
	}
}

func encodeRecordStruct(r *Record) (*structpb.Struct, error) {
	fields := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(r.Fields))}
	for k, v := range r.Fields {
		ev, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", r.Key, k, err)
		}
		fields.Fields[k] = ev
	}
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":    structpb.NewStringValue(r.Key),
		"fields": structpb.NewStructValue(fields),
	}}
	if r.MutationID != uuid.Nil {
		st.Fields["mutationId"] = structpb.NewStringValue(r.MutationID.String())
	}
	return st, nil
}

func decodeRecordStruct(st *structpb.Struct) (*Record, error) {
	key := st.GetFields()["key"].GetStringValue()
	if key == "" {
		return nil, fmt.Errorf("decode record: missing key")
	}
	r := New(key)
	if m := st.GetFields()["mutationId"].GetStringValue(); m != "" {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("decode record %s: mutation id: %w", key, err)
		}
		r.MutationID = id
	}
	for name, pv := range st.GetFields()["fields"].GetStructValue().GetFields() {
		v, err := DecodeValue(pv)
		if err != nil {
			return nil, fmt.Errorf("decode record %s field %s: %w", key, name, err)
		}
		r.Fields[name] = v
	}
	return r, nil
}

// EncodeRecord serializes r.
func EncodeRecord(r *Record) ([]byte, error) {
	st, err := encodeRecordStruct(r)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}

// DecodeRecord parses bytes produced by EncodeRecord.
func DecodeRecord(data []byte) (*Record, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return decodeRecordStruct(&st)
}

// MarshalRecords serializes a key→record snapshot as one indented document.
func MarshalRecords(records map[string]*Record) ([]byte, error) {
	root := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(records))}
	for key, r := range records {
		st, err := encodeRecordStruct(r)
		if err != nil {
			return nil, err
		}
		root.Fields[key] = structpb.NewStructValue(st)
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(root)
}

// UnmarshalRecords parses a snapshot written by MarshalRecords.
func UnmarshalRecords(data []byte) (map[string]*Record, error) {
	var root structpb.Struct
	if err := protojson.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make(map[string]*Record, len(root.GetFields()))
	for key, pv := range root.GetFields() {
		r, err := decodeRecordStruct(pv.GetStructValue())
		if err != nil {
			return nil, err
		}
		if r.Key != key {
			return nil, fmt.Errorf("decode records: entry %q holds record %q", key, r.Key)
		}
		out[key] = r
	}
	return out, nil
}
