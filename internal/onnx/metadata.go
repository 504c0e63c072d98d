// Package onnx reads descriptive metadata from ONNX model files without a
// runtime: IR version, producer, opsets and the graph's declared inputs and
// outputs. Only the fields needed for diagnostics are decoded.
package onnx

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrNotONNX = errors.New("not an ONNX model")

// Field numbers from onnx.proto.
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelDomain          protowire.Number = 4
	modelVersion         protowire.Number = 5
	modelDocString       protowire.Number = 6
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8
	modelMetadataProps   protowire.Number = 14

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	tensorName protowire.Number = 8

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensor     protowire.Number = 1
	tensorElemType protowire.Number = 1
	tensorShape    protowire.Number = 2
	shapeDim       protowire.Number = 1
	dimValue       protowire.Number = 1
	dimParam       protowire.Number = 2
	opsetDomain    protowire.Number = 1
	opsetVersion   protowire.Number = 2
	entryKey       protowire.Number = 1
	entryValue     protowire.Number = 2
)

type Opset struct {
	Domain  string
	Version int64
}

// Dim is one tensor dimension: either a fixed Value or a symbolic Param.
type Dim struct {
	Value int64
	Param string
}

func (d Dim) String() string {
	if d.Param != "" {
		return d.Param
	}
	if d.Value <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d", d.Value)
}

type ValueInfo struct {
	Name     string
	ElemType int32
	Dims     []Dim
}

func (v ValueInfo) String() string {
	dims := make([]string, len(v.Dims))
	for i, d := range v.Dims {
		dims[i] = d.String()
	}
	return fmt.Sprintf("%s[%s] %s", v.Name, strings.Join(dims, ","), ElemTypeName(v.ElemType))
}

type Metadata struct {
	IRVersion        int64
	ProducerName     string
	ProducerVersion  string
	Domain           string
	ModelVersion     int64
	DocString        string
	Opsets           []Opset
	GraphName        string
	Inputs           []ValueInfo
	Outputs          []ValueInfo
	NodeCount        int
	InitializerCount int
	Props            map[string]string
}

// OpsetVersion returns the version imported for the default ("" or "ai.onnx") domain.
func (m *Metadata) OpsetVersion() int64 {
	for _, o := range m.Opsets {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			return o.Version
		}
	}
	return 0
}

var elemTypeNames = map[int32]string{
	1: "float32", 2: "uint8", 3: "int8", 4: "uint16", 5: "int16", 6: "int32",
	7: "int64", 8: "string", 9: "bool", 10: "float16", 11: "float64",
	12: "uint32", 13: "uint64", 14: "complex64", 15: "complex128", 16: "bfloat16",
}

func ElemTypeName(t int32) string {
	if name, ok := elemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", t)
}

type fieldFunc func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error

// walk iterates the top-level fields of one message. Varints arrive in v,
// length-delimited fields in val; other wire types are skipped.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, nil, v); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, val, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// Parse decodes a serialized ModelProto.
func Parse(b []byte) (*Metadata, error) {
	m := &Metadata{Props: make(map[string]string)}
	var graph []byte

	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		switch {
		case num == modelIRVersion && typ == protowire.VarintType:
			m.IRVersion = int64(v)
		case num == modelProducerName && typ == protowire.BytesType:
			m.ProducerName = string(val)
		case num == modelProducerVersion && typ == protowire.BytesType:
			m.ProducerVersion = string(val)
		case num == modelDomain && typ == protowire.BytesType:
			m.Domain = string(val)
		case num == modelVersion && typ == protowire.VarintType:
			m.ModelVersion = int64(v)
		case num == modelDocString && typ == protowire.BytesType:
			m.DocString = string(val)
		case num == modelGraph && typ == protowire.BytesType:
			graph = val
		case num == modelOpsetImport && typ == protowire.BytesType:
			o, err := parseOpset(val)
			if err != nil {
				return fmt.Errorf("opset_import: %w", err)
			}
			m.Opsets = append(m.Opsets, o)
		case num == modelMetadataProps && typ == protowire.BytesType:
			k, v, err := parseEntry(val)
			if err != nil {
				return fmt.Errorf("metadata_props: %w", err)
			}
			m.Props[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotONNX, err)
	}
	if m.IRVersion <= 0 {
		return nil, fmt.Errorf("%w: missing ir_version", ErrNotONNX)
	}
	if graph != nil {
		if err := parseGraph(graph, m); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
	}
	return m, nil
}

func parseGraph(b []byte, m *Metadata) error {
	initializers := make(map[string]struct{})
	var inputs []ValueInfo

	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case graphNode:
			m.NodeCount++
		case graphName:
			m.GraphName = string(val)
		case graphInitializer:
			m.InitializerCount++
			name, err := parseTensorName(val)
			if err != nil {
				return fmt.Errorf("initializer: %w", err)
			}
			initializers[name] = struct{}{}
		case graphInput:
			vi, err := parseValueInfo(val)
			if err != nil {
				return fmt.Errorf("input: %w", err)
			}
			inputs = append(inputs, vi)
		case graphOutput:
			vi, err := parseValueInfo(val)
			if err != nil {
				return fmt.Errorf("output: %w", err)
			}
			m.Outputs = append(m.Outputs, vi)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Models before IR version 4 list initializers among the graph inputs.
	for _, in := range inputs {
		if _, ok := initializers[in.Name]; ok {
			continue
		}
		m.Inputs = append(m.Inputs, in)
	}
	return nil
}

func parseTensorName(b []byte) (string, error) {
	var name string
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		if num == tensorName && typ == protowire.BytesType {
			name = string(val)
		}
		return nil
	})
	return name, err
}

func parseValueInfo(b []byte) (ValueInfo, error) {
	var vi ValueInfo
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case valueInfoName:
			vi.Name = string(val)
		case valueInfoType:
			return walk(val, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
				if num != typeTensor || typ != protowire.BytesType {
					return nil
				}
				return parseTensorType(val, &vi)
			})
		}
		return nil
	})
	return vi, err
}

func parseTensorType(b []byte, vi *ValueInfo) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		switch {
		case num == tensorElemType && typ == protowire.VarintType:
			vi.ElemType = int32(v)
		case num == tensorShape && typ == protowire.BytesType:
			return walk(val, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
				if num != shapeDim || typ != protowire.BytesType {
					return nil
				}
				d, err := parseDim(val)
				if err != nil {
					return err
				}
				vi.Dims = append(vi.Dims, d)
				return nil
			})
		}
		return nil
	})
}

func parseDim(b []byte) (Dim, error) {
	var d Dim
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		switch {
		case num == dimValue && typ == protowire.VarintType:
			d.Value = int64(v)
		case num == dimParam && typ == protowire.BytesType:
			d.Param = string(val)
		}
		return nil
	})
	return d, err
}

func parseOpset(b []byte) (Opset, error) {
	var o Opset
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		switch {
		case num == opsetDomain && typ == protowire.BytesType:
			o.Domain = string(val)
		case num == opsetVersion && typ == protowire.VarintType:
			o.Version = int64(v)
		}
		return nil
	})
	return o, err
}

func parseEntry(b []byte) (string, string, error) {
	var k, v string
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case entryKey:
			k = string(val)
		case entryValue:
			v = string(val)
		}
		return nil
	})
	return k, v, err
}
