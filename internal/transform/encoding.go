package transform

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// codecOp is one direction of a text encoding.
type codecOp struct {
	BaseOperation
	fn func([]byte) ([]byte, error)
}

func (op *codecOp) Execute(ctx context.Context, input []byte, params map[string]interface{}) ([]byte, error) {
	out, err := op.fn(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Name(), err)
	}
	return out, nil
}

// registerCodec adds name_encode and name_decode as each other's inverse.
func registerCodec(name, what string, enc, dec func([]byte) ([]byte, error)) {
	encode := &codecOp{
		BaseOperation: BaseOperation{
			NameValue:        name + "_encode",
			TypeValue:        OperationTypeEncode,
			DescriptionValue: "Encode bytes as " + what,
		},
		fn: enc,
	}
	decode := &codecOp{
		BaseOperation: BaseOperation{
			NameValue:        name + "_decode",
			TypeValue:        OperationTypeDecode,
			DescriptionValue: "Decode " + what + " to bytes",
		},
		fn: dec,
	}
	encode.ReverseOp = decode
	decode.ReverseOp = encode
	mustRegister(encode, decode)
}

// stripSpace drops all whitespace so wrapped files decode directly.
func stripSpace(in []byte) string {
	return strings.Join(strings.Fields(string(in)), "")
}

func init() {
	registerCodec("base64", "standard Base64",
		func(in []byte) ([]byte, error) {
			return []byte(base64.StdEncoding.EncodeToString(in)), nil
		},
		func(in []byte) ([]byte, error) {
			return base64.StdEncoding.DecodeString(stripSpace(in))
		},
	)
	registerCodec("hex", "lowercase hexadecimal",
		func(in []byte) ([]byte, error) {
			return []byte(hex.EncodeToString(in)), nil
		},
		func(in []byte) ([]byte, error) {
			s := strings.TrimPrefix(stripSpace(in), "0x")
			return hex.DecodeString(strings.ReplaceAll(s, ":", ""))
		},
	)
}
