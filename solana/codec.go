package nosana_protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrUnknownIdlType is returned when a codec operation hits a type it
	// cannot size or translate.
	ErrUnknownIdlType = errors.New("unknown IDL type")

	// ErrMissingAccount is returned when an instruction's account list
	// references a name the caller did not resolve.
	ErrMissingAccount = errors.New("missing account")
)

// MethodDiscriminator returns the 8-byte instruction discriminator:
// the first 8 bytes of sha256("global:" + name). Exactly 8, never 16.
func MethodDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

// AccountDiscriminator returns the 8-byte discriminator prefixing every
// typed account blob: the first 8 bytes of sha256("account:" + name).
func AccountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

// Sizeof returns the packed byte size of a fixed-size IDL type.
// publicKey is always 32 bytes on the wire. Variable-length types (vec)
// and defined/option types have no fixed size and fail.
func Sizeof(t IDLType) (int, error) {
	switch {
	case t.Primitive != "":
		switch t.Primitive {
		case "u8", "i8", "bool":
			return 1, nil
		case "u16", "i16":
			return 2, nil
		case "u32", "i32":
			return 4, nil
		case "u64", "i64":
			return 8, nil
		case "publicKey":
			return 32, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownIdlType, t.Primitive)
	case t.Array != nil:
		inner, err := Sizeof(*t.Array)
		if err != nil {
			return 0, err
		}
		return t.ArrayLen * inner, nil
	case t.Vec != nil:
		return 0, fmt.Errorf("%w: vec has no fixed size", ErrUnknownIdlType)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownIdlType, t)
}

// EncodeInstructionData packs an instruction call into its wire form:
// 8-byte method discriminator followed by the arguments in declared order,
// integers little-endian, vecs prefixed with a 4-byte LE count.
func EncodeInstructionData(ix *IDLInstruction, args []interface{}) ([]byte, error) {
	if len(args) != len(ix.Args) {
		return nil, fmt.Errorf("instruction %s takes %d args, got %d", ix.Name, len(ix.Args), len(args))
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	disc := MethodDiscriminator(ix.Name)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	for i, spec := range ix.Args {
		if err := encodeValue(enc, spec.Type, args[i]); err != nil {
			return nil, fmt.Errorf("failed to encode arg %q of %s: %w", spec.Name, ix.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *bin.Encoder, t IDLType, v interface{}) error {
	switch {
	case t.Primitive != "":
		return encodePrimitive(enc, t.Primitive, v)
	case t.Array != nil:
		return encodeElements(enc, *t.Array, v, t.ArrayLen)
	case t.Vec != nil:
		n, err := elementCount(v)
		if err != nil {
			return err
		}
		if err := enc.WriteUint32(uint32(n), binary.LittleEndian); err != nil {
			return err
		}
		return encodeElements(enc, *t.Vec, v, n)
	}
	return fmt.Errorf("%w: %s", ErrUnknownIdlType, t)
}

func encodePrimitive(enc *bin.Encoder, prim string, v interface{}) error {
	switch prim {
	case "u8":
		b, ok := v.(uint8)
		if !ok {
			return fmt.Errorf("expected uint8, got %T", v)
		}
		return enc.WriteByte(b)
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return enc.WriteByte(1)
		}
		return enc.WriteByte(0)
	case "u32":
		n, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("expected uint32, got %T", v)
		}
		return enc.WriteUint32(n, binary.LittleEndian)
	case "u64":
		n, ok := v.(uint64)
		if !ok {
			return fmt.Errorf("expected uint64, got %T", v)
		}
		return enc.WriteUint64(n, binary.LittleEndian)
	case "i64":
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		return enc.WriteInt64(n, binary.LittleEndian)
	case "publicKey":
		pk, err := asPublicKey(v)
		if err != nil {
			return err
		}
		return enc.WriteBytes(pk.Bytes(), false)
	}
	return fmt.Errorf("%w: %s", ErrUnknownIdlType, prim)
}

func encodeElements(enc *bin.Encoder, elem IDLType, v interface{}, n int) error {
	// [u8; N] and vec<u8> take raw byte slices or arrays directly.
	if elem.Primitive == "u8" {
		b, err := asBytes(v)
		if err != nil {
			return err
		}
		if len(b) != n {
			return fmt.Errorf("expected %d bytes, got %d", n, len(b))
		}
		return enc.WriteBytes(b, false)
	}

	items, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("expected element slice, got %T", v)
	}
	if len(items) != n {
		return fmt.Errorf("expected %d elements, got %d", n, len(items))
	}
	for _, item := range items {
		if err := encodeValue(enc, elem, item); err != nil {
			return err
		}
	}
	return nil
}

func elementCount(v interface{}) (int, error) {
	switch val := v.(type) {
	case []interface{}:
		return len(val), nil
	case []byte:
		return len(val), nil
	}
	return 0, fmt.Errorf("expected slice, got %T", v)
}

func asBytes(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case [32]byte:
		return val[:], nil
	case solana.PublicKey:
		return val.Bytes(), nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}

func asPublicKey(v interface{}) (solana.PublicKey, error) {
	switch val := v.(type) {
	case solana.PublicKey:
		return val, nil
	case [32]byte:
		return solana.PublicKeyFromBytes(val[:]), nil
	case string:
		return solana.PublicKeyFromBase58(val)
	}
	return solana.PublicKey{}, fmt.Errorf("expected public key, got %T", v)
}

// BuildAccountMetas walks an instruction's declared account list and
// resolves each name through the given table. The order of the result
// matches the IDL. Fails with ErrMissingAccount before any network I/O.
func BuildAccountMetas(ix *IDLInstruction, accounts map[string]solana.PublicKey) ([]*solana.AccountMeta, error) {
	metas := make([]*solana.AccountMeta, 0, len(ix.Accounts))
	for _, acc := range ix.Accounts {
		pk, ok := accounts[acc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q required by instruction %s", ErrMissingAccount, acc.Name, ix.Name)
		}
		metas = append(metas, solana.NewAccountMeta(pk, acc.IsMut, acc.IsSigner))
	}
	return metas, nil
}

// DecodeAccount verifies the 8-byte account discriminator and reads the
// declared fields in order into a name → value map. Integers come back as
// uint8/uint32/uint64/int64, public keys as solana.PublicKey, vecs and
// arrays as []interface{} (vec<u8> and [u8; N] as []byte).
func DecodeAccount(def *IDLTypeDefinition, data []byte) (map[string]interface{}, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("account blob too short for %s: %d bytes", def.Name, len(data))
	}
	disc := AccountDiscriminator(def.Name)
	if !bytes.Equal(data[:8], disc[:]) {
		return nil, fmt.Errorf("account discriminator mismatch for %s", def.Name)
	}

	dec := bin.NewBorshDecoder(data[8:])
	out := make(map[string]interface{}, len(def.Type.Fields))
	for _, field := range def.Type.Fields {
		v, err := decodeValue(dec, field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %q of %s: %w", field.Name, def.Name, err)
		}
		out[field.Name] = v
	}
	return out, nil
}

// EncodeAccount packs a field map back into an account blob: 8-byte type
// discriminator followed by the declared fields in order. The inverse of
// DecodeAccount.
func EncodeAccount(def *IDLTypeDefinition, fields map[string]interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	disc := AccountDiscriminator(def.Name)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	for _, field := range def.Type.Fields {
		v, ok := fields[field.Name]
		if !ok {
			return nil, fmt.Errorf("field %q of %s not provided", field.Name, def.Name)
		}
		if err := encodeValue(enc, field.Type, v); err != nil {
			return nil, fmt.Errorf("failed to encode field %q of %s: %w", field.Name, def.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func decodeValue(dec *bin.Decoder, t IDLType) (interface{}, error) {
	switch {
	case t.Primitive != "":
		return decodePrimitive(dec, t.Primitive)
	case t.Array != nil:
		return decodeElements(dec, *t.Array, t.ArrayLen)
	case t.Vec != nil:
		n, err := dec.ReadUint32(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return decodeElements(dec, *t.Vec, int(n))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownIdlType, t)
}

func decodePrimitive(dec *bin.Decoder, prim string) (interface{}, error) {
	switch prim {
	case "u8":
		return dec.ReadByte()
	case "bool":
		b, err := dec.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case "u32":
		return dec.ReadUint32(binary.LittleEndian)
	case "u64":
		return dec.ReadUint64(binary.LittleEndian)
	case "i64":
		return dec.ReadInt64(binary.LittleEndian)
	case "publicKey":
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		return solana.PublicKeyFromBytes(raw), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownIdlType, prim)
}

func decodeElements(dec *bin.Decoder, elem IDLType, n int) (interface{}, error) {
	if elem.Primitive == "u8" {
		return dec.ReadNBytes(n)
	}
	items := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		v, err := decodeValue(dec, elem)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// FieldOffset computes the byte offset of a field within an account blob,
// counting the 8-byte discriminator. Fails if the walk crosses a
// variable-length field before reaching the target.
func FieldOffset(def *IDLTypeDefinition, fieldName string) (int, error) {
	offset := 8
	for _, field := range def.Type.Fields {
		if field.Name == fieldName {
			return offset, nil
		}
		size, err := Sizeof(field.Type)
		if err != nil {
			return 0, fmt.Errorf("cannot compute offset of %q in %s: %w", fieldName, def.Name, err)
		}
		offset += size
	}
	return 0, fmt.Errorf("field %q not found in account type %s", fieldName, def.Name)
}

// AccountFilters translates field equality constraints into RPC memcmp
// filters at IDL-computed byte offsets, always including the account type
// discriminator at offset 0. Fails before any RPC call when a field is
// unknown or unreachable.
func AccountFilters(def *IDLTypeDefinition, fieldEq map[string]interface{}) ([]rpc.RPCFilter, error) {
	disc := AccountDiscriminator(def.Name)
	filters := []rpc.RPCFilter{
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(disc[:])}},
	}
	known := make(map[string]IDLType, len(def.Type.Fields))
	for _, field := range def.Type.Fields {
		known[field.Name] = field.Type
	}
	for name, v := range fieldEq {
		fieldType, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("filter field %q not found in account type %s", name, def.Name)
		}
		offset, err := FieldOffset(def, name)
		if err != nil {
			return nil, err
		}
		raw, err := scalarBytes(fieldType, v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter value for %q: %w", name, err)
		}
		filters = append(filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: uint64(offset), Bytes: solana.Base58(raw)},
		})
	}
	return filters, nil
}

func scalarBytes(t IDLType, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := encodeValue(bin.NewBorshEncoder(buf), t, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
