package nosana_protocol

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrIdlUnavailable is returned when a program has no IDL account on-chain,
// or the account is empty.
var ErrIdlUnavailable = errors.New("program IDL unavailable")

type IDL struct {
	Version      string              `json:"version"`
	Name         string              `json:"name"`
	Instructions []IDLInstruction    `json:"instructions"`
	Accounts     []IDLTypeDefinition `json:"accounts"`
	Types        []IDLTypeDefinition `json:"types"`
	Errors       []IDLError          `json:"errors"`
}

type IDLInstruction struct {
	Name     string       `json:"name"`
	Args     []IDLField   `json:"args"`
	Accounts []IDLAccount `json:"accounts"`
}

type IDLField struct {
	Name string  `json:"name"`
	Type IDLType `json:"type"`
}

type IDLAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

type IDLTypeDefinition struct {
	Name string `json:"name"`
	Type struct {
		Kind   string     `json:"kind"`
		Fields []IDLField `json:"fields"`
	} `json:"type"`
}

type IDLError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// IDLType is either a primitive type tag ("u8", "u32", "u64", "i64",
// "publicKey") or a compound {"vec": inner}, {"array": [inner, len]},
// {"option": inner}, {"defined": name}.
type IDLType struct {
	Primitive string
	Vec       *IDLType
	Array     *IDLType
	ArrayLen  int
	Option    *IDLType
	Defined   string
}

func (t *IDLType) UnmarshalJSON(data []byte) error {
	var prim string
	if err := json.Unmarshal(data, &prim); err == nil {
		t.Primitive = prim
		return nil
	}

	var compound struct {
		Vec     *IDLType          `json:"vec"`
		Array   []json.RawMessage `json:"array"`
		Option  *IDLType          `json:"option"`
		Defined string            `json:"defined"`
	}
	if err := json.Unmarshal(data, &compound); err != nil {
		return fmt.Errorf("failed to parse IDL type %s: %w", string(data), err)
	}

	switch {
	case compound.Vec != nil:
		t.Vec = compound.Vec
	case len(compound.Array) == 2:
		var inner IDLType
		if err := json.Unmarshal(compound.Array[0], &inner); err != nil {
			return fmt.Errorf("failed to parse array element type: %w", err)
		}
		var length int
		if err := json.Unmarshal(compound.Array[1], &length); err != nil {
			return fmt.Errorf("failed to parse array length: %w", err)
		}
		t.Array = &inner
		t.ArrayLen = length
	case compound.Option != nil:
		t.Option = compound.Option
	case compound.Defined != "":
		t.Defined = compound.Defined
	default:
		return fmt.Errorf("unrecognized IDL type: %s", string(data))
	}
	return nil
}

func (t IDLType) MarshalJSON() ([]byte, error) {
	switch {
	case t.Primitive != "":
		return json.Marshal(t.Primitive)
	case t.Vec != nil:
		return json.Marshal(map[string]*IDLType{"vec": t.Vec})
	case t.Array != nil:
		return json.Marshal(map[string][2]interface{}{"array": {t.Array, t.ArrayLen}})
	case t.Option != nil:
		return json.Marshal(map[string]*IDLType{"option": t.Option})
	case t.Defined != "":
		return json.Marshal(map[string]string{"defined": t.Defined})
	}
	return nil, fmt.Errorf("cannot marshal empty IDL type")
}

func (t IDLType) String() string {
	switch {
	case t.Primitive != "":
		return t.Primitive
	case t.Vec != nil:
		return fmt.Sprintf("vec<%s>", t.Vec)
	case t.Array != nil:
		return fmt.Sprintf("[%s; %d]", t.Array, t.ArrayLen)
	case t.Option != nil:
		return fmt.Sprintf("option<%s>", t.Option)
	case t.Defined != "":
		return t.Defined
	}
	return "?"
}

// Instruction looks up an instruction spec by name.
func (idl *IDL) Instruction(name string) (*IDLInstruction, error) {
	for i := range idl.Instructions {
		if idl.Instructions[i].Name == name {
			return &idl.Instructions[i], nil
		}
	}
	return nil, fmt.Errorf("instruction %q not found in IDL %s", name, idl.Name)
}

// Account looks up an account type definition by name.
func (idl *IDL) Account(name string) (*IDLTypeDefinition, error) {
	for i := range idl.Accounts {
		if idl.Accounts[i].Name == name {
			return &idl.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account type %q not found in IDL %s", name, idl.Name)
}

func ParseIDL(idlBytes []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(idlBytes, &idl); err != nil {
		return nil, fmt.Errorf("error unmarshalling IDL JSON: %w", err)
	}
	return &idl, nil
}

// The on-chain Anchor IDL account layout is:
//
//	8 bytes discriminator | 32 bytes authority | 4 bytes length (LE) | zlib-compressed JSON
const idlHeaderLen = 8 + 32 + 4

// DecodeIdlAccount inflates and parses the raw data of an on-chain IDL account.
func DecodeIdlAccount(data []byte) (*IDL, error) {
	if len(data) <= idlHeaderLen {
		return nil, ErrIdlUnavailable
	}
	compressedLen := binary.LittleEndian.Uint32(data[8+32 : idlHeaderLen])
	body := data[idlHeaderLen:]
	if int(compressedLen) < len(body) {
		body = body[:compressedLen]
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to open IDL zlib stream: %w", err)
	}
	defer zr.Close()

	idlJSON, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate IDL data: %w", err)
	}
	return ParseIDL(idlJSON)
}

// EncodeIdlAccount packs an IDL back into the on-chain account layout.
// The inverse of DecodeIdlAccount; used by tests and local tooling.
func EncodeIdlAccount(idl *IDL, authority solana.PublicKey) ([]byte, error) {
	idlJSON, err := json.Marshal(idl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal IDL JSON: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(idlJSON); err != nil {
		return nil, fmt.Errorf("failed to compress IDL JSON: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish IDL zlib stream: %w", err)
	}

	out := make([]byte, 0, idlHeaderLen+compressed.Len())
	out = append(out, make([]byte, 8)...) // account discriminator
	out = append(out, authority.Bytes()...)
	out = binary.LittleEndian.AppendUint32(out, uint32(compressed.Len()))
	out = append(out, compressed.Bytes()...)
	return out, nil
}

// idlCache memoizes fetched IDLs for the process lifetime, keyed by
// (program, network). Lookups and insert-if-absent are safe to call
// concurrently.
type idlCache struct {
	mu   sync.Mutex
	idls map[string]*IDL
}

func newIdlCache() *idlCache {
	return &idlCache{idls: make(map[string]*IDL)}
}

func idlCacheKey(program solana.PublicKey, network Network) string {
	return program.String() + "/" + string(network)
}

// GetIdl returns the parsed IDL for a program, fetching and caching it on
// first use. The IDL account lives at the address derived by IdlAddress;
// a second call for the same program never hits the RPC again.
func (c *Client) GetIdl(ctx context.Context, program solana.PublicKey) (*IDL, error) {
	key := idlCacheKey(program, c.Network)

	c.idls.mu.Lock()
	if idl, ok := c.idls.idls[key]; ok {
		c.idls.mu.Unlock()
		return idl, nil
	}
	c.idls.mu.Unlock()

	idlAddr, err := IdlAddress(program)
	if err != nil {
		return nil, fmt.Errorf("failed to derive IDL address for %s: %w", program, err)
	}

	data, err := c.GetAccountData(ctx, idlAddr)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrIdlUnavailable
		}
		return nil, fmt.Errorf("failed to fetch IDL account %s: %w", idlAddr, err)
	}
	if len(data) == 0 {
		return nil, ErrIdlUnavailable
	}

	idl, err := DecodeIdlAccount(data)
	if err != nil {
		return nil, err
	}

	c.idls.mu.Lock()
	if cached, ok := c.idls.idls[key]; ok {
		idl = cached
	} else {
		c.idls.idls[key] = idl
	}
	c.idls.mu.Unlock()
	return idl, nil
}
