package edict

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// NodeType is the wire type of a parsed MessagePack node.
type NodeType int

const (
	NodeNil NodeType = iota
	NodeBool
	NodeInt
	NodeUint
	NodeFloat
	NodeDouble
	NodeStr
	NodeBin
	NodeExt
	NodeArray
	NodeMap
)

var nodeTypeNames = [...]string{
	NodeNil:    "nil",
	NodeBool:   "bool",
	NodeInt:    "int",
	NodeUint:   "uint",
	NodeFloat:  "float",
	NodeDouble: "double",
	NodeStr:    "str",
	NodeBin:    "bin",
	NodeExt:    "ext",
	NodeArray:  "array",
	NodeMap:    "map",
}

func (t NodeType) String() string {
	if t >= 0 && int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "NodeType(" + strconv.Itoa(int(t)) + ")"
}

// IsNumber is true for integer and floating-point node types.
func (t NodeType) IsNumber() bool {
	return t == NodeInt || t == NodeUint || t == NodeFloat || t == NodeDouble
}

// maxParseDepth bounds the nesting of arrays and maps accepted by Parse.
const maxParseDepth = 512

// Node is one element of a parse tree produced by Parse. Raw aliases the
// parsed data, so it stays valid only as long as the caller keeps that data
// unchanged.
type Node struct {
	typ   NodeType
	num   uint64 // bool as 0/1, int as two's complement, uint, float bits
	str   string
	bin   []byte
	items []Node // array elements, or alternating keys and values of a map
	raw   []byte
}

func (n *Node) Type() NodeType {
	return n.typ
}

// Len returns the number of elements of an array or entries of a map, and 0
// for any other node.
func (n *Node) Len() int {
	switch n.typ {
	case NodeArray:
		return len(n.items)
	case NodeMap:
		return len(n.items) / 2
	default:
		return 0
	}
}

// At returns the i-th element of an array node.
func (n *Node) At(i int) *Node {
	if n.typ != NodeArray {
		panic("edict: Node.At called on " + n.typ.String())
	}
	return &n.items[i]
}

// KeyAt returns the key of the i-th entry of a map node.
func (n *Node) KeyAt(i int) *Node {
	if n.typ != NodeMap {
		panic("edict: Node.KeyAt called on " + n.typ.String())
	}
	return &n.items[2*i]
}

// ValueAt returns the value of the i-th entry of a map node.
func (n *Node) ValueAt(i int) *Node {
	if n.typ != NodeMap {
		panic("edict: Node.ValueAt called on " + n.typ.String())
	}
	return &n.items[2*i+1]
}

// Get returns the value stored under a string key of a map node, or nil.
func (n *Node) Get(key string) *Node {
	if n.typ != NodeMap {
		return nil
	}
	for i := 0; i < len(n.items); i += 2 {
		k := &n.items[i]
		if k.typ == NodeStr && k.str == key {
			return &n.items[i+1]
		}
	}
	return nil
}

func (n *Node) Bool() bool {
	return n.num != 0
}

// Int returns the value of an int or uint node as int64.
func (n *Node) Int() int64 {
	return int64(n.num)
}

// Uint returns the value of an int or uint node as uint64.
func (n *Node) Uint() uint64 {
	return n.num
}

// Float returns the value of any numeric node as float64.
func (n *Node) Float() float64 {
	switch n.typ {
	case NodeInt:
		return float64(int64(n.num))
	case NodeUint:
		return float64(n.num)
	case NodeFloat, NodeDouble:
		return math.Float64frombits(n.num)
	default:
		return 0
	}
}

func (n *Node) Str() string {
	return n.str
}

func (n *Node) Bin() []byte {
	return n.bin
}

// Raw returns the encoded bytes of the node, including its header and all
// of its descendants. The slice aliases the parsed data.
func (n *Node) Raw() []byte {
	return n.raw
}

// Decode decodes the node into v using msgpack's reflection-based decoder.
func (n *Node) Decode(v any) error {
	return msgpack.Unmarshal(n.raw, v)
}

// String renders the node in the same compact text form as Dictionary.String.
func (n *Node) String() string {
	var buf strings.Builder
	n.WriteText(&buf)
	return buf.String()
}

func (n *Node) WriteText(buf *strings.Builder) {
	switch n.typ {
	case NodeNil:
		buf.WriteString("null")
	case NodeBool:
		buf.WriteString(strconv.FormatBool(n.Bool()))
	case NodeInt:
		buf.WriteString(strconv.FormatInt(n.Int(), 10))
	case NodeUint:
		buf.WriteString(strconv.FormatUint(n.Uint(), 10))
	case NodeFloat:
		buf.WriteString(strconv.FormatFloat(n.Float(), 'g', -1, 32))
	case NodeDouble:
		buf.WriteString(strconv.FormatFloat(n.Float(), 'g', -1, 64))
	case NodeStr:
		quote(buf, n.str)
	case NodeBin:
		buf.WriteString("<bin:")
		buf.WriteString(strconv.Itoa(len(n.bin)))
		buf.WriteByte('>')
	case NodeExt:
		buf.WriteString("<ext>")
	case NodeArray:
		buf.WriteByte('[')
		for i := range n.items {
			if i > 0 {
				buf.WriteString(", ")
			}
			n.items[i].WriteText(buf)
		}
		buf.WriteByte(']')
	case NodeMap:
		buf.WriteByte('{')
		for i := 0; i < len(n.items); i += 2 {
			if i > 0 {
				buf.WriteString(", ")
			}
			n.items[i].WriteText(buf)
			buf.WriteString(": ")
			n.items[i+1].WriteText(buf)
		}
		buf.WriteByte('}')
	}
}

// Parse parses one MessagePack message. Bytes following the first message
// are ignored; use ParseStream to read concatenated messages.
func Parse(data []byte) (*Node, error) {
	p := newParser(data)
	defer p.release()
	root := new(Node)
	if err := p.parse(root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseStream parses a sequence of concatenated messages, calling fn for each
// one. The node passed to fn is only valid during the call.
func ParseStream(data []byte, fn func(n *Node) error) error {
	p := newParser(data)
	defer p.release()
	for p.r.Len() > 0 {
		var root Node
		if err := p.parse(&root, 0); err != nil {
			return err
		}
		if err := fn(&root); err != nil {
			return err
		}
	}
	return nil
}

type parser struct {
	data []byte
	r    bytes.Reader
	dec  *msgpack.Decoder
}

func newParser(data []byte) *parser {
	p := &parser{data: data}
	p.r.Reset(data)
	p.dec = msgpack.GetDecoder()
	p.dec.ResetDict(&p.r, nil)
	return p
}

func (p *parser) release() {
	msgpack.PutDecoder(p.dec)
	p.dec = nil
}

func (p *parser) off() int {
	return len(p.data) - p.r.Len()
}

func (p *parser) fail(err error, msg string) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return dataErrf(p.data, p.off(), err, "%s", msg)
}

func (p *parser) parse(n *Node, depth int) error {
	if depth > maxParseDepth {
		return p.fail(nil, "msgpack nesting too deep")
	}
	start := p.off()
	c, err := p.dec.PeekCode()
	if err != nil {
		return p.fail(err, "truncated msgpack")
	}

	switch {
	case c == msgpcode.Nil:
		n.typ = NodeNil
		err = p.dec.DecodeNil()

	case c == msgpcode.False || c == msgpcode.True:
		var v bool
		v, err = p.dec.DecodeBool()
		n.typ = NodeBool
		if v {
			n.num = 1
		}

	case c <= msgpcode.PosFixedNumHigh || c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64:
		n.typ = NodeUint
		n.num, err = p.dec.DecodeUint64()

	case c >= msgpcode.NegFixedNumLow || c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64:
		var v int64
		v, err = p.dec.DecodeInt64()
		n.typ = NodeInt
		n.num = uint64(v)

	case c == msgpcode.Float:
		var v float32
		v, err = p.dec.DecodeFloat32()
		n.typ = NodeFloat
		n.num = math.Float64bits(float64(v))

	case c == msgpcode.Double:
		var v float64
		v, err = p.dec.DecodeFloat64()
		n.typ = NodeDouble
		n.num = math.Float64bits(v)

	case msgpcode.IsString(c):
		n.typ = NodeStr
		n.str, err = p.dec.DecodeString()

	case c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32:
		n.typ = NodeBin
		n.bin, err = p.dec.DecodeBytes()

	case (c >= msgpcode.FixExt1 && c <= msgpcode.FixExt16) || (c >= msgpcode.Ext8 && c <= msgpcode.Ext32):
		n.typ = NodeExt
		err = p.dec.Skip()

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		var count int
		count, err = p.dec.DecodeArrayLen()
		if err != nil {
			return p.fail(err, "invalid array header")
		}
		if count < 0 || count > p.r.Len() {
			return p.fail(nil, "array length exceeds remaining data")
		}
		n.typ = NodeArray
		n.items = make([]Node, count)
		for i := range n.items {
			if err := p.parse(&n.items[i], depth+1); err != nil {
				return err
			}
		}

	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		var count int
		count, err = p.dec.DecodeMapLen()
		if err != nil {
			return p.fail(err, "invalid map header")
		}
		if count < 0 || 2*count > p.r.Len() {
			return p.fail(nil, "map length exceeds remaining data")
		}
		n.typ = NodeMap
		n.items = make([]Node, 2*count)
		for i := range n.items {
			if err := p.parse(&n.items[i], depth+1); err != nil {
				return err
			}
		}

	default:
		return p.fail(nil, "invalid msgpack code 0x"+strconv.FormatUint(uint64(c), 16))
	}
	if err != nil {
		return p.fail(err, "malformed "+n.typ.String())
	}
	n.raw = p.data[start:p.off()]
	return nil
}
