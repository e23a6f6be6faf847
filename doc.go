/*
Package edict implements a typed, recursively nested dictionary that
serializes to and from MessagePack.

A dictionary node is in one of three states:

1. Empty, right after creation or Clear. Serializes as an empty map.

2. Value, holding exactly one typed value whose type is fixed at insertion.

3. Map, holding uniquely owned child dictionaries under string keys.

Values are stored type-erased behind a per-type descriptor, and are accessed
through generic functions (Insert, Get, GetOr, As, Set) that return a pointer
into the stored value. Mutating the value through that pointer mutates the
dictionary; the next Serialize picks the change up without any bookkeeping.

# Exchanging data

Serialize writes the whole tree as one message. A receiving side merges a
message in one of two ways:

  - Extend creates missing keys, inferring their types from the wire data, and
    never overwrites keys that already hold something.

  - Update only overwrites values that already exist, checking that the wire
    data fits their types. It never creates keys.

Malformed wire data is reported (see Options.OnEvent) and otherwise ignored by
both; type mismatches are returned as *TypeError annotated with the key path.

# Technical Details

**Type inference.**
Extend maps wire types to Go types: bool to bool, negative ints to int64,
non-negative ints to uint64, float to float32, double to float64, str to string.
Numeric arrays become r2.Vec, r3.Vec, quat.Number or a 3x3 mat.Dense for
lengths 2, 3, 4 and 9, and mat.VecDense otherwise. Arrays of strings become
[]string and arrays of arrays become []mat.VecDense.

**Tensor encoding.**
Tensors are arrays of doubles. Matrices are flattened row-major; quaternions
are written as w, x, y, z.

**Unknown types.**
Types without a codec are serialized as the string "<typeid:NAME>". Types
implementing msgpack.CustomEncoder and msgpack.CustomDecoder bring their own.

## Persistence

WriteFile and ReadFile store a single message per file. A Recorder appends
snapshots to a journal (see package journal), and package store keeps named
snapshots in a Bolt database.
*/
package edict
