// Package merkle commits to an ordered list of audit seals. Leaves and
// interior nodes are domain-separated so a leaf can never be replayed as a
// node.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	leafPrefix = "seasa:audit:leaf:v1"
	nodePrefix = "seasa:audit:node:v1"
)

var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

type Leaf struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Hash  string `json:"hash"`
}

// Tree is a binary hash tree. Odd levels duplicate their last node.
type Tree struct {
	Leaves []Leaf
	Root   string
	Levels [][]string // Levels[0] are leaf hashes, the last level is the root
}

// Build constructs a tree over values in order. An empty input yields an
// empty root.
func Build(values []string) *Tree {
	if len(values) == 0 {
		return &Tree{}
	}

	tree := &Tree{Leaves: make([]Leaf, len(values))}
	level := make([]string, len(values))
	for i, v := range values {
		h := LeafHash(v)
		tree.Leaves[i] = Leaf{Index: i, Value: v, Hash: h}
		level[i] = h
	}

	for len(level) > 1 {
		tree.Levels = append(tree.Levels, level)
		level = nextLevel(level)
	}
	tree.Levels = append(tree.Levels, level)
	tree.Root = level[0]
	return tree
}

// LeafHash is SHA256(prefix || 0x00 || value).
func LeafHash(value string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(value)
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes[:len(hashes):len(hashes)], hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

// Proof returns the inclusion proof for leaf i.
func (t *Tree) Proof(i int) (InclusionProof, error) {
	if i < 0 || i >= len(t.Leaves) {
		return InclusionProof{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	proof := InclusionProof{
		Index:    i,
		LeafHash: t.Leaves[i].Hash,
		Root:     t.Root,
	}
	idx := i
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}
		side := SideRight
		if sibling < idx {
			side = SideLeft
		}
		proof.Path = append(proof.Path, ProofStep{Side: side, SiblingHash: level[sibling]})
		idx /= 2
	}
	return proof, nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
