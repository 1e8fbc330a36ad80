package merkle

import "strings"

const (
	SideLeft  = "L"
	SideRight = "R"
)

type InclusionProof struct {
	Index    int         `json:"index"`
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Path     []ProofStep `json:"path"`
}

type ProofStep struct {
	Side        string `json:"side"`
	SiblingHash string `json:"sibling_hash"`
}

// VerifyInclusionProof folds the proof path from the leaf and compares the
// result with the proof root and, when given, the trusted root.
func VerifyInclusionProof(proof InclusionProof, trustedRoot string) bool {
	if trustedRoot != "" && !strings.EqualFold(proof.Root, trustedRoot) {
		return false
	}
	current := proof.LeafHash
	for _, step := range proof.Path {
		if step.Side == SideLeft {
			current = nodeHash(step.SiblingHash, current)
		} else {
			current = nodeHash(current, step.SiblingHash)
		}
	}
	return strings.EqualFold(current, proof.Root)
}

// VerifyValue checks that value is the leaf the proof commits to.
func VerifyValue(value string, proof InclusionProof, trustedRoot string) bool {
	return LeafHash(value) == proof.LeafHash && VerifyInclusionProof(proof, trustedRoot)
}
