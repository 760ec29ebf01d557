package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashLockCommitment is the atomicity guarantee of an intent swap: funds are
// releasable only against secrets whose hashes were committed at order
// placement. Generated fresh per order, never reused. Secrets must not be
// logged or persisted; they leave this struct only through SecretHex on the
// way to the swap service once the matching fill is ready.
type HashLockCommitment struct {
	secrets      [][]byte
	SecretHashes []common.Hash
	Lock         common.Hash
}

// NewHashLockCommitment generates n 32-byte secrets and derives the lock:
// the single secret hash for n = 1, a Merkle root over
// keccak256(uint64 index ++ secretHash) leaves for n > 1.
func NewHashLockCommitment(n int) (*HashLockCommitment, error) {
	if n < 1 {
		return nil, fmt.Errorf("secrets count must be >= 1, got %d", n)
	}

	c := &HashLockCommitment{
		secrets:      make([][]byte, n),
		SecretHashes: make([]common.Hash, n),
	}
	for i := 0; i < n; i++ {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating secret: %w", err)
		}
		c.secrets[i] = secret
		c.SecretHashes[i] = crypto.Keccak256Hash(secret)
	}

	if n == 1 {
		c.Lock = c.SecretHashes[0]
		return c, nil
	}

	leaves := make([]common.Hash, n)
	for i, h := range c.SecretHashes {
		leaves[i] = packedLeaf(uint64(i), h)
	}
	c.Lock = merkleRoot(leaves)
	return c, nil
}

// Count is the number of secrets, one per potential fill.
func (c *HashLockCommitment) Count() int { return len(c.secrets) }

// SecretHex returns the 0x-prefixed preimage for the fill at idx.
func (c *HashLockCommitment) SecretHex(idx int) (string, error) {
	if idx < 0 || idx >= len(c.secrets) {
		return "", fmt.Errorf("no secret for fill index %d", idx)
	}
	return hexutil.Encode(c.secrets[idx]), nil
}

// packedLeaf is keccak256 over the solidity-packed (uint64, bytes32) pair:
// an 8-byte big-endian index followed by the 32-byte secret hash.
func packedLeaf(idx uint64, secretHash common.Hash) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], idx)
	return crypto.Keccak256Hash(buf[:], secretHash.Bytes())
}

// merkleRoot folds the leaf layer pairwise; an odd trailing node is promoted
// unchanged to the next layer.
func merkleRoot(leaves []common.Hash) common.Hash {
	layer := leaves
	for len(layer) > 1 {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i+1 < len(layer); i += 2 {
			next = append(next, crypto.Keccak256Hash(layer[i].Bytes(), layer[i+1].Bytes()))
		}
		if len(layer)%2 == 1 {
			next = append(next, layer[len(layer)-1])
		}
		layer = next
	}
	return layer[0]
}
