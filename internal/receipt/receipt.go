// Package receipt issues signed references for simulated redemptions.
// Nothing is paid and nothing is stored: the receipt only lets a user quote
// back what the service confirmed.
package receipt

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type Receipt struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	AmountMB  float64       `json:"amount_mb"`
	Payout    float64       `json:"payout"`
	IssuedAt  int64         `json:"issued_at"`
	Digest    common.Hash   `json:"digest"`
	Signature hexutil.Bytes `json:"signature"`
}

// Signer signs receipts with the operator key.
type Signer struct {
	privKey *ecdsa.PrivateKey
}

// NewSigner loads a hex private key ("0x" optional). An empty key yields a
// fresh random key, which is enough for a simulation that never settles.
func NewSigner(keyHex string) (*Signer, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	if keyHex == "" {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate receipt key: %w", err)
		}
		return &Signer{privKey: k}, nil
	}
	k, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("load receipt key: %w", err)
	}
	return &Signer{privKey: k}, nil
}

func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.privKey.PublicKey)
}

// Issue builds and signs a receipt for a confirmed redemption.
func (s *Signer) Issue(label string, amountMB, payout float64, at time.Time) (*Receipt, error) {
	r := &Receipt{
		ID:       uuid.NewString(),
		Label:    label,
		AmountMB: amountMB,
		Payout:   payout,
		IssuedAt: at.Unix(),
	}
	r.Digest = BuildDigest(r)
	sig, err := crypto.Sign(hashMessage(r.Digest[:]), s.privKey)
	if err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}
	// 27/28 V like every other wallet-facing signature
	sig[64] += 27
	r.Signature = sig
	return r, nil
}

// BuildDigest builds keccak256(id, label, amountMB, payout, issuedAt).
func BuildDigest(r *Receipt) common.Hash {
	data := make([]byte, 0, len(r.ID)+1+len(r.Label)+1+3*8)
	data = append(data, []byte(r.ID)...)
	data = append(data, 0)
	data = append(data, []byte(r.Label)...)
	data = append(data, 0)
	data = binary.BigEndian.AppendUint64(data, math.Float64bits(r.AmountMB))
	data = binary.BigEndian.AppendUint64(data, math.Float64bits(r.Payout))
	data = binary.BigEndian.AppendUint64(data, uint64(r.IssuedAt))
	return crypto.Keccak256Hash(data)
}

// Verify recomputes the digest and recovers the signing address.
func Verify(r *Receipt) (common.Address, error) {
	if len(r.Signature) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	if BuildDigest(r) != r.Digest {
		return common.Address{}, errors.New("digest mismatch")
	}
	sig := make([]byte, 65)
	copy(sig, r.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hashMessage(r.Digest[:]), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// hashMessage is the EIP-191 personal-message hash.
func hashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}
