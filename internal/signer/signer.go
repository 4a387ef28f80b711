// Package signer implements the typed-data signing protocol for SX.bet
// orders and batch cancellations.
//
// Both payloads are EIP-712 domain-separated structures. The digest of the
// order typed data doubles as the order's identity (orderHash): the exchange
// and the maker derive the same hash independently from the ordered field
// tuple, signature excluded.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	orderDomainName    = "SX Bet"
	orderDomainVersion = "6.0"

	cancelDomainName    = "CancelOrderV2SportX"
	cancelDomainVersion = "1.0"
)

// Order is the unsigned order tuple. All integer fields are in the venue's
// scaled wire units (odds x10^20, sizes in base-token units).
type Order struct {
	MarketHash               string
	BaseToken                common.Address
	TotalBetSize             *big.Int
	PercentageOdds           *big.Int
	Expiry                   *big.Int
	APIExpiry                *big.Int
	Salt                     *big.Int
	Maker                    common.Address
	Executor                 common.Address
	IsMakerBettingOutcomeOne bool
}

// Signer signs orders and cancellations with the operator's private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	maker      common.Address
	chainID    int64
}

// New derives the maker address from the private key hex.
func New(privateKeyHex string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		privateKey: key,
		maker:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
	}, nil
}

// Maker returns the operator's address.
func (s *Signer) Maker() common.Address {
	return s.maker
}

// NewSalt returns a fresh random 256-bit nonce.
func NewSalt() *big.Int {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("salt entropy unavailable: %v", err))
	}
	return new(big.Int).SetBytes(buf[:])
}

// SignOrder computes the order's typed-data digest and signs it. The digest
// hex is the orderHash the exchange will report back.
func (s *Signer) SignOrder(o *Order) (orderHash string, signature string, err error) {
	typedData := s.orderTypedData(o)
	hash, err := typedDataDigest(typedData)
	if err != nil {
		return "", "", fmt.Errorf("hash order: %w", err)
	}

	sig, err := s.sign(hash)
	if err != nil {
		return "", "", err
	}
	return hash.Hex(), sig, nil
}

// SignCancellation signs a batch cancellation binding the order hashes, a
// random salt, and a timestamp under the cancellation domain.
func (s *Signer) SignCancellation(orderHashes []string, salt *big.Int, timestamp int64) (string, error) {
	typedData := s.cancelTypedData(orderHashes, salt, timestamp)
	hash, err := typedDataDigest(typedData)
	if err != nil {
		return "", fmt.Errorf("hash cancellation: %w", err)
	}
	return s.sign(hash)
}

func (s *Signer) sign(hash common.Hash) (string, error) {
	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	// Ethereum uses 27/28 for V
	if signature[64] < 27 {
		signature[64] += 27
	}
	return fmt.Sprintf("0x%x", signature), nil
}

// typedDataDigest computes keccak256("\x19\x01" || domainSeparator || messageHash).
func typedDataDigest(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, err
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, err
	}
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	return crypto.Keccak256Hash(rawData), nil
}

func (s *Signer) orderTypedData(o *Order) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Order": {
				{Name: "marketHash", Type: "bytes32"},
				{Name: "baseToken", Type: "address"},
				{Name: "totalBetSize", Type: "uint256"},
				{Name: "percentageOdds", Type: "uint256"},
				{Name: "expiry", Type: "uint256"},
				{Name: "apiExpiry", Type: "uint256"},
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "executor", Type: "address"},
				{Name: "isMakerBettingOutcomeOne", Type: "bool"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:    orderDomainName,
			Version: orderDomainVersion,
			ChainId: math.NewHexOrDecimal256(s.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"marketHash":               o.MarketHash,
			"baseToken":                o.BaseToken.Hex(),
			"totalBetSize":             o.TotalBetSize.String(),
			"percentageOdds":           o.PercentageOdds.String(),
			"expiry":                   o.Expiry.String(),
			"apiExpiry":                o.APIExpiry.String(),
			"salt":                     o.Salt.String(),
			"maker":                    o.Maker.Hex(),
			"executor":                 o.Executor.Hex(),
			"isMakerBettingOutcomeOne": o.IsMakerBettingOutcomeOne,
		},
	}
}

func (s *Signer) cancelTypedData(orderHashes []string, salt *big.Int, timestamp int64) apitypes.TypedData {
	hashes := make([]interface{}, len(orderHashes))
	for i, h := range orderHashes {
		hashes[i] = h
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "salt", Type: "bytes32"},
			},
			"Details": {
				{Name: "orderHashes", Type: "bytes32[]"},
				{Name: "timestamp", Type: "uint256"},
			},
		},
		PrimaryType: "Details",
		Domain: apitypes.TypedDataDomain{
			Name:    cancelDomainName,
			Version: cancelDomainVersion,
			ChainId: math.NewHexOrDecimal256(s.chainID),
			Salt:    hexutil.Encode(common.BigToHash(salt).Bytes()),
		},
		Message: apitypes.TypedDataMessage{
			"orderHashes": hashes,
			"timestamp":   big.NewInt(timestamp).String(),
		},
	}
}
