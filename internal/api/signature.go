package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nodestake/staking-ledger/internal/pda"
)

const (
	SignerHeader    = "X-Signer"
	SignatureHeader = "X-Signature"
	// NonceHeader carries the request nonce in unix milliseconds. Nonces of a
	// signer must strictly increase.
	NonceHeader = "X-Nonce"
)

var (
	ErrMissingSignature = errors.New("missing signer, signature or nonce header")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleNonce       = errors.New("request nonce outside the accepted window")
)

// RequestDigest is the sha256 of "METHOD PATH\nNONCE\nBODY", the message a
// caller signs for every mutating request
func RequestDigest(method, path string, nonce uint64, body []byte) []byte {
	msg := make([]byte, 0, len(method)+len(path)+len(body)+24)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	msg = strconv.AppendUint(msg, nonce, 10)
	msg = append(msg, '\n')
	msg = append(msg, body...)
	return chainhash.HashB(msg)
}

// SignRequest returns the signer and signature header values for a request
func SignRequest(key *btcec.PrivateKey, method, path string, nonce uint64, body []byte) (string, string, error) {
	sig, err := schnorr.Sign(key, RequestDigest(method, path, nonce, body))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign request: %w", err)
	}
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey())), hex.EncodeToString(sig.Serialize()), nil
}

// ParseNonce reads the nonce header and checks it is within window of now
func ParseNonce(header string, now time.Time, window time.Duration) (uint64, error) {
	if header == "" {
		return 0, ErrMissingSignature
	}
	nonce, err := strconv.ParseUint(header, 10, 64)
	if err != nil || nonce == 0 || nonce > math.MaxInt64 {
		return 0, fmt.Errorf("%w: nonce must be a positive integer", ErrInvalidSignature)
	}

	drift := now.Sub(time.UnixMilli(int64(nonce)))
	if drift > window || drift < -window {
		return 0, ErrStaleNonce
	}
	return nonce, nil
}

// VerifyRequest checks a BIP-340 signature over the request and returns the
// caller identity. Replay protection is up to the caller: the nonce must be
// checked against the last one accepted from the signer.
func VerifyRequest(signerHex, signatureHex, method, path string, nonce uint64, body []byte) (pda.Address, error) {
	if signerHex == "" || signatureHex == "" {
		return pda.Address{}, ErrMissingSignature
	}

	rawKey, err := hex.DecodeString(signerHex)
	if err != nil {
		return pda.Address{}, fmt.Errorf("%w: signer is not hex", ErrInvalidSignature)
	}
	pubKey, err := schnorr.ParsePubKey(rawKey)
	if err != nil {
		return pda.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	rawSig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return pda.Address{}, fmt.Errorf("%w: signature is not hex", ErrInvalidSignature)
	}
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return pda.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if !sig.Verify(RequestDigest(method, path, nonce, body), pubKey) {
		return pda.Address{}, ErrInvalidSignature
	}
	return pda.AddressFromPubKey(pubKey), nil
}
