// Package utxo provides balance, fee and history lookups for Bitcoin-family
// chains, with short-TTL caching in front of the chain backends.
package utxo

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Sentinel kinds for callers mapping chain failures onto HTTP statuses.
var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
)

// chainParams builds btcd chaincfg params for each supported fork. Params are
// constructed directly rather than pulled from the global registry; only the
// address-encoding fields matter for validation.
var chainParams = map[string]*chaincfg.Params{
	"bitcoin": &chaincfg.MainNetParams,
	"litecoin": {
		Name:                    "litecoin",
		PubKeyHashAddrID:        0x30,
		ScriptHashAddrID:        0x32,
		WitnessPubKeyHashAddrID: 0x06,
		WitnessScriptHashAddrID: 0x0A,
		Bech32HRPSegwit:         "ltc",
	},
	"dogecoin": {
		Name:             "dogecoin",
		PubKeyHashAddrID: 0x1E,
		ScriptHashAddrID: 0x16,
	},
}

// SupportedChain reports whether a chain identifier names a known fork.
func SupportedChain(chain string) bool {
	_, ok := chainParams[chain]
	return ok
}

// ValidateAddress decodes an address against the fork's encoding parameters.
// An address valid on a different fork is rejected.
func ValidateAddress(chain, address string) error {
	params, ok := chainParams[chain]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnsupportedChain, chain)
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return fmt.Errorf("%w: bad %s address: %v", ErrInvalidAddress, chain, err)
	}
	if !addr.IsForNet(params) {
		return fmt.Errorf("%w: %s is not valid for %s", ErrInvalidAddress, address, chain)
	}
	return nil
}
