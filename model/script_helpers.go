package model

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// chainhashSHA256 is the single SHA-256 digest BIP-141 requires for a
// witness-script hash, as opposed to Bitcoin's usual double-SHA256.
func chainhashSHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// addressFromScript recovers the canonical address string for a derived
// scriptPubKey under network.
func addressFromScript(script []byte, network *chaincfg.Params) (btcutil.Address, error) {
	pkScript, err := txscript.ParsePkScript(script)
	if err != nil {
		return nil, err
	}
	return pkScript.Address(network)
}
