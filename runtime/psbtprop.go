package runtime

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// rgbPSBTPrefix is the proprietary-key identifier string embedded ahead of
// every RGB-specific PSBT field, per spec.md §4.3's "proprietary key under
// the RGB prefix" / "RGB_PSBT_PREFIX" design. Proprietary keys follow
// BIP-174's scheme: type byte 0xFC, then a length-prefixed identifier, then
// a subtype byte naming the specific field.
const rgbPSBTPrefix = "RGB"

const (
	subtypeOutPubkey     byte = 0x01 // OUT_PUBKEY: output's owning public key
	subtypeOutTweak      byte = 0x02 // OUT_TWEAK: output's pay-to-contract tweak
	subtypeInTweak       byte = 0x03 // input's recorded pay-to-contract tweak
	subtypeInTweakPubkey byte = 0x04 // input's recorded tweaked public key
)

func proprietaryKey(subtype byte) []byte {
	key := make([]byte, 0, 2+len(rgbPSBTPrefix)+1)
	key = append(key, 0xFC, byte(len(rgbPSBTPrefix)))
	key = append(key, rgbPSBTPrefix...)
	key = append(key, subtype)
	return key
}

func setProprietary(unknowns []*psbt.Unknown, subtype byte, value []byte) []*psbt.Unknown {
	return append(unknowns, &psbt.Unknown{Key: proprietaryKey(subtype), Value: value})
}

func getProprietary(unknowns []*psbt.Unknown, subtype byte) ([]byte, bool) {
	key := proprietaryKey(subtype)
	for _, u := range unknowns {
		if bytes.Equal(u.Key, key) {
			return u.Value, true
		}
	}
	return nil, false
}
