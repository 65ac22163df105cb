package assetclient

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/mycitadel/citadel-runtime/model"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg rawMessage, decoded rawMessage) {
	t.Helper()
	encoded, err := rawCodec{}.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, rawCodec{}.Unmarshal(encoded, decoded))
}

func TestOutpointAssetsRoundTrip(t *testing.T) {
	req := OutpointAssetsRequest{Outpoint: wire.OutPoint{Index: 2}}
	var decoded OutpointAssetsRequest
	roundTrip(t, &req, &decoded)
	require.Equal(t, req.Outpoint.Index, decoded.Outpoint.Index)
}

func TestTransferRequestRoundTrip(t *testing.T) {
	req := TransferRequest{
		Inputs: []wire.OutPoint{{Index: 0}},
		Endpoints: map[RGBEndpoint]uint64{
			{Kind: EndpointWitnessVout, Vout: 1, Blinding: 42}: 120,
		},
		PSBT: []byte{0x01, 0x02},
	}
	var decoded TransferRequest
	roundTrip(t, &req, &decoded)
	require.Equal(t, req.PSBT, decoded.PSBT)
	require.Len(t, decoded.Endpoints, 1)
}

func TestAssetRoundTripViaListAssetsReply(t *testing.T) {
	reply := ListAssetsReply{Assets: []Asset{{
		ID:        model.AssetID{1, 2, 3},
		Ticker:    "CTL",
		Name:      "Citadel test asset",
		Precision: 8,
	}}}
	var decoded ListAssetsReply
	roundTrip(t, &reply, &decoded)
	require.Len(t, decoded.Assets, 1)
	require.Equal(t, "CTL", decoded.Assets[0].Ticker)
}
