// Package assetclient is the runtime's connection to the external
// colored-asset daemon: asset attribution for chain-synced outpoints,
// pay-to-contract commitment embedding for outgoing transfers, and
// consignment validation/acceptance for incoming ones.
package assetclient

import "context"

// Client is the capability interface Chain Sync, the Transfer Composer,
// and Finalize/Accept depend on to reach the external colored-asset
// daemon.
type Client interface {
	// OutpointAssets reports the colored-asset allocations bound to a
	// single Bitcoin outpoint, if any.
	OutpointAssets(ctx context.Context, req OutpointAssetsRequest) (OutpointAssetsReply, error)

	// Transfer embeds a pay-to-contract commitment for an outgoing RGB
	// transfer and returns the resulting consignment, disclosure, and
	// witness PSBT.
	Transfer(ctx context.Context, req TransferRequest) (TransferReply, error)

	// Enclose self-discloses a sender's own change allocations so a
	// future sync can reconstruct them.
	Enclose(ctx context.Context, req EncloseRequest) error

	// Validate checks a consignment's client-side validity.
	Validate(ctx context.Context, req ValidateRequest) (ValidateReply, error)

	// Accept finalizes acceptance of a validated consignment.
	Accept(ctx context.Context, req AcceptRequest) error

	// ImportAsset registers a new colored asset from its genesis data.
	ImportAsset(ctx context.Context, req ImportAssetRequest) (ImportAssetReply, error)

	// ListAssets enumerates every asset the daemon knows about.
	ListAssets(ctx context.Context) (ListAssetsReply, error)

	// Close tears down the underlying connection.
	Close() error
}
