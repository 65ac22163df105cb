package assetclient

import (
	"context"
	"fmt"
	"io"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
)

const serviceName = "citadel.AssetDaemon"

// GRPCClient is the default Client implementation, a thin wrapper over a
// grpc.ClientConn using rawCodec to carry strict-encoded messages without a
// protoc-generated stub.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial connects to a colored-asset daemon at target.
func Dial(target string) (*GRPCClient, error) {
	conn, err := grpc.Dial(target,
		grpc.WithInsecure(),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(
			grpc_prometheus.UnaryClientInterceptor,
		)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("assetclient: dial %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, reply rawMessage) error {
	fullMethod := fmt.Sprintf("/%s/%s", serviceName, method)
	return c.conn.Invoke(ctx, fullMethod, req, reply)
}

func (c *GRPCClient) OutpointAssets(ctx context.Context, req OutpointAssetsRequest) (OutpointAssetsReply, error) {
	var reply OutpointAssetsReply
	err := c.invoke(ctx, "OutpointAssets", &req, &reply)
	return reply, err
}

func (c *GRPCClient) Transfer(ctx context.Context, req TransferRequest) (TransferReply, error) {
	var reply TransferReply
	err := c.invoke(ctx, "Transfer", &req, &reply)
	return reply, err
}

func (c *GRPCClient) Enclose(ctx context.Context, req EncloseRequest) error {
	var reply encloseReply
	return c.invoke(ctx, "Enclose", &req, &reply)
}

func (c *GRPCClient) Validate(ctx context.Context, req ValidateRequest) (ValidateReply, error) {
	var reply ValidateReply
	err := c.invoke(ctx, "Validate", &req, &reply)
	return reply, err
}

func (c *GRPCClient) Accept(ctx context.Context, req AcceptRequest) error {
	var reply acceptReply
	return c.invoke(ctx, "Accept", &req, &reply)
}

func (c *GRPCClient) ImportAsset(ctx context.Context, req ImportAssetRequest) (ImportAssetReply, error) {
	var reply ImportAssetReply
	err := c.invoke(ctx, "ImportAsset", &req, &reply)
	return reply, err
}

func (c *GRPCClient) ListAssets(ctx context.Context) (ListAssetsReply, error) {
	var reply ListAssetsReply
	err := c.invoke(ctx, "ListAssets", emptyRequest{}, &reply)
	return reply, err
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

type emptyRequest struct{}

func (emptyRequest) StrictEncode(w io.Writer) error { return nil }
func (emptyRequest) StrictDecode(r io.Reader) error { return nil }
