package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mycitadel/citadel-runtime/rpc"
	"github.com/pebbe/zmq4"
)

// rpcClient is the citadel-cli side of the ZMQ REP transport spec.md §6
// names: a REQ socket that sends [macaroon, request] and receives exactly
// one reply frame per call, mirroring rpc.Server's handleFrames framing.
type rpcClient struct {
	sock     *zmq4.Socket
	macaroon []byte
}

func dialRPC(addr, macaroonPath string) (*rpcClient, error) {
	macBytes, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon %s: %w", macaroonPath, err)
	}

	sock, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, fmt.Errorf("create zmq socket: %w", err)
	}
	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &rpcClient{sock: sock, macaroon: macBytes}, nil
}

func (c *rpcClient) Close() error {
	return c.sock.Close()
}

// call sends reqType with an encoded payload and decodes the reply into
// decode (a no-op payload is fine when the request has no body, or the
// reply carries none — RenameContract/DeleteContract).
func (c *rpcClient) call(reqType rpc.RequestType, encode func(io.Writer) error, decode func(io.Reader) error) error {
	payload, err := rpc.MarshalRequest(reqType, encode)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if _, err := c.sock.SendMessage(c.macaroon, payload); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	reply, err := c.sock.RecvBytes(0)
	if err != nil {
		return fmt.Errorf("recv reply: %w", err)
	}

	return rpc.UnmarshalReply(reply, decode)
}
