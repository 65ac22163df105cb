package rpc

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pebbe/zmq4"
	"gopkg.in/macaroon-bakery.v2/bakery"
	macaroon "gopkg.in/macaroon.v2"
)

// macaroonLocation names the principal a minted admin macaroon is bound to,
// mirroring lnd/dcrlnd's "lnd" location convention.
const macaroonLocation = "citadeld"

// rootKeyFileName stores the bakery root key next to the admin macaroon,
// so a restarted daemon keeps honoring previously issued macaroons.
const rootKeyFileName = "macaroons.key"

// adminOp is the single operation the wire surface requires; every request
// type is gated behind it, matching the flat admin-macaroon model the
// teacher uses for its own wallet-controller RPCs.
var adminOp = bakery.Op{Entity: "citadel", Action: "admin"}

var defaultRootKeyID = []byte("0")

// rootKeyStore is a single-key bakery.RootKeyStore persisted to one file on
// disk. The bakery only ever mints against the current root key; rotation
// is done by deleting the key file and the macaroon together.
type rootKeyStore struct {
	key []byte
}

func (s *rootKeyStore) RootKey(_ context.Context) ([]byte, []byte, error) {
	return s.key, defaultRootKeyID, nil
}

func (s *rootKeyStore) Get(_ context.Context, id []byte) ([]byte, error) {
	if !bytes.Equal(id, defaultRootKeyID) {
		return nil, bakery.ErrNotFound
	}
	return s.key, nil
}

func loadOrCreateRootKey(path string) ([]byte, error) {
	if key, err := os.ReadFile(path); err == nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("rpc: root key file %s is corrupt", path)
		}
		return key, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("rpc: generate root key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("rpc: write %s: %w", path, err)
	}
	return key, nil
}

// Server is the ZMQ REP-socket endpoint spec.md §6 names as the core's
// transport: one socket, strictly request-then-reply, matching the
// Dispatcher's single-threaded processing model. Every request frame must
// be prefixed with a valid admin macaroon or it is rejected before
// reaching the Dispatcher at all.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	bakery     *bakery.Bakery
	quit       chan struct{}
}

// NewServer constructs a Server bound to addr (a ZMQ endpoint, e.g.
// "tcp://127.0.0.1:62020"), authorizing requests against the macaroon
// rooted at macaroonPath, minting a fresh root key and admin macaroon on
// first run if the file doesn't yet exist.
func NewServer(addr string, dispatcher *Dispatcher, macaroonPath string) (*Server, error) {
	rootKey, err := loadOrCreateRootKey(filepath.Join(filepath.Dir(macaroonPath), rootKeyFileName))
	if err != nil {
		return nil, err
	}

	bak := bakery.New(bakery.BakeryParams{
		Location:     macaroonLocation,
		RootKeyStore: &rootKeyStore{key: rootKey},
	})

	if _, err := os.Stat(macaroonPath); err != nil {
		if err := mintAdminMacaroon(bak, macaroonPath); err != nil {
			return nil, err
		}
	}

	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		bakery:     bak,
		quit:       make(chan struct{}),
	}, nil
}

func mintAdminMacaroon(bak *bakery.Bakery, path string) error {
	mac, err := bak.Oven.NewMacaroon(context.Background(), bakery.LatestVersion, nil, adminOp)
	if err != nil {
		return fmt.Errorf("rpc: mint admin macaroon: %w", err)
	}
	data, err := mac.M().MarshalBinary()
	if err != nil {
		return fmt.Errorf("rpc: marshal admin macaroon: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("rpc: write %s: %w", path, err)
	}
	return nil
}

// authorize checks that a request-carried macaroon chains back to the
// server's root key and grants the admin operation.
func (s *Server) authorize(ctx context.Context, macBytes []byte) error {
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return fmt.Errorf("rpc: malformed macaroon: %w", err)
	}
	_, err := s.bakery.Checker.Auth(macaroon.Slice{mac}).Allow(ctx, adminOp)
	if err != nil {
		return fmt.Errorf("rpc: macaroon verification failed: %w", err)
	}
	return nil
}

// Serve binds the REP socket and processes requests until ctx is canceled
// or Stop is called. Every request is a two-part ZMQ message: [macaroon
// bytes][request frame]; requests are handled strictly sequentially, matching zmq4's REP
// socket semantics (one ZMQ_RECV must be followed by exactly one ZMQ_SEND).
func (s *Server) Serve(ctx context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return fmt.Errorf("rpc: create zmq socket: %w", err)
	}
	defer sock.Close()

	if err := sock.Bind(s.addr); err != nil {
		return fmt.Errorf("rpc: bind %s: %w", s.addr, err)
	}
	log.Infof("rpc: listening on %s", s.addr)

	go func() {
		select {
		case <-ctx.Done():
		case <-s.quit:
		}
		sock.Close()
	}()

	for {
		msg, err := sock.RecvMessageBytes(0)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("rpc: recv: %w", err)
			}
		}

		reply := s.handleFrames(ctx, msg)
		if _, err := sock.SendBytes(reply, 0); err != nil {
			return fmt.Errorf("rpc: send: %w", err)
		}
	}
}

// handleFrames authorizes and dispatches one multi-part request, returning
// the reply frame to send back. Authorization failures are reported as a
// failure reply rather than a dropped connection, since REP sockets must
// always answer exactly once per request.
func (s *Server) handleFrames(ctx context.Context, msg [][]byte) []byte {
	if len(msg) != 2 {
		return encodeFailureReply(fmt.Errorf("rpc: expected [macaroon, request] frames, got %d", len(msg)))
	}
	macBytes, reqFrame := msg[0], msg[1]

	if err := s.authorize(ctx, macBytes); err != nil {
		return encodeFailureReply(err)
	}
	return s.dispatcher.Dispatch(ctx, reqFrame)
}

// Stop unblocks a running Serve call.
func (s *Server) Stop() {
	close(s.quit)
}
