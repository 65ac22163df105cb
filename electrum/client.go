package electrum

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/miekg/dns"
)

// srvPrefix marks an indexer address as a DNS SRV record to resolve rather
// than a literal host:port, e.g. "srv+_electrum._tcp.example.com", letting
// operators point at a server pool without hardcoding its current host.
const srvPrefix = "srv+"

// resolveSRV looks the highest-priority, highest-weight target of an SRV
// record up via the system resolver and returns it as a dialable
// "host:port" string.
func resolveSRV(name string) (string, error) {
	client := new(dns.Client)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeSRV)

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return "", fmt.Errorf("electrum: load resolver config: %w", err)
	}
	resp, _, err := client.Exchange(msg, net.JoinHostPort(conf.Servers[0], conf.Port))
	if err != nil {
		return "", fmt.Errorf("electrum: srv lookup %s: %w", name, err)
	}

	var best *dns.SRV
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		if best == nil || srv.Priority < best.Priority ||
			(srv.Priority == best.Priority && srv.Weight > best.Weight) {
			best = srv
		}
	}
	if best == nil {
		return "", fmt.Errorf("electrum: no SRV records for %s", name)
	}
	return net.JoinHostPort(strings.TrimSuffix(best.Target, "."), fmt.Sprint(best.Port)), nil
}

// Client is a minimal Electrum-protocol client speaking newline-delimited
// JSON-RPC 2.0 over a single persistent TCP connection, exactly the wire
// shape real Electrum/Electrs servers expose.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	nextID int64

	mu       sync.Mutex
	pending  map[int64]chan rpcResponse
	headers  chan BlockHeader
	closed   chan struct{}
	closeErr error
}

type rpcRequest struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"` // set only on server-pushed notifications
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("electrum error %d: %s", e.Code, e.Message) }

// Dial connects to an Electrum-style server at addr and starts its
// background response-reader loop. If addr carries the "srv+" prefix, it is
// treated as a DNS name to resolve via SRV lookup rather than a literal
// host:port.
func Dial(addr string) (*Client, error) {
	if strings.HasPrefix(addr, srvPrefix) {
		resolved, err := resolveSRV(strings.TrimPrefix(addr, srvPrefix))
		if err != nil {
			return nil, err
		}
		addr = resolved
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("electrum: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		pending: make(map[int64]chan rpcResponse),
		headers: make(chan BlockHeader, 64),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.closeErr = err
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			log.Warnf("electrum: malformed response: %v", err)
			continue
		}
		if resp.Method == "blockchain.headers.subscribe" {
			var params []struct {
				Height int    `json:"height"`
				Hex    string `json:"hex"`
			}
			if err := json.Unmarshal(resp.Params, &params); err == nil {
				for _, hdr := range params {
					select {
					case c.headers <- BlockHeader{Height: uint32(hdr.Height)}:
					default:
					}
				}
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	req := rpcRequest{ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	respCh := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		return nil, fmt.Errorf("electrum: write %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.closed:
		return nil, fmt.Errorf("electrum: connection closed: %w", c.closeErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) BatchScriptListUnspent(ctx context.Context, scripts [][]byte) (map[string][]ScriptUnspent, error) {
	out := make(map[string][]ScriptUnspent, len(scripts))
	for _, script := range scripts {
		sh := ScriptHash(script)
		shHex := hex.EncodeToString(sh[:])
		raw, err := c.call(ctx, "blockchain.scripthash.listunspent", shHex)
		if err != nil {
			return nil, fmt.Errorf("electrum: listunspent %s: %w", shHex, err)
		}
		var entries []struct {
			Height int    `json:"height"`
			TxPos  int    `json:"tx_pos"`
			Value  uint64 `json:"value"`
			TxHash string `json:"tx_hash"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("electrum: decode listunspent: %w", err)
		}
		unspents := make([]ScriptUnspent, 0, len(entries))
		for _, e := range entries {
			txid, err := chainhash.NewHashFromStr(e.TxHash)
			if err != nil {
				return nil, err
			}
			unspents = append(unspents, ScriptUnspent{
				Height: uint32(e.Height),
				Value:  e.Value,
				Txid:   *txid,
				Vout:   uint32(e.TxPos),
			})
		}
		out[shHex] = unspents
	}
	return out, nil
}

func (c *Client) TransactionGetMerkle(ctx context.Context, txid chainhash.Hash, height uint32) (uint32, error) {
	raw, err := c.call(ctx, "blockchain.transaction.get_merkle", txid.String(), int(height))
	if err != nil {
		return 0, fmt.Errorf("electrum: get_merkle %s: %w", txid, err)
	}
	var result struct {
		Pos int `json:"pos"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("electrum: decode get_merkle: %w", err)
	}
	return uint32(result.Pos), nil
}

func (c *Client) TransactionGet(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	raw, err := c.call(ctx, "blockchain.transaction.get", txid.String())
	if err != nil {
		return nil, fmt.Errorf("electrum: transaction.get %s: %w", txid, err)
	}
	var hexTx string
	if err := json.Unmarshal(raw, &hexTx); err != nil {
		return nil, fmt.Errorf("electrum: decode transaction.get: %w", err)
	}
	return hex.DecodeString(hexTx)
}

func (c *Client) TransactionBroadcast(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	raw, err := c.call(ctx, "blockchain.transaction.broadcast", hex.EncodeToString(rawTx))
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("electrum: broadcast: %w", err)
	}
	var txidHex string
	if err := json.Unmarshal(raw, &txidHex); err != nil {
		return chainhash.Hash{}, fmt.Errorf("electrum: decode broadcast result: %w", err)
	}
	txid, err := chainhash.NewHashFromStr(txidHex)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *txid, nil
}

func (c *Client) BlockHeadersSubscribe(ctx context.Context) (uint32, error) {
	raw, err := c.call(ctx, "blockchain.headers.subscribe")
	if err != nil {
		return 0, fmt.Errorf("electrum: headers.subscribe: %w", err)
	}
	var result struct {
		Height int `json:"height"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("electrum: decode headers.subscribe: %w", err)
	}
	return uint32(result.Height), nil
}

func (c *Client) BlockHeadersPop(ctx context.Context) ([]BlockHeader, error) {
	var out []BlockHeader
	for {
		select {
		case h := <-c.headers:
			out = append(out, h)
		default:
			return out, nil
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
