package electrum

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts a single connection and answers every request with a
// canned JSON-RPC result, enough to exercise the client's framing and
// request/response correlation without a real indexer.
func fakeServer(t *testing.T, result json.RawMessage) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			resp, _ := json.Marshal(map[string]interface{}{
				"id":     req.ID,
				"result": result,
			})
			resp = append(resp, '\n')
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestBlockHeadersSubscribe(t *testing.T) {
	addr := fakeServer(t, json.RawMessage(`{"height": 700123}`))
	client, err := Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	height, err := client.BlockHeadersSubscribe(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(700123), height)
}

func TestBatchScriptListUnspent(t *testing.T) {
	const txHash = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
	addr := fakeServer(t, json.RawMessage(`[
		{"height": 700000, "tx_pos": 0, "value": 1000, "tx_hash": "`+txHash+`"},
		{"height": 700000, "tx_pos": 2, "value": 2500, "tx_hash": "`+txHash+`"}
	]`))
	client, err := Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	script := []byte{0x00, 0x14, 0xde, 0xad, 0xbe, 0xef}
	result, err := client.BatchScriptListUnspent(ctx, [][]byte{script})
	require.NoError(t, err)

	sh := ScriptHash(script)
	unspents := result[hex.EncodeToString(sh[:])]
	require.Len(t, unspents, 2)

	expectedTxid, err := chainhash.NewHashFromStr(txHash)
	require.NoError(t, err)
	for _, u := range unspents {
		require.Equal(t, *expectedTxid, u.Txid)
		require.Equal(t, uint32(700000), u.Height)
	}
	// tx_pos names the output index within the funding transaction, so
	// two outputs of the same transaction must stay distinct.
	require.Equal(t, uint32(0), unspents[0].Vout)
	require.Equal(t, uint64(1000), unspents[0].Value)
	require.Equal(t, uint32(2), unspents[1].Vout)
	require.Equal(t, uint64(2500), unspents[1].Value)
}

func TestTransactionGet(t *testing.T) {
	addr := fakeServer(t, json.RawMessage(`"deadbeef"`))
	client, err := Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var txid chainhash.Hash
	raw, err := client.TransactionGet(ctx, txid)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw)
}
