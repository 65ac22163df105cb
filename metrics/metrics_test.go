package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveTransferIncrementsCounter(t *testing.T) {
	Registry()
	ObserveTransfer(TransferInsufficientFunds, 0.05)
	count := testutil.ToFloat64(TransferOutcomes.WithLabelValues(string(TransferInsufficientFunds)))
	require.GreaterOrEqual(t, count, float64(1))
}

func TestObserveRPCLabelsByKind(t *testing.T) {
	Registry()
	ObserveRPC("ComposeTransfer", ReplyFailure)
	count := testutil.ToFloat64(RPCRequestsTotal.WithLabelValues("ComposeTransfer", string(ReplyFailure)))
	require.GreaterOrEqual(t, count, float64(1))
}
