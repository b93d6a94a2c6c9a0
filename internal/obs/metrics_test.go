package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SessionsCreated)
	SessionsCreated.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(SessionsCreated))

	beforeRevoked := testutil.ToFloat64(SessionsRevoked.WithLabelValues("token_replay"))
	SessionsRevoked.WithLabelValues("token_replay").Inc()
	require.Equal(t, beforeRevoked+1, testutil.ToFloat64(SessionsRevoked.WithLabelValues("token_replay")))
}
