package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLockContention_Increments(t *testing.T) {
	before := testutil.ToFloat64(LockContention.WithLabelValues("device"))
	LockContention.WithLabelValues("device").Inc()
	after := testutil.ToFloat64(LockContention.WithLabelValues("device"))
	require.Equal(t, before+1, after)
}

func TestApprovalTierDuration_Observes(t *testing.T) {
	before := testutil.CollectAndCount(ApprovalTierDuration)
	ApprovalTierDuration.WithLabelValues("HIGH", "approved").Observe(1.5)
	after := testutil.CollectAndCount(ApprovalTierDuration)
	require.Equal(t, before+1, after)
}
