package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestReportStmtCache(t *testing.T) {
	ReportStmtCache(0.75, 12)
	require.InDelta(t, 0.75, testutil.ToFloat64(StmtCacheHitRatio), 0.0001)
	require.InDelta(t, 12, testutil.ToFloat64(StmtCacheEvictions), 0.0001)
}

func TestReportPatternCache(t *testing.T) {
	ReportPatternCache(0.5)
	require.InDelta(t, 0.5, testutil.ToFloat64(PatternCacheHitRatio), 0.0001)
}

func TestTierCountersRegistered(t *testing.T) {
	TierPlacements.WithLabelValues("hot").Inc()
	require.InDelta(t, 1, testutil.ToFloat64(TierPlacements.WithLabelValues("hot")), 0.0001)

	TierMigrations.WithLabelValues("warm", "hot").Inc()
	require.InDelta(t, 1, testutil.ToFloat64(TierMigrations.WithLabelValues("warm", "hot")), 0.0001)

	PageEvictions.Inc()
	require.GreaterOrEqual(t, testutil.ToFloat64(PageEvictions), 1.0)
}
