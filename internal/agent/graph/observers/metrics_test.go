package observers

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTokensAndRetries(t *testing.T) {
	input := modelTokensTotal.WithLabelValues("metrics-test-model", "input")
	output := modelTokensTotal.WithLabelValues("metrics-test-model", "output")
	retries := modelRetriesTotal.WithLabelValues("metrics-test-model")
	beforeIn, beforeOut, beforeRetries := testutil.ToFloat64(input), testutil.ToFloat64(output), testutil.ToFloat64(retries)

	ObserveTokens("metrics-test-model", 120, 30)
	ObserveRetry("metrics-test-model")

	assert.Equal(t, beforeIn+120, testutil.ToFloat64(input))
	assert.Equal(t, beforeOut+30, testutil.ToFloat64(output))
	assert.Equal(t, beforeRetries+1, testutil.ToFloat64(retries))
}

func TestObserveTurnSplitsByOutcome(t *testing.T) {
	ok := turnsTotal.WithLabelValues("tools", "success")
	failed := turnsTotal.WithLabelValues("tools", "error")
	beforeOK, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	ObserveTurn("tools", nil)
	ObserveTurn("tools", errors.New("boom"))
	ObserveTurn("tools", nil)

	assert.Equal(t, beforeOK+2, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestObserveCacheLookup(t *testing.T) {
	hit := cacheLookupsTotal.WithLabelValues("hit")
	before := testutil.ToFloat64(hit)

	ObserveCacheLookup("hit")

	assert.Equal(t, before+1, testutil.ToFloat64(hit))
}

func TestHistogramsRecordSeries(t *testing.T) {
	ObserveModelCall("metrics-test-histogram", 300*time.Millisecond, nil)
	ObserveToolCall("metrics_test_function", "ok", 20*time.Millisecond)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(modelCallDuration), 1)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(toolCallDuration), 1)
}
