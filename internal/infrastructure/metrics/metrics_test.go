package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTransition("expense", workflow.ActionApprove)
	r.RecordTransition("expense", workflow.ActionApprove)
	r.RecordBulkItem(workflow.ActionReject, "conflict")
	r.RecordNotification("request.submitted", true)
	r.RecordNotification("request.submitted", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.TransitionsTotal.WithLabelValues("expense", "approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BulkItemsTotal.WithLabelValues("reject", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.NotificationsSent.WithLabelValues("request.submitted", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.NotificationsSent.WithLabelValues("request.submitted", "failed")))
}

func TestRecorder_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveOperation("expense", workflow.ActionSubmit, "ok", 0.004)
	r.ObserveOperation("expense", workflow.ActionApprove, "authorization", 0.001)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("expense", "approve", "authorization")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.OperationDuration))

	expected := `
# HELP approval_operations_total Total engine operations by outcome (ok or error kind)
# TYPE approval_operations_total counter
approval_operations_total{action="approve",outcome="authorization",request_type="expense"} 1
approval_operations_total{action="submit",outcome="ok",request_type="expense"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "approval_operations_total"))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
