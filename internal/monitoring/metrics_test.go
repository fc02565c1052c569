package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordReservationAttempt(t *testing.T) {
	before := testutil.ToFloat64(reservationAttempts.WithLabelValues("out_of_stock"))

	RecordReservationAttempt("out_of_stock")
	RecordReservationAttempt("out_of_stock")

	assert.Equal(t, before+2, testutil.ToFloat64(reservationAttempts.WithLabelValues("out_of_stock")))
}

func TestRecordForfeited(t *testing.T) {
	before := testutil.ToFloat64(forfeitedTickets)

	RecordForfeited(4)

	assert.Equal(t, before+4, testutil.ToFloat64(forfeitedTickets))
}

func TestRecordPaymentRequest(t *testing.T) {
	before := testutil.ToFloat64(paymentRequests.WithLabelValues("get_payment", "ok"))

	RecordPaymentRequest("get_payment", "ok", time.Now().Add(-100*time.Millisecond))

	assert.Equal(t, before+1, testutil.ToFloat64(paymentRequests.WithLabelValues("get_payment", "ok")))
}
