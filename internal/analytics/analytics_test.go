package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

func TestComputeZeroDenominators(t *testing.T) {
	a := Compute(model.Progress{})
	assert.Equal(t, model.Analytics{}, a)

	// delivered=0 means open rate is 0 even with a nonzero total
	a = Compute(model.Progress{Total: 10, Sent: 10})
	assert.Equal(t, 0.0, a.DeliveryRate)
	assert.Equal(t, 0.0, a.OpenRate)
	assert.Equal(t, 0.0, a.ClickRate)
}

func TestComputeRates(t *testing.T) {
	a := Compute(model.Progress{
		Total:        200,
		Sent:         180,
		Delivered:    160,
		Opened:       80,
		Clicked:      20,
		Bounced:      10,
		Unsubscribed: 4,
	})

	assert.InDelta(t, 80.0, a.DeliveryRate, 0.001)  // 160/200
	assert.InDelta(t, 50.0, a.OpenRate, 0.001)      // 80/160
	assert.InDelta(t, 25.0, a.ClickRate, 0.001)     // 20/80
	assert.InDelta(t, 5.0, a.BounceRate, 0.001)     // 10/200
	assert.InDelta(t, 2.0, a.UnsubscribeRate, 0.001)
}

func TestComputeBoundedByHundred(t *testing.T) {
	a := Compute(model.Progress{Total: 5, Delivered: 5, Opened: 5, Clicked: 5, Sent: 5})
	assert.Equal(t, 100.0, a.DeliveryRate)
	assert.Equal(t, 100.0, a.OpenRate)
	assert.Equal(t, 100.0, a.ClickRate)
}
