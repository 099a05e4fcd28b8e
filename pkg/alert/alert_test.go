package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureDisabledIsNoop(t *testing.T) {
	assert.NoError(t, Init("", "test", 1))
	assert.False(t, Enabled())
	assert.Empty(t, Capture(errors.New("boom"), map[string]string{"item_id": "p1"}))
}

func TestInitRejectsMalformedDSN(t *testing.T) {
	err := Init("::not a dsn::", "test", 1)
	assert.Error(t, err)
	assert.False(t, Enabled())
}
