package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReference(t *testing.T) {
	ref := NewReference("PAY")
	assert.True(t, strings.HasPrefix(ref, "PAY-"))
	assert.Len(t, ref, 24)
	assert.NotEqual(t, ref, NewReference("PAY"))
}

func TestValidUTR(t *testing.T) {
	assert.True(t, ValidUTR("UTR20260301ABCD"))
	assert.True(t, ValidUTR("abcd1234"))
	assert.False(t, ValidUTR("short"))
	assert.False(t, ValidUTR("has spaces in it"))
	assert.False(t, ValidUTR("way-too-long-"+strings.Repeat("x", 30)))
	assert.False(t, ValidUTR(""))
}

func TestSignAndVerifyPayload(t *testing.T) {
	sig := SignPayload("secret", "PAY-ABC", "502.00")
	assert.True(t, VerifyPayload("secret", sig, "PAY-ABC", "502.00"))
	assert.False(t, VerifyPayload("secret", sig, "PAY-ABC", "503.00"))
	assert.False(t, VerifyPayload("other", sig, "PAY-ABC", "502.00"))
}
