package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskReference(t *testing.T) {
	assert.Equal(t, "", MaskReference("  "))
	assert.Equal(t, "****", MaskReference("abc"))
	assert.Equal(t, "****7890", MaskReference("VCB-1234567890"))
}
