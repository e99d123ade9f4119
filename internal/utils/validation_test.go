package contextutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Name  string `validate:"required"`
	Batch int    `validate:"min=1,max=500"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sampleConfig{Name: "ok", Batch: 10}))

	err := ValidateStruct(sampleConfig{Batch: 501})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Contains(t, err.Error(), "sampleConfig.Name failed 'required'")
	assert.Contains(t, err.Error(), "sampleConfig.Batch failed 'max'")
}
