package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

func TestJSON_RoundTrip(t *testing.T) {
	c := NewJSON()

	body, err := c.Serialize(sample{ID: "o-1", Amount: 42})
	require.NoError(t, err)

	var out sample
	require.NoError(t, c.Deserialize(body, &out))
	assert.Equal(t, sample{ID: "o-1", Amount: 42}, out)
}

func TestJSON_Deserialize_Malformed(t *testing.T) {
	c := NewJSON()

	var out sample
	err := c.Deserialize([]byte("{not json"), &out)
	require.Error(t, err)

	var derr *DeserializationError
	assert.True(t, errors.As(err, &derr))
}
