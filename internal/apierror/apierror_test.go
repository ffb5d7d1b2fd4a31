package apierror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, InvalidQueryString("k", "v").Code)
	assert.Equal(t, http.StatusBadRequest, IvornNotSupplied().Code)
	assert.Equal(t, http.StatusUnprocessableEntity, IvornNotFound("ivo://a/b#c").Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, LimitMaxExceeded(20000, 10000).Code)
}

func TestInvalidQueryStringMessage(t *testing.T) {
	err := InvalidQueryString("dec_gt", "100", "Dec must lie in [-90, 90].")
	assert.Contains(t, err.Message, "key 'dec_gt', value '100'")
	assert.Contains(t, err.Message, "[-90, 90]")
}

func TestAsUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("listing: %w", LimitMaxExceeded(11, 10))

	apiErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Limit too high", apiErr.Description)

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
