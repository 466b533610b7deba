package tempclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"scanhead/internal/httputil"
)

func TestGetReturnsParsedReading(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"camera":[42.5,43.1],"mainboard":38.2,"mainboardHumidity":12.5}`)
	c := New(mock, nil)

	r := c.Get("10.0.0.5")
	assert.Equal(t, []float64{42.5, 43.1}, r.Camera)
	assert.Equal(t, 38.2, r.Mainboard)
	assert.Equal(t, 12.5, r.MainboardHumidity)
}

func TestGetReturnsZeroOnTransportError(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))
	c := New(mock, nil)

	r := c.Get("10.0.0.5")
	assert.Equal(t, Reading{}, r)
}

func TestGetReturnsZeroOnNonOKStatus(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusInternalServerError, `{}`)
	c := New(mock, nil)

	r := c.Get("10.0.0.5")
	assert.Equal(t, Reading{}, r)
}

func TestGetReturnsZeroOnMalformedJSON(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `not json`)
	c := New(mock, nil)

	r := c.Get("10.0.0.5")
	assert.Equal(t, Reading{}, r)
}
