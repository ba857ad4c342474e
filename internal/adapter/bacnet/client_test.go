package bacnet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boptest2bacnet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		Address:            srv.Listener.Addr().String(),
		Username:           "admin",
		Password:           "secret",
		Timeout:            2 * time.Second,
		MaxWriteAttempts:   3,
		BackoffBase:        time.Millisecond,
		InsecureSkipVerify: true,
	}, zap.NewNop())
}

const discoveryResponse = `{
	"analog-inputs": {
		"1": {
			"object-name": "ZoneTemp",
			"object-identifier": {"object-type": "analog-input", "object-instance": 1}
		}
	},
	"binary-outputs": {
		"4": {
			"object-name": "FanCmd",
			"object-identifier": {"object-type": "binary-output", "object-instance": 4}
		},
		"5": {
			"object-name": "",
			"object-identifier": {"object-type": "binary-output", "object-instance": 5}
		},
		"6": {
			"object-name": "Odd",
			"object-identifier": {"object-type": "trend-log", "object-instance": 6}
		}
	}
}`

func TestDiscoverEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, objectsPath, r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("$select"))
		w.Write([]byte(discoveryResponse))
	})

	catalog, err := c.DiscoverEndpoints(context.Background())
	require.NoError(t, err)

	// nameless and unknown-type objects are skipped
	require.Len(t, catalog, 2)
	assert.Equal(t, domain.Endpoint{ObjectName: "ZoneTemp", ObjectType: domain.ObjectTypeAnalogInput, Instance: 1}, catalog["ZoneTemp"])
	assert.Equal(t, domain.Endpoint{ObjectName: "FanCmd", ObjectType: domain.ObjectTypeBinaryOutput, Instance: 4}, catalog["FanCmd"])

	instance, ok := c.InstanceNumber("FanCmd", domain.ObjectTypeBinaryOutput)
	require.True(t, ok)
	assert.Equal(t, 4, instance)

	// type mismatch is a resolution failure
	_, ok = c.InstanceNumber("FanCmd", domain.ObjectTypeAnalogOutput)
	assert.False(t, ok)

	_, ok = c.InstanceNumber("Unknown", domain.ObjectTypeAnalogInput)
	assert.False(t, ok)
}

func TestPropertyValueExtractsDollarValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, objectsPath+"/analog-outputs/5/present-value", r.URL.Path)
		w.Write([]byte(`{"$value": 42.5}`))
	})

	v, err := c.PropertyValue(context.Background(), domain.ObjectTypeAnalogOutput, 5, domain.PresentValueProperty)
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)
}

func TestSubmitBatchRetriesTransientFailure(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, batchPath, r.URL.Path)
		attempts++
		if attempts < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Requests []domain.BatchRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Requests, 1)
		assert.Equal(t, "POST", body.Requests[0].Method)
		w.Write([]byte(`{}`))
	})

	err := c.SubmitBatch(context.Background(), []domain.BatchRequest{{
		ID:     "p1_present_value",
		Method: "POST",
		URL:    "/api/rest/v2/services/bacnet/local/objects/analog-inputs/1",
		Body:   map[string]any{"present-value": 21.5},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSubmitBatchGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	err := c.SubmitBatch(context.Background(), []domain.BatchRequest{{
		ID: "p1", Method: "POST", URL: "/x", Body: map[string]any{"present-value": 1.0},
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Equal(t, 3, attempts)
}

func TestSubmitBatchEmptyIsNoop(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	require.NoError(t, c.SubmitBatch(context.Background(), nil))
	assert.False(t, called)
}

func TestCookieReplacesBasicAuth(t *testing.T) {
	var sawBasic, sawCookie bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); ok {
			sawBasic = true
			w.Header().Set("Set-Cookie", "session=abc")
		}
		if r.Header.Get("Cookie") == "session=abc" {
			sawCookie = true
		}
		w.Write([]byte(`{"$value": 1}`))
	})

	_, err := c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)
	require.True(t, sawBasic)

	_, err = c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)
	assert.True(t, sawCookie)
}

func TestCookieStripsAttributes(t *testing.T) {
	var replayed string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		replayed = r.Header.Get("Cookie")
		http.SetCookie(w, &http.Cookie{
			Name:     "session",
			Value:    "abc",
			Path:     "/",
			HttpOnly: true,
		})
		http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "xyz", Secure: true})
		w.Write([]byte(`{"$value": 1}`))
	})

	_, err := c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)

	_, err = c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)
	assert.Equal(t, "session=abc; csrf=xyz", replayed, "only name=value pairs may be replayed")
}

func TestUnauthorizedDropsCookie(t *testing.T) {
	requests := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch requests {
		case 1:
			w.Header().Set("Set-Cookie", "session=stale")
			w.Write([]byte(`{"$value": 1}`))
		case 2:
			require.Equal(t, "session=stale", r.Header.Get("Cookie"))
			http.Error(w, "expired", http.StatusUnauthorized)
		default:
			// cookie dropped, basic auth again
			_, _, ok := r.BasicAuth()
			require.True(t, ok)
			w.Write([]byte(`{"$value": 1}`))
		}
	})

	_, err := c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)

	_, err = c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.Error(t, err)

	_, err = c.PropertyValue(context.Background(), domain.ObjectTypeAnalogValue, 1, domain.PresentValueProperty)
	require.NoError(t, err)
	assert.Equal(t, 3, requests)
}

func TestSetTimeAndZone(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, timePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{}`))
	})

	// 2021-01-01 00:00:00 UTC
	require.NoError(t, c.SetTimeAndZone(context.Background(), 1609459200, "UTC"))
	assert.Equal(t, "UTC", body["time-zone"])
	assert.Equal(t, "2021-01-01T00:00:00", body["date-time"])

	err := c.SetTimeAndZone(context.Background(), 1609459200, "Not/AZone")
	require.Error(t, err)
}
