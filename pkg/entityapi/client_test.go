package entityapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/entity-dataload/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "id", "secret", zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("not a url", "id", "secret", zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewClient("https://example.janraincapture.com", "", "secret", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestBulkCreate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity.bulkCreate", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "user", r.PostForm.Get("type_name"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "10", r.PostForm.Get("timeout"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var attrs []map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("all_attributes")), &attrs))
		assert.Len(t, attrs, 2)

		_, _ = w.Write([]byte(`{"stat":"ok","uuid_results":["u-1",{"stat":"error","error":"unique_violation","error_description":"duplicate email","code":361}]}`))
	})

	res, err := c.BulkCreate(context.Background(), "user", []model.Record{{"email": "a@b.c"}, {"email": "d@e.f"}})
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Len(t, res.Results, 2)

	assert.False(t, res.Results[0].Failed())
	assert.Equal(t, "u-1", res.Results[0].UUID)

	assert.True(t, res.Results[1].Failed())
	assert.Equal(t, "unique_violation", res.Results[1].Kind)
	assert.Equal(t, "duplicate email", res.Results[1].Description)
	assert.Equal(t, 361, res.Results[1].Code)
}

func TestBulkCreateWithoutStat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uuid_results":[]}`))
	})

	res, err := c.BulkCreate(context.Background(), "user", []model.Record{{"email": "a@b.c"}})
	require.NoError(t, err)
	assert.False(t, res.OK())
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stat":"error","code":510,"error":"api_feature_disabled","error_description":"try later"}`))
	})

	err := c.Delete(context.Background(), "user", "u-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 510, apiErr.Code)
	assert.Equal(t, "API Error 510: try later", apiErr.Error())
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.Count(context.Background(), "user")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "upstream down")
}

func TestUpdate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity.update", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "email", r.PostForm.Get("key_attribute"))
		assert.Equal(t, `"a@b.c"`, r.PostForm.Get("key_value"))
		assert.JSONEq(t, `{"givenName":"Ann"}`, r.PostForm.Get("value"))
		_, _ = w.Write([]byte(`{"stat":"ok"}`))
	})

	err := c.Update(context.Background(), "user", "email", `"a@b.c"`, model.Record{"givenName": "Ann"})
	assert.NoError(t, err)
}

func TestUpdateMissingStat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.Update(context.Background(), "user", "email", `"a@b.c"`, model.Record{})
	assert.True(t, errors.Is(err, ErrUnexpectedResponse))
}

func TestCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stat":"ok","total_count":1234}`))
	})

	n, err := c.Count(context.Background(), "user")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"stat":"ok"}`))
	})
	c.WithTimeout(20 * time.Millisecond)

	err := c.Delete(context.Background(), "user", "u-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTimeoutParamRoundsUp(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    string
	}{
		{500 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{10 * time.Second, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, tt.want, r.PostForm.Get("timeout"))
				_, _ = w.Write([]byte(`{"stat":"ok"}`))
			})
			c.WithTimeout(tt.timeout)
			require.NoError(t, c.Delete(context.Background(), "user", "u-1"))
		})
	}
}
