package cbr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyRateResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <soap:Body>
    <KeyRateResponse xmlns="http://web.cbr.ru/">
      <KeyRateResult>
        <diffgr:diffgram xmlns:msdata="urn:schemas-microsoft-com:xml-msdata" xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1">
          <KeyRate xmlns="">
            <KR diffgr:id="KR1" msdata:rowOrder="0">
              <DT>2025-03-07T00:00:00+03:00</DT>
              <Rate>21.00</Rate>
            </KR>
            <KR diffgr:id="KR2" msdata:rowOrder="1">
              <DT>2025-02-14T00:00:00+03:00</DT>
              <Rate>20.00</Rate>
            </KR>
          </KeyRate>
        </diffgr:diffgram>
      </KeyRateResult>
    </KeyRateResponse>
  </soap:Body>
</soap:Envelope>`

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, decimal.NewFromInt(5), testLogger())
	c.now = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_KeyRate(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/soap+xml; charset=utf-8", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(keyRateResponse))
	})

	rate, err := c.KeyRate(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(21).Equal(rate), rate.String())
	assert.Contains(t, gotBody, "<fromDate>2025-02-08</fromDate>")
	assert.Contains(t, gotBody, "<ToDate>2025-03-10</ToDate>")
}

func TestClient_InterestRate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(keyRateResponse))
	})

	rate, err := c.InterestRate(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(26).Equal(rate), rate.String())
	assert.True(t, decimal.NewFromInt(5).Equal(c.Margin()))
}

func TestClient_Errors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := c.KeyRate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code: 500")
	})

	t.Run("empty result", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<Envelope><Body><diffgram><KeyRate/></diffgram></Body></Envelope>`))
		})
		_, err := c.InterestRate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no key rate data")
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(keyRateResponse))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.KeyRate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseXMLResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr string
	}{
		{name: "newest record first", body: keyRateResponse, want: "21"},
		{name: "not xml", body: "<<<", wantErr: "failed to parse XML"},
		{name: "missing rate", body: `<r><diffgram><KeyRate><KR><DT>x</DT></KR></KeyRate></diffgram></r>`, wantErr: "rate element not found"},
		{name: "bad number", body: `<r><diffgram><KeyRate><KR><Rate>n/a</Rate></KR></KeyRate></diffgram></r>`, wantErr: "failed to parse rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := parseXMLResponse([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(rate))
		})
	}
}
