package promquery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestQueryScalar(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		want       float64
		wantErr    bool
	}{{
		name:       "single result",
		body:       `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1,"0.42"]}]}}`,
		statusCode: http.StatusOK,
		want:       0.42,
	}, {
		name:       "no data",
		body:       `{"status":"success","data":{"resultType":"vector","result":[]}}`,
		statusCode: http.StatusOK,
		want:       0.0,
	}, {
		name:       "non-200",
		body:       `gateway timeout`,
		statusCode: http.StatusBadGateway,
		wantErr:    true,
	}, {
		name:       "malformed body",
		body:       `not json`,
		statusCode: http.StatusOK,
		wantErr:    true,
	}, {
		name:       "prometheus error status",
		body:       `{"status":"error","errorType":"bad_data","error":"bad query"}`,
		statusCode: http.StatusOK,
		wantErr:    true,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.statusCode)
				w.Write([]byte(test.body))
			}))
			defer srv.Close()

			c := New(srv.URL)
			got, err := c.QueryScalar(context.Background(), "sum(rate(x[1m]))")
			if test.wantErr {
				if err == nil {
					t.Fatalf("QueryScalar() = %v, want error", got)
				}
				if !strings.Contains(err.Error(), "metric fetch failed") {
					t.Errorf("error %v does not wrap ErrFetchFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("QueryScalar() unexpected error: %v", err)
			}
			if got != test.want {
				t.Errorf("QueryScalar() = %v, want %v", got, test.want)
			}
		})
	}
}
