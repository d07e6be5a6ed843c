package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"StockPipe/internal/domain/models"
	xhttp "StockPipe/pkg/http"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"AAA","gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[10,11,null],"high":[12,13,14],"low":[9,10,11],"close":[11,12,13],"volume":[1000,null,3000]}]}}],
"error":null}}`

func TestFetchBarsParsesChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAA" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("interval = %s", r.URL.Query().Get("interval"))
		}
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), WithBaseURL(srv.URL))
	bars, err := c.FetchBars(context.Background(), "AAA",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("want 2 bars (null open skipped), got %d", len(bars))
	}
	if got := bars[0].Date.Format("2006-01-02"); got != "2024-01-02" {
		t.Fatalf("first date = %s", got)
	}
	if bars[1].Volume != 0 || bars[1].Close != 12 {
		t.Fatalf("second bar = %+v", bars[1])
	}
}

func TestFetchBarsClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.ErrorKind
	}{
		{"throttled", http.StatusTooManyRequests, "", models.KindRateLimit},
		{"server error", http.StatusBadGateway, "", models.KindTransient},
		{"not found", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, models.KindPermanent},
		{"chart error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`, models.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(xhttp.NewClient(), WithBaseURL(srv.URL))
			_, err := c.FetchBars(context.Background(), "ZZZ", time.Now().AddDate(0, 0, -5), time.Now())
			if kind, _ := models.KindOf(err); kind != tt.want {
				t.Fatalf("kind = %v, want %v (err %v)", kind, tt.want, err)
			}
		})
	}
}
