package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hotspot-map/internal/record"
)

var fixtures = map[Kind]string{
	Hotspots: `[{"accident_id": 2025076001, "spot_name": "종로3가역 부근", "latitude": 37.5704, "longitude": 126.9921, "accident_count": 5}]`,
	Medical:  `[{"name": "서울대병원", "lat": "37.5796", "lng": "126.9990"}, {"name": "no coords"}]`,
	Markets:  `[{"name": "광장시장", "lat": 37.5700, "lng": 126.9996}]`,
	Welfare:  `[{"name": "종로복지관", "lat": 37.58, "lon": 127.0}]`,
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for k, body := range fixtures {
		if err := os.WriteFile(filepath.Join(dir, FileName(k)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDecodeKeepsNumbers(t *testing.T) {
	rows, err := Decode([]byte(`[{"accident_id": 2025076001}]`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rows[0]["accident_id"].(json.Number); !ok {
		t.Fatalf("accident_id decoded as %T", rows[0]["accident_id"])
	}
	if _, err := Decode([]byte(`{"not": "an array"}`)); err == nil {
		t.Fatal("object accepted as a collection")
	}
}

func TestLoadAllFromFiles(t *testing.T) {
	src, err := LoadAll(context.Background(), FileSource{Dir: writeFixtures(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(src.Hotspots) != 1 || len(src.Medical) != 2 || len(src.Markets) != 1 || len(src.Welfare) != 1 {
		t.Fatalf("sources = %+v", src)
	}
	recs := record.Normalize(src)
	if len(recs) != 5 || recs[0].Category != record.HotspotArea || recs[0].YearKey != 2024 {
		t.Fatalf("normalized = %+v", recs)
	}
}

func TestLoadAllIsAllOrNothing(t *testing.T) {
	dir := writeFixtures(t)
	if err := os.Remove(filepath.Join(dir, FileName(Markets))); err != nil {
		t.Fatal(err)
	}
	src, err := LoadAll(context.Background(), FileSource{Dir: dir})
	if !errors.Is(err, ErrLoad) || !strings.Contains(err.Error(), "markets") {
		t.Fatalf("err = %v", err)
	}
	if src.Len() != 0 {
		t.Fatalf("partial data returned: %d rows", src.Len())
	}
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		for k, body := range fixtures {
			if r.URL.Path == "/data/"+FileName(k) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
				return
			}
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src, err := LoadAll(context.Background(), &HTTPSource{BaseURL: srv.URL + "/data/", Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if src.Len() != 5 || hits.Load() != 4 {
		t.Fatalf("rows=%d hits=%d", src.Len(), hits.Load())
	}

	_, err = LoadAll(context.Background(), &HTTPSource{BaseURL: srv.URL + "/missing", Client: srv.Client()})
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("404 err = %v", err)
	}
}

type flaky struct {
	fails atomic.Int32
	inner Source
}

func (f *flaky) Fetch(ctx context.Context, k Kind) ([]record.Raw, error) {
	if f.fails.Load() > 0 {
		if k == Welfare {
			f.fails.Add(-1)
		}
		return nil, errors.New("temporarily unavailable")
	}
	return f.inner.Fetch(ctx, k)
}

func TestHolderRunRetriesUntilReady(t *testing.T) {
	f := &flaky{inner: FileSource{Dir: writeFixtures(t)}}
	f.fails.Store(2)
	var h Holder
	notified := make(chan *Loaded, 1)
	h.Subscribe(func(l *Loaded) { notified <- l })

	if h.Ready() || h.Get() != nil {
		t.Fatal("holder ready before any load")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Run(ctx, f, 10*time.Millisecond, 0)

	l := h.Get()
	if l == nil || len(l.Records) != 5 || l.Counts.Medical != 2 {
		t.Fatalf("loaded = %+v", l)
	}
	if h.LastErr() != nil {
		t.Fatalf("LastErr after success = %v", h.LastErr())
	}
	select {
	case got := <-notified:
		if got != l {
			t.Fatal("subscriber saw a different generation")
		}
	default:
		t.Fatal("subscriber not notified")
	}
}

func TestHolderFailedLoadKeepsPrevious(t *testing.T) {
	var h Holder
	if _, err := h.Load(context.Background(), FileSource{Dir: writeFixtures(t)}); err != nil {
		t.Fatal(err)
	}
	prev := h.Get()
	if _, err := h.Load(context.Background(), FileSource{Dir: t.TempDir()}); !errors.Is(err, ErrLoad) {
		t.Fatalf("err = %v", err)
	}
	if h.Get() != prev || h.LastErr() == nil {
		t.Fatal("failed reload replaced the published generation")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("welfare"); err != nil || k != Welfare {
		t.Fatalf("ParseKind(welfare) = %v, %v", k, err)
	}
	if _, err := ParseKind("parks"); err == nil {
		t.Fatal("unknown kind accepted")
	}
}
