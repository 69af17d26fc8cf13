package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"deskcal/internal/model"
)

const sampleText = "【関東甲信地方】関東甲信地方は、高気圧に覆われて晴れています。" +
	"２５日は、気圧の谷の影響で曇りや雨となるでしょう。" +
	"神奈川県は、晴れ時々曇りで、夜は雨や雷雨となる所がある見込みです。"

func TestExtractSentence(t *testing.T) {
	got, ok := ExtractSentence(sampleText, DefaultRegion, 25)
	if !ok {
		t.Fatal("expected a match")
	}
	// The day marker comes first in document order, written with full-width digits.
	if got != "２５日は、気圧の谷の影響で曇りや雨となるでしょう" {
		t.Fatalf("unexpected sentence: %q", got)
	}

	got, ok = ExtractSentence(sampleText, DefaultRegion, 3)
	if !ok || got != "神奈川県は、晴れ時々曇りで、夜は雨や雷雨となる所がある見込みです" {
		t.Fatalf("expected region sentence, got %q ok=%v", got, ok)
	}

	if _, ok := ExtractSentence("東京地方は晴れ。", DefaultRegion, 3); ok {
		t.Fatal("expected no match")
	}
}

func TestClassifyIcons(t *testing.T) {
	cases := []struct {
		text string
		want []Icon
	}{
		{"晴れ時々曇りで、夜は雨や雷雨", []Icon{IconSun, IconCloudy, IconRain, IconThunder}},
		{"北の風、雪", []Icon{IconSnow, IconWind}},
		{"稲妻が見える", []Icon{IconThunder}},
		{"高気圧に覆われる", []Icon{IconSun}},
	}
	for _, tc := range cases {
		if got := ClassifyIcons(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ClassifyIcons(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc, day int) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewFetcher(srv.URL, "", srv.Client())
	f.Now = func() time.Time { return time.Date(2025, 7, day, 9, 0, 0, 0, time.UTC) }
	return f
}

func TestFetchTodayOK(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"publishingOffice":"横浜地方気象台","text":"` + sampleText + `"}`))
	}, 3)

	res := f.FetchToday(context.Background())
	if res.Status != model.StatusOK || res.Snapshot == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []Icon{IconSun, IconCloudy, IconRain, IconThunder}
	if !reflect.DeepEqual(res.Snapshot.Icons, want) {
		t.Fatalf("unexpected icons: %v", res.Snapshot.Icons)
	}
}

func TestFetchTodayNoMatchIsEmpty(t *testing.T) {
	for name, body := range map[string]string{
		"no match":   `{"text":"東京地方は晴れ。"}`,
		"empty text": `{"text":""}`,
		"no text":    `{"publishingOffice":"気象庁"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}, 3)
			res := f.FetchToday(context.Background())
			if res.Status != model.StatusEmpty || res.Snapshot != nil || res.Err != nil {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestFetchTodayFailuresAreDegraded(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		},
		"json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			res := newTestFetcher(t, h, 3).FetchToday(context.Background())
			if res.Status != model.StatusDegraded || res.Err == nil || res.Snapshot != nil {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestFetchTodayTransportError(t *testing.T) {
	f := NewFetcher("http://127.0.0.1:1/unreachable", "", nil)
	res := f.FetchToday(context.Background())
	if res.Status != model.StatusDegraded || res.Err == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}
