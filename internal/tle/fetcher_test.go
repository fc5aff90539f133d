package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func serveText(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestFetch(t *testing.T) {
	iss := issName + "\n" + issLine1 + "\n" + issLine2
	geo := "INTELSAT 36\n" + geoLine1 + "\n" + geoLine2 + "\n"

	tests := []struct {
		name    string
		primary string
		extras  []string
		wantIDs []int
		wantErr bool
	}{
		{
			name:    "primary only",
			primary: serveText(t, http.StatusOK, iss+"\n"),
			wantIDs: []int{25544},
		},
		{
			// The primary body has no trailing newline; the join must add one.
			name:    "extra source appended",
			primary: serveText(t, http.StatusOK, iss),
			extras:  []string{serveText(t, http.StatusOK, geo)},
			wantIDs: []int{25544, 41866},
		},
		{
			name:    "failing extra skipped",
			primary: serveText(t, http.StatusOK, iss+"\n"),
			extras:  []string{serveText(t, http.StatusServiceUnavailable, "")},
			wantIDs: []int{25544},
		},
		{
			name:    "primary error",
			primary: serveText(t, http.StatusInternalServerError, ""),
			extras:  []string{serveText(t, http.StatusOK, geo)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewFetcher(tt.primary, testLogger, tt.extras...).Fetch(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("Fetch succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}

			entries, err := Parse(strings.NewReader(string(data)), testLogger)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if entries[i].NORADID != id {
					t.Errorf("entry %d = %d, want %d", i, entries[i].NORADID, id)
				}
			}
		})
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := strings.Repeat("A", 1<<20)
		for i := 0; i < 52; i++ {
			if _, err := io.WriteString(w, chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("Fetch oversized body: err = %v, want byte limit error", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	url := serveText(t, http.StatusOK, issLine1+"\n"+issLine2+"\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher(url, testLogger).Fetch(ctx); err == nil {
		t.Error("Fetch with cancelled context succeeded")
	}
}

func TestDefaultSource(t *testing.T) {
	f := NewFetcher("", testLogger)
	if !strings.Contains(f.SourceURL(), "GROUP=stations") {
		t.Errorf("SourceURL = %q", f.SourceURL())
	}
}
