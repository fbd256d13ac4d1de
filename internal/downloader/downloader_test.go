package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/basket/pixivbot-go/internal/filecache"
)

func TestDownload_CacheMissThenHit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Referer") != sourceReferer {
			t.Errorf("expected Referer header, got %q", r.Header.Get("Referer"))
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	d := New(filecache.New(t.TempDir()), server.Client())

	path1, err := d.Download(context.Background(), server.URL+"/img.jpg")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	path2, err := d.Download(context.Background(), server.URL+"/img.jpg")
	if err != nil {
		t.Fatalf("download again: %v", err)
	}
	if path1 != path2 {
		t.Fatalf("expected same cached path, got %q vs %q", path1, path2)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly 1 HTTP GET, got %d", got)
	}
}

func TestDownload_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := New(filecache.New(t.TempDir()), server.Client())
	if _, err := d.Download(context.Background(), server.URL+"/gone.jpg"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestDownloadAll_PartialFailureKeepsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.jpg" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	d := New(filecache.New(t.TempDir()), server.Client())
	results := d.DownloadAll(context.Background(), []string{
		server.URL + "/a.jpg",
		server.URL + "/bad.jpg",
		server.URL + "/c.jpg",
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Path == "" {
		t.Fatalf("expected result 0 to succeed, got %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatalf("expected result 1 to fail")
	}
	if results[2].Err != nil || results[2].Path == "" {
		t.Fatalf("expected result 2 to succeed, got %+v", results[2])
	}
}
