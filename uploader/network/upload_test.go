package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/filedrop-io/go-uploadutils/uploader"
)

type testFile struct {
	name string
	data []byte
}

func (f testFile) Name() string { return f.name }
func (f testFile) Size() int64  { return int64(len(f.data)) }
func (f testFile) ByteRange(start, end int64) (io.Reader, error) {
	return bytes.NewReader(f.data[start:end]), nil
}

func TestFileUploader_SendFile(t *testing.T) {
	var mu sync.Mutex
	var gotName, gotSize string
	var gotData []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload-single" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("read file part: %v", err)
		}

		mu.Lock()
		gotName = r.FormValue("fileName")
		gotSize = r.FormValue("fileSize")
		gotData = data
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewFileUploader(FileUploaderConfig{BaseURL: server.URL}, log.NewLogger())

	err := adapter.SendFile(context.Background(), testFile{name: "hello.txt", data: []byte("hello world")})
	if err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}

	if gotName != "hello.txt" {
		t.Errorf("fileName = %q", gotName)
	}
	if gotSize != "11" {
		t.Errorf("fileSize = %q", gotSize)
	}
	if string(gotData) != "hello world" {
		t.Errorf("file data = %q", gotData)
	}
}

func TestFileUploader_SendFile_NonOKResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "invalid upload")
	}))
	defer server.Close()

	adapter := NewFileUploader(FileUploaderConfig{BaseURL: server.URL}, log.NewLogger())

	err := adapter.SendFile(context.Background(), testFile{name: "hello.txt", data: []byte("hi")})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestChunkUploader_SendChunk(t *testing.T) {
	type receivedChunk struct {
		index, total int
		data         []byte
	}
	var mu sync.Mutex
	var received []receivedChunk
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload-chunk" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		index, err := strconv.Atoi(r.FormValue("chunkIndex"))
		if err != nil {
			t.Fatalf("chunkIndex: %v", err)
		}
		total, err := strconv.Atoi(r.FormValue("totalChunks"))
		if err != nil {
			t.Fatalf("totalChunks: %v", err)
		}
		file, _, err := r.FormFile("chunk")
		if err != nil {
			t.Fatalf("chunk part: %v", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("read chunk part: %v", err)
		}

		mu.Lock()
		received = append(received, receivedChunk{index: index, total: total, data: data})
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewChunkUploader(ChunkUploaderConfig{BaseURL: server.URL}, log.NewLogger())

	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cc")}
	for i, chunk := range chunks {
		err := adapter.SendChunk(context.Background(), uploader.ChunkPayload{
			Data:        bytes.NewReader(chunk),
			ChunkLen:    int64(len(chunk)),
			FileName:    "data.bin",
			FileSize:    10,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
		})
		if err != nil {
			t.Fatalf("SendChunk %d failed: %v", i, err)
		}
	}

	if len(received) != 3 {
		t.Fatalf("received %d chunks, want 3", len(received))
	}
	var reassembled []byte
	for i, chunk := range received {
		if chunk.index != i {
			t.Errorf("chunk %d arrived with index %d", i, chunk.index)
		}
		if chunk.total != 3 {
			t.Errorf("chunk %d: totalChunks = %d", i, chunk.total)
		}
		reassembled = append(reassembled, chunk.data...)
	}
	if string(reassembled) != "aaaabbbbcc" {
		t.Errorf("reassembled data = %q", reassembled)
	}
}

func TestChunkUploader_SendChunk_NonOKResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "chunk out of order")
	}))
	defer server.Close()

	adapter := NewChunkUploader(ChunkUploaderConfig{BaseURL: server.URL}, log.NewLogger())

	err := adapter.SendChunk(context.Background(), uploader.ChunkPayload{
		Data:        bytes.NewReader([]byte("data")),
		ChunkLen:    4,
		FileName:    "data.bin",
		FileSize:    4,
		ChunkIndex:  0,
		TotalChunks: 1,
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestListingClient(t *testing.T) {
	files := []RemoteFile{
		{Name: "a.txt", StoredName: "1111.txt", Size: 3, MimeType: "text/plain", UploadedAt: time.Now().UTC().Truncate(time.Second)},
		{Name: "b.bin", StoredName: "2222.bin", Size: 1024, MimeType: "application/octet-stream", UploadedAt: time.Now().UTC().Truncate(time.Second)},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(files); err != nil {
			t.Fatalf("encode listing: %v", err)
		}
	}))
	defer server.Close()

	client := NewListingClient(server.URL, nil, log.NewLogger())

	got, err := client.Files(context.Background())
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d files, want 2", len(got))
	}
	if got[0].Name != "a.txt" || got[1].StoredName != "2222.bin" {
		t.Errorf("unexpected listing: %+v", got)
	}

	// Refresh caches the latest result for Latest.
	client.Refresh()
	if latest := client.Latest(); len(latest) != 2 {
		t.Errorf("Latest returned %d files, want 2", len(latest))
	}
}
