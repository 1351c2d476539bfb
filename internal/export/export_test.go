package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// ---------- JPEG ----------

func TestEncodeJPEG_Decodes(t *testing.T) {
	buf := imaging.Fill(16, 8, 200, 100, 50, 255)

	data, err := EncodeJPEG(buf, DefaultQuality)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("missing JPEG SOI marker")
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("decoded size = %dx%d, want 16x8", b.Dx(), b.Dy())
	}
}

func TestEncodeJPEG_InvalidBuffer(t *testing.T) {
	_, err := EncodeJPEG(imaging.PixelBuffer{Width: 2, Height: 2}, DefaultQuality)
	if !errors.Is(err, ErrEncoding) {
		t.Errorf("error = %v, want ErrEncoding", err)
	}
}

func TestEncodeJPEG_QualityClamped(t *testing.T) {
	buf := imaging.Fill(4, 4, 10, 20, 30, 255)
	for _, q := range []int{-5, 0, 101} {
		if _, err := EncodeJPEG(buf, q); err != nil {
			t.Errorf("quality %d: %v", q, err)
		}
	}
}

// ---------- Names ----------

func TestFileName(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	cases := []struct {
		prefix string
		n      int
		want   string
	}{
		{"photo-booth", 0, "photo-booth-1700000000123.jpg"},
		{"photo", 1, "photo-1-1700000000123.jpg"},
		{"photo", 12, "photo-12-1700000000123.jpg"},
	}
	for _, tc := range cases {
		if got := FileName(tc.prefix, tc.n, ts); got != tc.want {
			t.Errorf("FileName(%q, %d) = %q, want %q", tc.prefix, tc.n, got, tc.want)
		}
	}
}

// ---------- Zip ----------

func TestWriteZip_RoundTrip(t *testing.T) {
	files := []File{
		{Name: "photo-1-1.jpg", Data: []byte("first")},
		{Name: "photo-2-2.jpg", Data: []byte("second")},
	}

	var out bytes.Buffer
	if err := WriteZip(context.Background(), &out, files); err != nil {
		t.Fatalf("WriteZip: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	for i, zf := range zr.File {
		if zf.Name != files[i].Name {
			t.Errorf("entry %d name = %q, want %q", i, zf.Name, files[i].Name)
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != string(files[i].Data) {
			t.Errorf("entry %d data = %q", i, data)
		}
	}
}

func TestWriteZip_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WriteZip(ctx, io.Discard, []File{{Name: "a.jpg"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// ---------- Blobs ----------

func TestBlobStore_Lifecycle(t *testing.T) {
	s := NewBlobStore()
	h := s.Put([]byte("jpeg"))

	if !strings.HasPrefix(string(h), "blob:") {
		t.Errorf("handle %q should start with blob:", h)
	}
	if data, ok := s.Open(h); !ok || string(data) != "jpeg" {
		t.Errorf("Open = %q, %v", data, ok)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	s.Revoke(h)
	s.Revoke(h)
	if _, ok := s.Open(h); ok {
		t.Error("revoked handle should not open")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestBlobStore_DistinctHandles(t *testing.T) {
	s := NewBlobStore()
	if s.Put(nil) == s.Put(nil) {
		t.Error("handles should be unique")
	}
}
