package novelai

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func zipOf(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// chunkReader returns at most n bytes per Read
type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.n, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestNewRequestBody(t *testing.T) {
	t.Run("fills prompts, size and defaults", func(t *testing.T) {
		req := NewRequestBody("pos", "neg", "model-x", "832x1216", 42)

		assert.Equal(t, "model-x", req.Model)
		assert.Equal(t, "generate", req.Action)
		assert.Equal(t, 832, req.Parameters.Width)
		assert.Equal(t, 1216, req.Parameters.Height)
		assert.Equal(t, int64(42), req.Parameters.Seed)
		assert.Equal(t, 7.5, req.Parameters.Scale)
		assert.Equal(t, 28, req.Parameters.Steps)
		assert.Equal(t, 1.0, req.Parameters.CFGRescale)
		assert.Equal(t, "k_euler_ancestral", req.Parameters.Sampler)
		assert.Equal(t, "karras", req.Parameters.NoiseSchedule)

		assert.Equal(t, "pos", req.Input)
		assert.Equal(t, "neg", req.Parameters.NegativePrompt)
		assert.Equal(t, "pos", req.Parameters.V4Prompt.Caption.BaseCaption)
		assert.Equal(t, "neg", req.Parameters.V4NegativePrompt.Caption.BaseCaption)
	})

	t.Run("serializes with wire field names", func(t *testing.T) {
		b, err := json.Marshal(NewRequestBody("pos", "neg", "model-x", "832x1216", 42))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		params := m["parameters"].(map[string]any)
		assert.Equal(t, float64(832), params["width"])
		assert.Equal(t, float64(42), params["seed"])
		v4 := params["v4_prompt"].(map[string]any)["caption"].(map[string]any)
		assert.Equal(t, "pos", v4["base_caption"])
		neg := params["v4_negative_prompt"].(map[string]any)["caption"].(map[string]any)
		assert.Equal(t, "neg", neg["base_caption"])
	})

	t.Run("falls back to defaults", func(t *testing.T) {
		req := NewRequestBody("p", "n", "", "garbage", 1)
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, 832, req.Parameters.Width)
		assert.Equal(t, 1216, req.Parameters.Height)
	})
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"832x1216", 832, 1216, false},
		{" 1024X1024 ", 1024, 1024, false},
		{"832", 0, 0, true},
		{"0x10", 0, 0, true},
		{"axb", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestAssemble(t *testing.T) {
	t.Run("concatenates chunks in order", func(t *testing.T) {
		data := bytes.Repeat([]byte("abcdefg"), 1000)
		got, err := Assemble(&chunkReader{data: data, n: 13})
		require.NoError(t, err)
		assert.Equal(t, data, got.Data)
		assert.Equal(t, KindRawImage, got.Kind)
	})

	t.Run("classifies zip signature as archive", func(t *testing.T) {
		got, err := Assemble(bytes.NewReader([]byte{0x50, 0x4B, 0x03, 0x04}))
		require.NoError(t, err)
		assert.Equal(t, KindArchive, got.Kind)
	})

	t.Run("other bytes are raw", func(t *testing.T) {
		assert.Equal(t, KindRawImage, Classify(pngBytes))
		assert.Equal(t, KindRawImage, Classify([]byte{0x50}))
		assert.Equal(t, KindRawImage, Classify(nil))
	})

	t.Run("nil body", func(t *testing.T) {
		_, err := Assemble(nil)
		assert.ErrorIs(t, err, ErrEmptyResponseBody)
	})

	t.Run("read error", func(t *testing.T) {
		_, err := Assemble(failingReader{})
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestExtractImage(t *testing.T) {
	t.Run("returns the first image entry", func(t *testing.T) {
		archive := zipOf(t, map[string][]byte{
			"readme.txt": []byte("hello"),
			"test.png":   pngBytes,
			"other.jpg":  []byte("jpg"),
		}, "readme.txt", "test.png", "other.jpg")

		name, data, err := ExtractImage(archive)
		require.NoError(t, err)
		assert.Equal(t, "test.png", name)
		assert.Equal(t, pngBytes, data)
	})

	t.Run("extension match is case insensitive", func(t *testing.T) {
		archive := zipOf(t, map[string][]byte{"IMAGE.JPEG": []byte("x")}, "IMAGE.JPEG")
		name, _, err := ExtractImage(archive)
		require.NoError(t, err)
		assert.Equal(t, "IMAGE.JPEG", name)
	})

	t.Run("no image entry", func(t *testing.T) {
		archive := zipOf(t, map[string][]byte{"a.txt": []byte("x")}, "a.txt")
		_, _, err := ExtractImage(archive)
		assert.ErrorIs(t, err, ErrNoImageInArchive)
	})

	t.Run("corrupt archive", func(t *testing.T) {
		_, _, err := ExtractImage([]byte{0x50, 0x4B, 0x00})
		assert.Error(t, err)
	})
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewClient("test-key", Config{Endpoint: srv.URL}, WithLogger(logger), WithHTTPClient(srv.Client()))
	return c, &logs
}

func TestClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("archive response round-trips the image", func(t *testing.T) {
		archive := zipOf(t, map[string][]byte{"test.png": pngBytes}, "test.png")
		var gotReq Request
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "binary/octet-stream", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_, _ = w.Write(archive)
		})

		img, ok := c.Generate(ctx, Prompt{Positive: "cat", Negative: "dog", Seed: 7})
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MimeType)

		decoded, err := base64.StdEncoding.DecodeString(img.Data)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, decoded)

		assert.Equal(t, "cat", gotReq.Input)
		assert.Equal(t, int64(7), gotReq.Parameters.Seed)
		assert.Equal(t, DefaultModel, gotReq.Model)
	})

	t.Run("raw response is encoded directly", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(pngBytes)
		})

		img, ok := c.Generate(ctx, Prompt{Positive: "x"})
		require.True(t, ok)
		assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), img.Data)
	})

	t.Run("unknown bytes fall back to image/png", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not really an image"))
		})

		img, ok := c.Generate(ctx, Prompt{Positive: "x"})
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("server error is logged and absorbed", func(t *testing.T) {
		c, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		})

		var img Image
		var ok bool
		assert.NotPanics(t, func() { img, ok = c.Generate(ctx, Prompt{Positive: "x"}) })
		assert.False(t, ok)
		assert.Empty(t, img.Data)
		assert.Contains(t, logs.String(), "image generation failed")
		assert.Contains(t, logs.String(), "boom")
	})

	t.Run("server error surfaces as ExternalAPIError", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
		})

		_, err := c.generate(ctx, Prompt{})
		var apiErr *ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "bad key", apiErr.Body)
	})

	t.Run("empty body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		_, err := c.generate(ctx, Prompt{})
		assert.ErrorIs(t, err, ErrEmptyResponseBody)
	})

	t.Run("archive without image", func(t *testing.T) {
		archive := zipOf(t, map[string][]byte{"meta.json": []byte("{}")}, "meta.json")
		c, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(archive)
		})

		_, ok := c.Generate(ctx, Prompt{})
		assert.False(t, ok)
		assert.Contains(t, logs.String(), ErrNoImageInArchive.Error())
	})
}
