package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err = part.Write(content); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestOpenUpload(t *testing.T) {
	const limit = 1024
	a := &MediaAPI{}

	t.Run("accepts a small file", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", "pic.png", []byte("png bytes"))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/upload/image", body)
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		file, header, ok := a.openUpload(w, r, limit)
		if !ok {
			t.Fatalf("openUpload() rejected a valid upload: %s", w.Body.String())
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "pic.png" {
			t.Errorf("filename = %q", header.Filename)
		}
	})

	t.Run("oversize body is 413", func(t *testing.T) {
		body, contentType := multipartBody(t, "image", "big.png", bytes.Repeat([]byte("x"), 3*limit+8192))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/upload/image", body)
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		if _, _, ok := a.openUpload(w, r, limit); ok {
			t.Fatal("openUpload() accepted an oversize upload")
		}
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
		}
	})

	t.Run("malformed multipart is 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/upload/image",
			strings.NewReader("this is not a multipart body"))
		r.Header.Set("Content-Type", "multipart/form-data; boundary=deadbeef")
		w := httptest.NewRecorder()

		if _, _, ok := a.openUpload(w, r, limit); ok {
			t.Fatal("openUpload() accepted a malformed body")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("missing image field is 400", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "pic.png", []byte("png bytes"))
		r := httptest.NewRequest(http.MethodPost, "/api/v1/upload/image", body)
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		if _, _, ok := a.openUpload(w, r, limit); ok {
			t.Fatal("openUpload() accepted a request without an image field")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
