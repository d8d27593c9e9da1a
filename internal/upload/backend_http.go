package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPBackend delegates durable storage to a remote upload service over
// multipart HTTP. The request body is streamed, never buffered whole; because
// chunks stay readable until finalization succeeds, every retry attempt
// rebuilds the stream from the chunk store via the open callback.
type HTTPBackend struct {
	client   *retryablehttp.Client
	endpoint string
	token    string
}

// NewHTTPBackend constructs the backend for the given service endpoint.
func NewHTTPBackend(endpoint, token string) *HTTPBackend {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &HTTPBackend{client: client, endpoint: endpoint, token: token}
}

type storeResponse struct {
	Location    string `json:"location"`
	ContentHash string `json:"content_hash"`
}

func (b *HTTPBackend) Store(ctx context.Context, info ObjectInfo, open func() (io.ReadCloser, error), size int64) (StoredObject, error) {
	// The multipart boundary must be stable across retry attempts because the
	// Content-Type header is set once on the request.
	boundary := "goupload-" + uuid.NewString()

	makeBody := func() (io.Reader, error) {
		object, err := open()
		if err != nil {
			return nil, err
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			object.Close()
			return nil, err
		}

		go func() {
			defer object.Close()

			writeFields := func() error {
				fields := map[string]string{
					"session_id": info.SessionID.String(),
					"owner_id":   info.OwnerID.String(),
					"mime_type":  info.MimeType,
					"bucket":     info.Bucket,
					"size":       strconv.FormatInt(size, 10),
				}
				for name, value := range fields {
					if err := mw.WriteField(name, value); err != nil {
						return err
					}
				}
				part, err := mw.CreateFormFile("file", info.FileName)
				if err != nil {
					return err
				}
				if _, err := io.Copy(part, object); err != nil {
					return err
				}
				return mw.Close()
			}

			pw.CloseWithError(writeFields())
		}()

		return pr, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/v1/objects",
		retryablehttp.ReaderFunc(func() (io.Reader, error) { return makeBody() }))
	if err != nil {
		return StoredObject{}, fmt.Errorf("build store request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return StoredObject{}, fmt.Errorf("store object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return StoredObject{}, fmt.Errorf("store object: backend returned %d: %s", resp.StatusCode, body)
	}

	var out storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StoredObject{}, fmt.Errorf("decode store response: %w", err)
	}
	if out.Location == "" {
		return StoredObject{}, fmt.Errorf("store object: backend returned no location")
	}

	return StoredObject{Location: out.Location, ContentHash: out.ContentHash}, nil
}
