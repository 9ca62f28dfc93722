package reasoner

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

func newUploadRequest(ctx context.Context, url, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// CreateVectorStore creates a named document store on the assistants service
// and returns its id.
func (c *Client) CreateVectorStore(ctx context.Context, name string) (string, error) {
	var store struct {
		ID string `json:"id"`
	}
	err := c.withRetry(ctx, fmt.Sprintf("create vector store %q", name), func() error {
		return c.postJSON(ctx, "/vector_stores", map[string]any{"name": name}, &store)
	})
	if err != nil {
		return "", err
	}
	return store.ID, nil
}

// AddFileToVectorStore attaches an uploaded file to a vector store.
func (c *Client) AddFileToVectorStore(ctx context.Context, storeID, fileID string) error {
	return c.withRetry(ctx, fmt.Sprintf("add file %s to vector store %s", fileID, storeID), func() error {
		return c.postJSON(ctx, "/vector_stores/"+storeID+"/files", map[string]any{"file_id": fileID}, nil)
	})
}

// UploadFile uploads a local file for assistant use and returns its file id.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	var uploaded struct {
		ID string `json:"id"`
	}
	err := c.withRetry(ctx, fmt.Sprintf("upload file %s", path), func() error {
		return c.uploadFileOnce(ctx, path, &uploaded)
	})
	if err != nil {
		return "", err
	}
	return uploaded.ID, nil
}

func (c *Client) uploadFileOnce(ctx context.Context, path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := form.WriteField("purpose", "assistants"); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := newUploadRequest(ctx, c.opts.BaseURL+"/files", form.FormDataContentType(), pr)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// EnsureAssistant creates (or re-creates) the docs assistant backed by the
// given vector store through the file_search tool, and makes it the client's
// active assistant.
func (c *Client) EnsureAssistant(ctx context.Context, vectorStoreID string) (string, error) {
	payload := map[string]any{
		"name":         c.opts.AssistantName,
		"model":        c.opts.Model,
		"instructions": c.opts.Instructions,
		"tools":        []map[string]string{{"type": "file_search"}},
		"tool_resources": map[string]any{
			"file_search": map[string]any{
				"vector_store_ids": []string{vectorStoreID},
			},
		},
		"top_p":           1.0,
		"temperature":     1.0,
		"response_format": "auto",
	}

	var assistant struct {
		ID string `json:"id"`
	}
	err := c.withRetry(ctx, "create assistant", func() error {
		return c.postJSON(ctx, "/assistants", payload, &assistant)
	})
	if err != nil {
		return "", err
	}
	c.SetAssistantID(assistant.ID)
	return assistant.ID, nil
}
