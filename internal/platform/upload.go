package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// UploadFieldName is the multipart form field the platform expects.
const UploadFieldName = "file_uploaded_in"

// Upload sends a file for the given username. A 400 response means the
// file name already exists and surfaces ErrDuplicateFileName; other
// rejections carry the server's detail payload.
func (client *Client) Upload(ctx context.Context, username string, fileName string, content io.Reader) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, partErr := writer.CreateFormFile(UploadFieldName, fileName)
	if partErr != nil {
		return fmt.Errorf("platform.upload.form: %w", partErr)
	}
	if _, copyErr := io.Copy(part, content); copyErr != nil {
		return fmt.Errorf("platform.upload.read: %w", copyErr)
	}
	if closeErr := writer.Close(); closeErr != nil {
		return fmt.Errorf("platform.upload.form: %w", closeErr)
	}

	query := url.Values{}
	query.Set("username", username)
	response, sendErr := client.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/files/upload",
		query:       query,
		body:        buffer.Bytes(),
		contentType: writer.FormDataContentType(),
	})
	if sendErr != nil {
		return sendErr
	}
	switch response.status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusBadRequest:
		return &APIError{
			Status:   response.status,
			Detail:   decodeDetail(response.body),
			Sentinel: ErrDuplicateFileName,
		}
	default:
		return &APIError{Status: response.status, Detail: decodeDetail(response.body)}
	}
}
