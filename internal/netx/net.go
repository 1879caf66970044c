// Package netx moves blob bytes to and from presigned object-storage URLs.
package netx

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// HTTPClient is used for every presigned request. Tests may replace it.
var HTTPClient = &http.Client{}

// UploadToPresignedURL PUTs data to a presigned URL.
func UploadToPresignedURL(ctx context.Context, url string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// s3Error is the XML body S3-compatible stores send with a failed request.
type s3Error struct {
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// missingObject reports whether a failed GET means the key does not exist.
// S3 answers 404 NoSuchKey only when the presigning identity may list the
// bucket; otherwise a missing key is a plain 403 AccessDenied.
func missingObject(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	var e s3Error
	if xml.Unmarshal(body, &e) != nil {
		return false
	}
	return e.Code == "NoSuchKey" || e.Code == "NoSuchBucket"
}

// DownloadFromPresignedURL GETs the object behind a presigned URL.
// A missing object is reported as common.ErrorNotFound.
func DownloadFromPresignedURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return io.ReadAll(resp.Body)
	}
	b, _ := io.ReadAll(resp.Body)
	if missingObject(resp.StatusCode, b) {
		return nil, common.ErrorNotFound
	}
	return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
}
