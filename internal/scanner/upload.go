// ABOUTME: Source upload support for local directory and inline content scans
// ABOUTME: Zips Solidity files and submits them as a multipart project scan

package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AnalyseProject zips the Solidity sources under dir and submits them for
// scanning under the given project name. Only .sol files are included.
func (c *Client) AnalyseProject(ctx context.Context, dir, projectName, token string) (json.RawMessage, error) {
	archive, count, err := zipSoliditySources(dir)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("no Solidity files found in %s", dir)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("project_name", projectName); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	part, err := writer.CreateFormFile("file", projectName+".zip")
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/private/api-analyse-project/", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading project: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading upload response: %w", err)
	}

	c.logger.Debug("project upload complete",
		"project", projectName,
		"files", count,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("uploading project: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	return json.RawMessage(data), nil
}

// zipSoliditySources collects .sol files under dir into an in-memory zip,
// preserving relative paths. Returns the archive and the file count.
func zipSoliditySources(dir string) ([]byte, int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("directory not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("not a directory: %s", dir)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sol") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("collecting sources: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), count, nil
}
