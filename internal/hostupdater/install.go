package hostupdater

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Error variables for package install failures.
var (
	ErrChecksumMismatch = errors.New("checksum verification failed")
	ErrDownloadFailed   = errors.New("download failed")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrNoPackage        = errors.New("manifest has no package for this platform")
)

// progressWriter reports whole percentages of a known total.
type progressWriter struct {
	total    int64
	written  int64
	last     int
	progress func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 && p.progress != nil {
		pct := int(p.written * 100 / p.total)
		if pct != p.last {
			p.last = pct
			p.progress(pct)
		}
	}
	return len(b), nil
}

// download fetches url into a temp file under dir while hashing it.
// Returns the temp path and the hex sha256.
func download(ctx context.Context, client *http.Client, url, dir string, progress func(int)) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	//nolint:gosec // G301: install root needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create download directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "host-*.tar.gz")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	h := sha256.New()
	pw := &progressWriter{total: resp.ContentLength, last: -1, progress: progress}
	if _, err := io.Copy(io.MultiWriter(f, h, pw), resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", "", fmt.Errorf("close download: %w", err)
	}
	return f.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// installPackage downloads pkg, verifies it and extracts it into dest. The
// archive is unpacked next to dest first so a failed install never leaves a
// half-written version directory behind.
func installPackage(ctx context.Context, client *http.Client, pkg Package, dest string, progress func(int)) error {
	parent := filepath.Dir(dest)
	archive, sum, err := download(ctx, client, pkg.URL, parent, progress)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(archive) }()

	if expected := strings.ToLower(strings.TrimSpace(pkg.SHA256)); expected != "" && sum != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, sum)
	}

	staging := dest + ".partial"
	_ = os.RemoveAll(staging)
	//nolint:gosec // G304: archive path was created by download above
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open download: %w", err)
	}
	err = extractTarball(f, staging)
	_ = f.Close()
	if err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	_ = os.RemoveAll(dest)
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("move host into place: %w", err)
	}
	return nil
}

// extractTarball unpacks a .tar.gz archive into destDir.
func extractTarball(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	//nolint:gosec // G301: extracted host directory needs standard permissions
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tr := tar.NewReader(gzr)
	files := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			//nolint:gosec // G301: extracted host directory needs standard permissions
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			//nolint:gosec // G301: extracted host directory needs standard permissions
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			mode := os.FileMode(header.Mode).Perm() | 0600
			//nolint:gosec // G304: target is confined to destDir by safeJoin
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			//nolint:gosec // G110: packages are checksummed before extraction
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("extract file: %w", err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close file: %w", err)
			}
			files++
		default:
			// Links and devices are not part of host packages.
		}
	}

	if files == 0 {
		return fmt.Errorf("archive contains no files")
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the install directory", name)
	}
	return target, nil
}

// ParseChecksumFile parses a SHA256SUMS style listing into filename -> hash.
// Format: "sha256hash  filename" (two spaces between hash and filename)
func ParseChecksumFile(r io.Reader) (map[string]string, error) {
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			parts = strings.SplitN(line, " ", 2)
		}
		if len(parts) != 2 {
			continue
		}

		hash := strings.TrimSpace(parts[0])
		filename := filepath.Base(strings.TrimSpace(parts[1]))
		if hash != "" && filename != "" {
			checksums[filename] = hash
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	return checksums, nil
}
