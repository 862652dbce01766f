// README: Evidence source: resolves photo references against allow-listed buckets and hosts.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"
)

const maxEvidenceBytes = 8 << 20

// ErrUnsupportedEvidence marks a reference the reviewer refuses to read.
var ErrUnsupportedEvidence = errors.New("unsupported evidence reference")

// ObjectReader reads one object from a storage bucket, up to limit bytes.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string, limit int64) (contentType string, body []byte, err error)
}

// EvidenceSource fetches evidence images. Only gs:// objects in the listed
// buckets and https:// URLs on the listed hosts are read; anything else is
// refused before any request is made.
type EvidenceSource struct {
	buckets map[string]bool
	hosts   map[string]bool
	objects ObjectReader
	http    *http.Client
}

func NewEvidenceSource(buckets, hosts []string, objects ObjectReader) *EvidenceSource {
	s := &EvidenceSource{
		buckets: toSet(buckets),
		hosts:   toSet(hosts),
		objects: objects,
	}
	s.http = &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("too many redirects")
			}
			if !s.hostAllowed(req.URL) {
				return fmt.Errorf("%w: redirect to %s", ErrUnsupportedEvidence, req.URL.Host)
			}
			return nil
		},
	}
	return s
}

// Fetch returns the image bytes and their genai format ("jpeg", "png", ...).
func (s *EvidenceSource) Fetch(ctx context.Context, ref string) (string, []byte, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedEvidence, err)
	}
	switch u.Scheme {
	case "gs":
		object := strings.TrimPrefix(u.Path, "/")
		if !s.buckets[u.Host] || object == "" || s.objects == nil {
			return "", nil, fmt.Errorf("%w: bucket %q", ErrUnsupportedEvidence, u.Host)
		}
		ct, body, err := s.objects.ReadObject(ctx, u.Host, object, maxEvidenceBytes+1)
		if err != nil {
			return "", nil, fmt.Errorf("read evidence: %w", err)
		}
		if len(body) > maxEvidenceBytes {
			return "", nil, fmt.Errorf("evidence larger than %d bytes", maxEvidenceBytes)
		}
		return imageFormat(ct, body), body, nil
	case "https":
		if !s.hostAllowed(u) {
			return "", nil, fmt.Errorf("%w: host %q", ErrUnsupportedEvidence, u.Host)
		}
		return s.get(ctx, u.String())
	default:
		return "", nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedEvidence, u.Scheme)
	}
}

func (s *EvidenceSource) hostAllowed(u *url.URL) bool {
	if u.Scheme != "https" || u.User != nil {
		return false
	}
	if p := u.Port(); p != "" && p != "443" {
		return false
	}
	return s.hosts[strings.ToLower(u.Hostname())]
}

func (s *EvidenceSource) get(ctx context.Context, ref string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedEvidence, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch evidence: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch evidence: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEvidenceBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("read evidence: %w", err)
	}
	if len(body) > maxEvidenceBytes {
		return "", nil, fmt.Errorf("evidence larger than %d bytes", maxEvidenceBytes)
	}
	return imageFormat(resp.Header.Get("Content-Type"), body), body, nil
}

func imageFormat(contentType string, body []byte) string {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	if f, ok := strings.CutPrefix(contentType, "image/"); ok {
		if i := strings.IndexByte(f, ';'); i >= 0 {
			f = f[:i]
		}
		return f
	}
	return "jpeg"
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			out[it] = true
		}
	}
	return out
}

// GCSReader reads evidence objects from Cloud Storage.
type GCSReader struct {
	client *storage.Client
}

// NewGCSReader uses the service account file when given, otherwise the
// application default credentials.
func NewGCSReader(ctx context.Context, credentialsFile string) (*GCSReader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSReader{client: client}, nil
}

func (g *GCSReader) ReadObject(ctx context.Context, bucket, object string, limit int64) (string, []byte, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", nil, err
	}
	return r.Attrs.ContentType, body, nil
}

func (g *GCSReader) Close() {
	g.client.Close()
}
