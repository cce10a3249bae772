package http_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aloksahay/fairbnb-sub000/api"
	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/gateway"
	shttp "github.com/aloksahay/fairbnb-sub000/http"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/aloksahay/fairbnb-sub000/retry"
	"github.com/aloksahay/fairbnb-sub000/staging"
	"go.sia.tech/jape"
	"go.uber.org/zap/zaptest"
	"lukechampine.com/frand"
)

const testPassword = "test"

type testBackend struct {
	mu       sync.Mutex
	deposits int
	failAll  bool
	corrupt  bool
	objects  map[merkle.Root][]byte
}

func newTestBackend() *testBackend {
	return &testBackend{objects: make(map[merkle.Root][]byte)}
}

func (b *testBackend) Deposit(ctx context.Context, payload io.Reader, length uint64, root merkle.Root) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deposits++
	if b.failAll {
		return "", errors.New("node unreachable")
	}
	data, err := io.ReadAll(payload)
	if err != nil {
		return "", err
	}
	b.objects[root] = data
	return fmt.Sprintf("0x%02x", b.deposits), nil
}

func (b *testBackend) Retrieve(ctx context.Context, root merkle.Root, dst io.Writer) error {
	b.mu.Lock()
	data, ok := b.objects[root]
	corrupt := b.corrupt
	b.mu.Unlock()

	if !ok {
		return retry.Permanent(gateway.ErrNotFound)
	}
	if corrupt {
		data = append([]byte(nil), data...)
		data[0] ^= 0xff
	}
	_, err := dst.Write(data)
	return err
}

func (b *testBackend) Status(context.Context) gateway.NetworkStatus {
	return gateway.NetworkStatus{
		Connected:    true,
		LedgerHeight: 99,
		Nodes:        []gateway.NodeStatus{{Endpoint: "http://node:5678", Connected: true, Peers: 3, SyncHeight: 99}},
	}
}

func (b *testBackend) Balance(context.Context) (gateway.Balance, error) {
	return gateway.Balance{Address: "0xabc", Wei: big.NewInt(2500000000000000000), Display: "2.5"}, nil
}

type memStore struct {
	mu      sync.Mutex
	records map[merkle.Root]gateway.UploadRecord
}

func (s *memStore) AddUpload(r gateway.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[merkle.Root]gateway.UploadRecord)
	}
	s.records[r.Root] = r
	return nil
}

func (s *memStore) Upload(root merkle.Root) (gateway.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[root]
	if !ok {
		return gateway.UploadRecord{}, gateway.ErrNotFound
	}
	return r, nil
}

func (s *memStore) Uploads() ([]gateway.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []gateway.UploadRecord
	for _, r := range s.records {
		records = append(records, r)
	}
	return records, nil
}

func newTestClient(t *testing.T, backend gateway.Backend) (*api.Client, string) {
	t.Helper()

	log := zaptest.NewLogger(t)
	stager, err := staging.New(t.TempDir(), log.Named("staging"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{
		Validation: config.Validation{
			MaxSize:    1 << 20,
			MimeTypes:  []string{"image/png", "application/pdf"},
			Extensions: []string{"png", "pdf"},
		},
		Retry: config.Retry{
			Upload:   config.RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, AttemptTimeout: time.Second},
			Download: config.RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, AttemptTimeout: time.Second},
		},
	}
	gw := gateway.New(backend, &memStore{}, stager, cfg, log.Named("gateway"))

	server := httptest.NewServer(jape.BasicAuth(testPassword)(shttp.NewAPIHandler(gw, cfg, log.Named("api"))))
	t.Cleanup(server.Close)
	return api.NewClient(server.URL, testPassword), server.URL
}

// doRaw sends an authenticated request and returns the raw response, for
// asserting on status codes the client folds into error strings.
func doRaw(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("", testPassword)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIRoundTrip(t *testing.T) {
	backend := newTestBackend()
	client, _ := newTestClient(t, backend)
	ctx := context.Background()

	payload := frand.Bytes(70)
	record, err := client.Upload(ctx, payload, "listing.png", "image/png")
	if err != nil {
		t.Fatal(err)
	} else if record.Size != 70 {
		t.Fatalf("expected size 70, got %d", record.Size)
	} else if record.Transaction == "" {
		t.Fatal("expected a transaction reference")
	}

	expected, err := merkle.Sum(payload)
	if err != nil {
		t.Fatal(err)
	} else if record.Root != expected {
		t.Fatalf("expected root %s, got %s", expected, record.Root)
	}

	result, err := client.Download(ctx, record.Root)
	if err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(result.Payload, payload) {
		t.Fatal("downloaded payload does not match")
	} else if result.FileName != "listing.png" {
		t.Fatalf("expected file name %q, got %q", "listing.png", result.FileName)
	} else if result.MimeType != "image/png" {
		t.Fatalf("expected mime type %q, got %q", "image/png", result.MimeType)
	} else if result.Size != 70 {
		t.Fatalf("expected size 70, got %d", result.Size)
	}

	hash, err := client.Hash(ctx, payload)
	if err != nil {
		t.Fatal(err)
	} else if hash.Root != record.Root {
		t.Fatalf("expected root %s, got %s", record.Root, hash.Root)
	} else if hash.Size != 70 {
		t.Fatalf("expected size 70, got %d", hash.Size)
	}

	records, err := client.Uploads(ctx)
	if err != nil {
		t.Fatal(err)
	} else if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	} else if records[0].Root != record.Root {
		t.Fatalf("expected root %s, got %s", record.Root, records[0].Root)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	} else if !status.Network.Connected {
		t.Fatal("expected a connected network")
	} else if len(status.Network.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(status.Network.Nodes))
	}

	balance, err := client.Balance(ctx)
	if err != nil {
		t.Fatal(err)
	} else if balance.Display != "2.5" {
		t.Fatalf("expected display balance 2.5, got %q", balance.Display)
	} else if balance.Wei != "2500000000000000000" {
		t.Fatalf("expected wei balance 2500000000000000000, got %q", balance.Wei)
	}
}

func TestAPIStatusCodes(t *testing.T) {
	backend := newTestBackend()
	client, baseURL := newTestClient(t, backend)
	ctx := context.Background()

	// disallowed mime type
	resp := doRaw(t, "POST", baseURL+"/api/files?name=listing.png&type=image/gif", bytes.NewReader(frand.Bytes(100)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a disallowed mime type, got %d", resp.StatusCode)
	}

	// oversize payload
	resp = doRaw(t, "POST", baseURL+"/api/files?name=listing.png&type=image/png", bytes.NewReader(frand.Bytes((1<<20)+1)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversize payload, got %d", resp.StatusCode)
	}

	// malformed root
	resp = doRaw(t, "GET", baseURL+"/api/files/abcd", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed root, got %d", resp.StatusCode)
	}

	// unknown root
	var missing merkle.Root
	frand.Read(missing[:])
	resp = doRaw(t, "GET", baseURL+"/api/files/"+missing.String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown root, got %d", resp.StatusCode)
	}

	// corrupt payload
	record, err := client.Upload(ctx, frand.Bytes(512), "listing.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}
	backend.mu.Lock()
	backend.corrupt = true
	backend.mu.Unlock()
	resp = doRaw(t, "GET", baseURL+"/api/files/"+record.Root.String(), nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a corrupt payload, got %d", resp.StatusCode)
	}

	// unreachable backend
	backend.mu.Lock()
	backend.failAll = true
	backend.mu.Unlock()
	resp = doRaw(t, "POST", baseURL+"/api/files?name=listing.png&type=image/png", bytes.NewReader(frand.Bytes(100)))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for an unreachable backend, got %d", resp.StatusCode)
	}
}

func TestAPIAuth(t *testing.T) {
	_, baseURL := newTestClient(t, newTestBackend())

	resp, err := http.Get(baseURL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
}
