package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"

	handler "skuflow/handler/http"
	"skuflow/src/core/catalog"
	"skuflow/src/core/ingest"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: make(map[string]catalog.Product)}
}

func (s *fakeCatalog) Get(ctx context.Context, sku string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[catalog.NormalizeSKU(sku)]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (s *fakeCatalog) List(ctx context.Context, opts catalog.ListOptions) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Product
	needle := strings.ToLower(opts.Query)
	for _, p := range s.products {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.SKU), needle) &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	if opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else {
		out = nil
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeCatalog) Create(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalog.NormalizeSKU(p.SKU)
	if _, ok := s.products[key]; ok {
		return catalog.ErrSKUExists
	}
	s.products[key] = *p
	return nil
}

func (s *fakeCatalog) Update(ctx context.Context, sku string, upd catalog.Update) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalog.NormalizeSKU(sku)
	p, ok := s.products[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	s.products[key] = p
	return &p, nil
}

func (s *fakeCatalog) Upsert(ctx context.Context, p catalog.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalog.NormalizeSKU(p.SKU)
	_, exists := s.products[key]
	s.products[key] = p
	return !exists, nil
}

func (s *fakeCatalog) Delete(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalog.NormalizeSKU(sku)
	if _, ok := s.products[key]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.products, key)
	return nil
}

func (s *fakeCatalog) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.products))
	s.products = make(map[string]catalog.Product)
	return n, nil
}

type fakeWebhooks struct {
	mu     sync.Mutex
	nextID int64
	subs   []webhook.Subscription
}

func (r *fakeWebhooks) Create(ctx context.Context, sub *webhook.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *fakeWebhooks) Update(ctx context.Context, id int64, sub webhook.Subscription) (*webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			sub.ID = id
			r.subs[i] = sub
			return &sub, nil
		}
	}
	return nil, webhook.ErrNotFound
}

func (r *fakeWebhooks) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return nil
		}
	}
	return webhook.ErrNotFound
}

func (r *fakeWebhooks) List(ctx context.Context) ([]webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhook.Subscription(nil), r.subs...), nil
}

func (r *fakeWebhooks) ListActive(ctx context.Context, eventType string) ([]webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []webhook.Subscription
	for _, sub := range r.subs {
		if sub.IsActive && sub.EventType == eventType {
			out = append(out, sub)
		}
	}
	return out, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeObjects) PutObject(ctx context.Context, bucketName, objectName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[bucketName+"/"+objectName] = data
	return nil
}

func (s *fakeObjects) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucketName+"/"+objectName]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucketName, objectName)
	}
	return data, nil
}

func (s *fakeObjects) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucketName+"/"+objectName)
	return nil
}

// loopbackPublisher feeds published upload messages straight back into the
// service, standing in for a running message router.
type loopbackPublisher struct {
	svc *ingest.Service
}

func (p *loopbackPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if err := p.svc.ProcessUploadMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *loopbackPublisher) Close() error { return nil }

type testEnv struct {
	router   *gin.Engine
	catalog  *fakeCatalog
	webhooks *fakeWebhooks
	jobs     *job.MemoryRegistry
	uploads  *ingest.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeCatalog()
	webhooks := &fakeWebhooks{}
	registry := job.NewMemoryRegistry()

	worker := ingest.NewWorker(store, registry, nil, 0)
	pub := &loopbackPublisher{}
	uploads := ingest.NewService(&fakeObjects{}, "uploads", registry, pub, worker)
	pub.svc = uploads

	router := gin.New()
	handler.NewHandler(store, webhooks, registry, uploads).RegisterRoutes(router)

	return &testEnv{
		router:   router,
		catalog:  store,
		webhooks: webhooks,
		jobs:     registry,
		uploads:  uploads,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}
