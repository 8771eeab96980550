package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/repository"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := catalog.NewStaticCache([]domain.CouponDefinition{
		{ID: "p20", Code: "P20", Kind: domain.KindCoupon, Type: domain.DiscountPercent, Value: 20, EligibleItemIDs: []string{"burger"}},
		{ID: "fries5", Code: "FRIES5", Kind: domain.KindCoupon, Type: domain.DiscountFlat, Value: 5, EligibleItemIDs: []string{"fries"}},
	}, nil)
	// A long window keeps reconciliation under the test's control via Flush.
	registry := service.NewRegistry(cat, repository.NewMemoryLockRepository(), nil, time.Hour, domain.ChannelDelivery, zap.NewNop())
	t.Cleanup(registry.Close)

	carts := NewCartHandler(registry, zap.NewNop())
	promos := NewPromotionHandler(registry, carts, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.PUT("/carts/:cartId/lines/:key", carts.PutLine)
	v1.GET("/carts/:cartId", carts.GetCart)
	v1.PUT("/carts/:cartId/channel", carts.SetChannel)
	v1.POST("/carts/:cartId/coupon", promos.ApplyCoupon)
	v1.DELETE("/carts/:cartId/coupon", promos.RemoveCoupon)
	v1.GET("/carts/:cartId/promotions", promos.ListPromotions)
	return r, registry
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPutLine_ThenSummary(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPut, "/api/v1/carts/c1/lines/burger:large", PutLineRequest{UnitPrice: 100, Quantity: 2})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/carts/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var sum domain.PricingSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.State != domain.StateAutoLocked || sum.Discount != 40 || sum.Total != 160 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestPutLine_Rejections(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []struct {
		path string
		body any
		want int
	}{
		{"/api/v1/carts/c1/lines/burger", PutLineRequest{UnitPrice: 1, Quantity: 1}, http.StatusBadRequest},
		{"/api/v1/carts/c1/lines/burger:large", PutLineRequest{UnitPrice: 1, Quantity: -1}, http.StatusBadRequest},
		{"/api/v1/carts/c1/lines/burger:large:cheese", PutLineRequest{UnitPrice: 1, Quantity: 1}, http.StatusConflict},
	}
	for _, tc := range cases {
		if w := do(r, http.MethodPut, tc.path, tc.body); w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.want, w.Code)
		}
	}
}

func TestGetCart_Unknown(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := do(r, http.MethodGet, "/api/v1/carts/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSetChannel(t *testing.T) {
	r, registry := newTestRouter(t)

	if w := do(r, http.MethodPut, "/api/v1/carts/c1/channel", SetChannelRequest{Mode: "takeaway"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := do(r, http.MethodPut, "/api/v1/carts/c1/channel", SetChannelRequest{Mode: "Dining"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	s, err := registry.Get("c1")
	if err != nil || s.CurrentMode() != domain.ChannelDining {
		t.Errorf("expected dining session, got %v", err)
	}
}

func TestApplyCoupon(t *testing.T) {
	r, registry := newTestRouter(t)
	do(r, http.MethodPut, "/api/v1/carts/c1/lines/burger:large", PutLineRequest{UnitPrice: 100, Quantity: 1})

	w := do(r, http.MethodPost, "/api/v1/carts/c1/coupon", ApplyCouponRequest{Code: "nope"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var res domain.ApplyResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Reason != domain.ReasonNotFound {
		t.Errorf("expected not-found, got %+v (%v)", res, err)
	}

	w = do(r, http.MethodPost, "/api/v1/carts/c1/coupon", ApplyCouponRequest{Code: "fries5"})
	res = domain.ApplyResult{}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || w.Code != http.StatusUnprocessableEntity || res.NextEligibleItem != "fries" {
		t.Errorf("expected not-eligible-now with fries hint, got %d %+v", w.Code, res)
	}

	w = do(r, http.MethodPost, "/api/v1/carts/c1/coupon", ApplyCouponRequest{Code: "P20"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	s, _ := registry.Get("c1")
	if s.Manager.State() != domain.StateManualLocked {
		t.Errorf("expected MANUAL_LOCKED, got %s", s.Manager.State())
	}
}

func TestApplyCoupon_MissingCode(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := do(r, http.MethodPost, "/api/v1/carts/c1/coupon", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRemoveCoupon_AutoLocksAgain(t *testing.T) {
	r, registry := newTestRouter(t)
	do(r, http.MethodPut, "/api/v1/carts/c1/lines/burger:large", PutLineRequest{UnitPrice: 100, Quantity: 1})
	do(r, http.MethodPost, "/api/v1/carts/c1/coupon", ApplyCouponRequest{Code: "P20"})

	if w := do(r, http.MethodDelete, "/api/v1/carts/c1/coupon", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	s, _ := registry.Get("c1")
	if s.Manager.State() != domain.StateEmpty {
		t.Fatalf("expected EMPTY right after removal, got %s", s.Manager.State())
	}

	s.Guard.Flush()
	if s.Manager.State() != domain.StateAutoLocked {
		t.Errorf("expected AUTO_LOCKED after the next pass, got %s", s.Manager.State())
	}
}

func TestListPromotions(t *testing.T) {
	r, _ := newTestRouter(t)
	do(r, http.MethodPut, "/api/v1/carts/c1/lines/fries:regular", PutLineRequest{UnitPrice: 30, Quantity: 1})
	do(r, http.MethodPut, "/api/v1/carts/c1/lines/burger:large", PutLineRequest{UnitPrice: 100, Quantity: 1})

	w := do(r, http.MethodGet, "/api/v1/carts/c1/promotions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Queue []domain.QueueEntry `json:"queue"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Queue) != 2 || body.Queue[0].Lock.CouponRef != "fries5" || body.Queue[1].Lock.CouponRef != "p20" {
		t.Errorf("unexpected queue %+v", body.Queue)
	}
}
