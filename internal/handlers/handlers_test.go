package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/services"
	"github.com/somexchange/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.LedgerConfig{BaseCurrency: "SOM", ClampMode: "lenient", MaxTxRetries: 3, Timezone: "UTC"}
	auth := services.NewAuthService(st, nil,
		config.JWTConfig{SecretKey: "handler-secret", ExpiryHours: 1},
		config.Argon2Config{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16}, nil)
	editor, err := services.NewLedgerEditor(st, cfg, nil)
	require.NoError(t, err)
	accounts := services.NewAccountService(st, cfg, nil)
	require.NoError(t, accounts.EnsureBaseAccount(context.Background()))
	query := services.NewQueryService(st)

	root := models.Identity{Username: "root", Role: models.RoleAdmin}
	for _, u := range []services.CreateUserRequest{
		{Username: "root", Password: "rootpassword", Role: models.RoleAdmin},
		{Username: "alice", Password: "alicepassword", Role: models.RoleTeller},
	} {
		_, err := auth.CreateUser(context.Background(), root, u)
		require.NoError(t, err)
	}

	return &api{t: t, handler: NewRouter(Services{
		Auth:      auth,
		Exchange:  services.NewExchangeService(st, cfg, nil),
		Editor:    editor,
		Query:     query,
		Analytics: services.NewAnalyticsService(st, cfg, nil),
		Accounts:  accounts,
		Repair:    services.NewRepairService(st, cfg, nil),
		Receipts:  services.NewReceiptService(query),
		Location:  cfg.Location(),
	})}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *api) login(username, password string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var resp services.AuthResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) balance(token, code string) string {
	a.t.Helper()
	w := a.do(http.MethodGet, "/api/v1/accounts/"+code, token, nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.Account](a.t, w).Quantity.String()
}

func exchange(code string, op models.OperationType, rate, qty string) map[string]string {
	return map[string]string{"currency_code": code, "operation_type": string(op), "rate": rate, "quantity": qty}
}

func TestAPI_Authentication(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/api/v1/entries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := a.login("alice", "alicepassword")
	w = a.do(http.MethodGet, "/api/v1/entries", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = a.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_ExchangeLifecycle(t *testing.T) {
	a := newAPI(t)
	alice := a.login("alice", "alicepassword")
	root := a.login("root", "rootpassword")

	w := a.do(http.MethodPost, "/api/v1/deposits", alice, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("USD", models.OperationPurchase, "90", "10"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	purchase := decode[models.LedgerEntry](t, w)
	assert.Equal(t, "900", purchase.Total.String())
	assert.Equal(t, "alice", purchase.Username)
	assert.Equal(t, "100", a.balance(alice, "SOM"))
	assert.Equal(t, "10", a.balance(alice, "USD"))

	t.Run("rejections", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("USD", models.OperationSale, "95", "20"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w = a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("EUR", models.OperationSale, "1", "1"))
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("USD", models.OperationPurchase, "0", "1"))
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[services.ErrorResponse](t, w).Details, "Rate")

		w = a.do(http.MethodPost, "/api/v1/exchanges", alice, `{"currency_code":"USD","bogus":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = a.do(http.MethodPost, "/api/v1/deposits", alice, `{"amount":"1"}{"amount":"2"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		assert.Equal(t, "100", a.balance(alice, "SOM"), "rejected requests move nothing")
	})

	t.Run("list filters", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/v1/entries", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		entries := decode[[]models.LedgerEntry](t, w)
		require.Len(t, entries, 2)
		assert.Equal(t, purchase.ID, entries[0].ID, "newest first")

		w = a.do(http.MethodGet, "/api/v1/entries?operation=Deposit&limit=5", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.LedgerEntry](t, w), 1)

		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/entries?operation=Gift", alice, nil).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/entries?limit=ten", alice, nil).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/entries?from=01-02-2025", alice, nil).Code)

		w = a.do(http.MethodGet, "/api/v1/currencies", alice, nil)
		assert.JSONEq(t, `["SOM","USD"]`, w.Body.String())
		w = a.do(http.MethodGet, "/api/v1/operation-types", alice, nil)
		assert.JSONEq(t, `["Purchase","Deposit"]`, w.Body.String())
	})

	t.Run("edit rebalances", func(t *testing.T) {
		w := a.do(http.MethodPut, "/api/v1/entries/"+purchase.ID, alice, exchange("USD", models.OperationPurchase, "90", "5"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		edited := decode[models.LedgerEntry](t, w)
		assert.Equal(t, "450", edited.Total.String())
		assert.NotNil(t, edited.UpdatedAt)
		assert.Equal(t, "550", a.balance(alice, "SOM"))
		assert.Equal(t, "5", a.balance(alice, "USD"))
	})

	t.Run("other tellers' entries are invisible", func(t *testing.T) {
		w := a.do(http.MethodPost, "/api/v1/deposits", root, map[string]string{"amount": "50"})
		require.Equal(t, http.StatusCreated, w.Code)
		rootEntry := decode[models.LedgerEntry](t, w)

		assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/entries/"+rootEntry.ID, alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/v1/entries/"+rootEntry.ID, alice, nil).Code)
		assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/entries/"+purchase.ID, root, nil).Code)
	})

	t.Run("receipt", func(t *testing.T) {
		w := a.do(http.MethodGet, "/api/v1/entries/"+purchase.ID+"/receipt?size=128", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/entries/"+purchase.ID+"/receipt?size=4096", alice, nil).Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := a.do(http.MethodDelete, "/api/v1/entries/"+purchase.ID, alice, nil)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "1050", a.balance(alice, "SOM"))
		assert.Equal(t, "0", a.balance(alice, "USD"))

		assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/v1/entries/"+purchase.ID, alice, nil).Code)
	})
}

func TestAPI_Stats(t *testing.T) {
	a := newAPI(t)
	alice := a.login("alice", "alicepassword")

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/deposits", alice, map[string]string{"amount": "1000"}).Code)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("USD", models.OperationPurchase, "90", "10")).Code)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/exchanges", alice, exchange("USD", models.OperationSale, "100", "4")).Code)

	w := a.do(http.MethodGet, "/api/v1/stats", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[models.StatsResult](t, w)
	assert.Equal(t, "SOM", stats.BaseCurrency)
	require.Len(t, stats.Currencies, 1)
	assert.True(t, stats.Currencies[0].Profit.Equal(decimal.NewFromInt(40)))

	today := time.Now().UTC().Format(time.DateOnly)
	w = a.do(http.MethodGet, "/api/v1/stats/daily?currency=usd&from="+today+"&to="+today, alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	days := decode[[]models.DayRecord](t, w)
	// a run straddling midnight UTC may split the entries over two days
	require.NotEmpty(t, days)

	w = a.do(http.MethodGet, "/api/v1/stats/daily?from=2000-01-01&to=2000-01-02", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/stats?from=2025-02-01&to=2025-01-01", alice, nil).Code)
}

func TestAPI_AdminRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.login("alice", "alicepassword")
	root := a.login("root", "rootpassword")

	rates := map[string]string{"default_buy_rate": "89", "default_sell_rate": "91"}
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPut, "/api/v1/accounts/EUR", alice, rates).Code)
	w := a.do(http.MethodPut, "/api/v1/accounts/eur", root, rates)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "EUR", decode[models.Account](t, w).Code)

	newUser := map[string]string{"username": "bob", "password": "bobpassword", "role": "teller"}
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/v1/admin/users", alice, newUser).Code)
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/admin/users", root, newUser).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/admin/users", root, newUser).Code)
	a.login("bob", "bobpassword")

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/v1/admin/repair", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/admin/repair?dry_run=maybe", root, nil).Code)
	w = a.do(http.MethodPost, "/api/v1/admin/repair?dry_run=true", root, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[models.RepairReport](t, w)
	assert.True(t, report.DryRun)
	assert.Empty(t, report.Accounts)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exchange_http_requests_total")
}

func TestParseRange(t *testing.T) {
	bishkek := time.FixedZone("KGT", 6*60*60)

	r, err := parseRange(url.Values{"from": {"2025-03-01"}, "to": {"2025-03-31"}}, bishkek)
	require.NoError(t, err)
	assert.True(t, r.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, bishkek)))
	assert.True(t, r.To.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, bishkek)), "to is inclusive")

	r, err = parseRange(url.Values{"from": {"2025-03-05"}, "to": {"2025-03-05"}}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, r.To.Sub(r.From))

	r, err = parseRange(url.Values{}, time.UTC)
	require.NoError(t, err)
	assert.True(t, r.From.IsZero())
	assert.True(t, r.To.IsZero())

	_, err = parseRange(url.Values{"to": {"yesterday"}}, time.UTC)
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = parseRange(url.Values{"from": {"2025-03-05"}, "to": {"2025-03-04"}}, time.UTC)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must not be before 2025-03-05", ve.Fields["to"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&services.ValidationError{Message: "Validation failed", Fields: map[string]string{"rate": "bad"}}, http.StatusBadRequest},
		{fmt.Errorf("%w: USD balance 1, need 2", services.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{services.ErrCurrencyNotFound, http.StatusNotFound},
		{services.ErrEntryNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: retry", services.ErrTransactionConflict), http.StatusConflict},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)

			resp := decode[services.ErrorResponse](t, w)
			assert.NotEmpty(t, resp.Error)
			assert.NotContains(t, resp.Error, "disk on fire")
		})
	}
}
