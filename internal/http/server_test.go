package http

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"mcdry/internal/auth"
	"mcdry/internal/core"
	"mcdry/internal/services"
	"mcdry/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	t      *testing.T
	dbPath string
	srv    *Server
	repo   *storage.SQLiteRepository
	ledger *services.LedgerService
	leaves *services.LeaveService
}

func newTestApp(t *testing.T, loginRate int) *testApp {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "mcdry.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	admin, err := auth.NewCredential("admin", "admin-pw", "", auth.RoleAdmin, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := auth.NewCredential("viewer", "viewer-pw", "", auth.RoleViewer, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	ledger := services.NewLedgerService(repo, nil)
	leaves := services.NewLeaveService(repo, nil)
	srv, err := NewServer(":0", Deps{
		Repo:               repo,
		Ledger:             ledger,
		Leaves:             leaves,
		Authenticator:      auth.NewAuthenticator(admin, viewer),
		Sessions:           auth.NewSessionStore(100, time.Hour),
		OrganizationName:   "McDry Test",
		LoginRatePerMinute: loginRate,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.loginLimiter.Stop() })
	return &testApp{t: t, dbPath: dbPath, srv: srv, repo: repo, ledger: ledger, leaves: leaves}
}

func (a *testApp) do(method, path string, form url.Values, cookie *http.Cookie, referer string) *httptest.ResponseRecorder {
	a.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	r := httptest.NewRequest(method, path, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		r.AddCookie(cookie)
	}
	if referer != "" {
		r.Header.Set("Referer", referer)
	}
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, r)
	return rec
}

func (a *testApp) login(username, password string) *http.Cookie {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/login", url.Values{"username": {username}, "password": {password}}, nil, "")
	if rec.Code != http.StatusSeeOther {
		a.t.Fatalf("login %s: status %d", username, rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			a.sessionFlashes(c)
			return c
		}
	}
	a.t.Fatalf("login %s: no session cookie", username)
	return nil
}

// execSQL runs raw SQL against the app database on its own connection.
func (a *testApp) execSQL(query string) {
	a.t.Helper()
	db, err := sql.Open("sqlite", storage.DSN(a.dbPath))
	if err != nil {
		a.t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(query); err != nil {
		a.t.Fatalf("exec %q: %v", query, err)
	}
}

func (a *testApp) sessionFlashes(c *http.Cookie) []auth.Flash {
	return a.srv.sessions.PopFlashes(c.Value)
}

func (a *testApp) member(number string) core.Member {
	a.t.Helper()
	m, err := a.ledger.CreateMember(context.Background(), number, "Member "+number, core.Money{})
	if err != nil {
		a.t.Fatal(err)
	}
	return m
}

func (a *testApp) balance(id int64) int64 {
	a.t.Helper()
	m, err := a.repo.GetMember(context.Background(), id)
	if err != nil {
		a.t.Fatal(err)
	}
	return m.Balance.Cents
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func assertFlash(t *testing.T, flashes []auth.Flash, level auth.FlashLevel, contains string) {
	t.Helper()
	for _, f := range flashes {
		if f.Level == level && strings.Contains(f.Message, contains) {
			return
		}
	}
	t.Errorf("no %s flash containing %q in %+v", level, contains, flashes)
}

func TestAnonymousRedirectedToLogin(t *testing.T) {
	a := newTestApp(t, 100)
	m := a.member("001")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodPost, "/"},
		{http.MethodGet, "/member/1"},
		{http.MethodGet, "/delete/1"},
		{http.MethodPost, "/delete_transaction/1"},
		{http.MethodGet, "/delete_leave/1"},
		{http.MethodGet, "/export.xlsx"},
	} {
		rec := a.do(tc.method, tc.path, url.Values{}, nil, "")
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("%s %s: status %d location %q", tc.method, tc.path, rec.Code, rec.Header().Get("Location"))
		}
	}
	if _, err := a.repo.GetMember(context.Background(), m.ID); err != nil {
		t.Errorf("member touched by anonymous requests: %v", err)
	}
}

func TestLogin(t *testing.T) {
	a := newTestApp(t, 100)

	rec := a.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}}, nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Access denied") {
		t.Error("bad password page lacks error message")
	}

	rec = a.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"admin-pw"}}, nil, "")
	assertRedirect(t, rec, "/")
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("session cookie = %+v", cookie)
	}

	rec = a.do(http.MethodGet, "/", nil, cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Signed in as admin") || !strings.Contains(body, "McDry Test") {
		t.Errorf("index missing flash or organization name")
	}

	rec = a.do(http.MethodGet, "/login", nil, cookie, "")
	assertRedirect(t, rec, "/")
}

func TestLogout(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("viewer", "viewer-pw")

	rec := a.do(http.MethodGet, "/logout", nil, cookie, "")
	assertRedirect(t, rec, "/login")

	rec = a.do(http.MethodGet, "/", nil, cookie, "")
	assertRedirect(t, rec, "/login")
}

func TestLoginThrottled(t *testing.T) {
	a := newTestApp(t, 2)
	bad := url.Values{"username": {"admin"}, "password": {"nope"}}

	for i := 0; i < 2; i++ {
		if rec := a.do(http.MethodPost, "/login", bad, nil, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i+1, rec.Code)
		}
	}
	rec := a.do(http.MethodPost, "/login", bad, nil, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("third attempt status = %d, want 429", rec.Code)
	}
}

func TestCreateMember(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")

	rec := a.do(http.MethodPost, "/", url.Values{
		"member_id_no":    {"M-1"},
		"name":            {"Alice"},
		"initial_balance": {"250.50"},
	}, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashSuccess, "Alice")

	members, _ := a.repo.ListMembers(context.Background())
	if len(members) != 1 || members[0].Balance.Cents != 25050 {
		t.Fatalf("members = %+v", members)
	}

	rec = a.do(http.MethodPost, "/", url.Values{"member_id_no": {"M-1"}, "name": {"Bob"}}, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashWarning, "already in use")

	rec = a.do(http.MethodPost, "/", url.Values{"member_id_no": {"M-2"}, "name": {"Bob"}, "initial_balance": {"abc"}}, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "Invalid amount")

	members, _ = a.repo.ListMembers(context.Background())
	if len(members) != 1 {
		t.Errorf("member count = %d, want 1", len(members))
	}
}

func TestTransactionScenario(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")
	m := a.member("001")
	path := memberPath(m.ID)

	rec := a.do(http.MethodPost, path, url.Values{"amount": {"1000"}, "type": {"add"}, "description": {"Deposit"}}, cookie, "")
	assertRedirect(t, rec, path)
	if got := a.balance(m.ID); got != 100000 {
		t.Fatalf("after credit balance = %d", got)
	}

	rec = a.do(http.MethodPost, path, url.Values{"amount": {"300"}, "type": {"subtract"}}, cookie, "")
	assertRedirect(t, rec, path)
	if got := a.balance(m.ID); got != 70000 {
		t.Fatalf("after debit balance = %d", got)
	}

	txs, _ := a.repo.ListTransactions(context.Background(), m.ID)
	if len(txs) != 2 || txs[0].Description != core.DefaultTransactionDescription {
		t.Fatalf("transactions = %+v", txs)
	}
	credit := txs[1]

	rec = a.do(http.MethodGet, "/delete_transaction/"+itoa(credit.ID), nil, cookie, "")
	assertRedirect(t, rec, path)
	if got := a.balance(m.ID); got != -30000 {
		t.Fatalf("after delete balance = %d, want -30000", got)
	}

	rec = a.do(http.MethodGet, path, nil, cookie, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "-300.00") {
		t.Errorf("member page status %d, missing balance", rec.Code)
	}
}

func TestRecordTransactionInvalidInput(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")
	m := a.member("001")
	path := memberPath(m.ID)

	for _, form := range []url.Values{
		{"amount": {"12x"}, "type": {"credit"}},
		{"amount": {"-5"}, "type": {"credit"}},
		{"amount": {"5"}, "type": {"refund"}},
	} {
		rec := a.do(http.MethodPost, path, form, cookie, "")
		assertRedirect(t, rec, path)
		flashes := a.sessionFlashes(cookie)
		if len(flashes) != 1 || flashes[0].Level != auth.FlashError {
			t.Errorf("form %v: flashes = %+v", form, flashes)
		}
	}
	if got := a.balance(m.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestRecordLeaveRange(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")
	m := a.member("001")
	path := memberPath(m.ID)

	rec := a.do(http.MethodPost, path, url.Values{"leave_date": {"2024-03-02"}}, cookie, "")
	assertRedirect(t, rec, path)
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashSuccess, "1 day")

	rec = a.do(http.MethodPost, path, url.Values{
		"start_date": {"2024-03-01"},
		"end_date":   {"2024-03-03"},
		"reason":     {"Vacation"},
	}, cookie, "")
	assertRedirect(t, rec, path)
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashSuccess, "3 days: 2 days added, 1 day already on record")

	leaves, _ := a.repo.ListLeaves(context.Background(), m.ID)
	if len(leaves) != 3 {
		t.Fatalf("leaves = %d, want 3", len(leaves))
	}

	rec = a.do(http.MethodPost, path, url.Values{"start_date": {"2024-04-05"}, "end_date": {"2024-04-01"}}, cookie, "")
	assertRedirect(t, rec, path)
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "before the start date")

	rec = a.do(http.MethodPost, path, url.Values{"start_date": {"2024-02-30"}}, cookie, "")
	assertRedirect(t, rec, path)
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "YYYY-MM-DD")

	leaves, _ = a.repo.ListLeaves(context.Background(), m.ID)
	if len(leaves) != 3 {
		t.Errorf("leaves after invalid input = %d, want 3", len(leaves))
	}

	rec = a.do(http.MethodPost, "/delete_leave/"+itoa(leaves[0].ID), nil, cookie, "")
	assertRedirect(t, rec, path)
	leaves, _ = a.repo.ListLeaves(context.Background(), m.ID)
	if len(leaves) != 2 {
		t.Errorf("leaves after delete = %d, want 2", len(leaves))
	}
}

func TestTransactionAndLeaveCommitTogether(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")
	m := a.member("001")
	path := memberPath(m.ID)

	rec := a.do(http.MethodPost, path, url.Values{
		"amount":     {"40"},
		"type":       {"debit"},
		"start_date": {"2024-03-01"},
		"end_date":   {"2024-03-02"},
	}, cookie, "")
	assertRedirect(t, rec, path)
	flashes := a.sessionFlashes(cookie)
	assertFlash(t, flashes, auth.FlashSuccess, "Recorded debit of 40.00")
	assertFlash(t, flashes, auth.FlashSuccess, "Leave recorded for 2 days")
	if got := a.balance(m.ID); got != -4000 {
		t.Errorf("balance = %d, want -4000", got)
	}

	a.execSQL(`CREATE TRIGGER block_leaves BEFORE INSERT ON leaves
		BEGIN SELECT RAISE(ABORT, 'leaves blocked'); END`)

	rec = a.do(http.MethodPost, path, url.Values{
		"amount":     {"100"},
		"type":       {"credit"},
		"start_date": {"2024-03-05"},
	}, cookie, "")
	assertRedirect(t, rec, path)
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "Nothing was recorded")

	if got := a.balance(m.ID); got != -4000 {
		t.Errorf("balance after failed post = %d, want -4000", got)
	}
	txs, _ := a.repo.ListTransactions(context.Background(), m.ID)
	if len(txs) != 1 {
		t.Errorf("transactions after failed post = %d, want 1", len(txs))
	}
}

func TestViewerCannotMutate(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("viewer", "viewer-pw")
	m := a.member("001")
	if _, err := a.ledger.RecordTransaction(context.Background(), m.ID, core.Money{Cents: 500}, "", core.Credit); err != nil {
		t.Fatal(err)
	}
	txs, _ := a.repo.ListTransactions(context.Background(), m.ID)
	day, _ := core.ParseLeaveRange("2024-05-01", "")
	if _, err := a.leaves.RecordLeaveRange(context.Background(), m.ID, day, ""); err != nil {
		t.Fatal(err)
	}
	leaves, _ := a.repo.ListLeaves(context.Background(), m.ID)
	path := memberPath(m.ID)

	rec := a.do(http.MethodGet, "/", nil, cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer GET / status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Add member") {
		t.Error("viewer sees the add member form")
	}

	attempts := []struct {
		method string
		path   string
		form   url.Values
	}{
		{http.MethodPost, "/", url.Values{"member_id_no": {"002"}, "name": {"Eve"}}},
		{http.MethodPost, path, url.Values{"amount": {"10"}, "type": {"credit"}}},
		{http.MethodPost, path, url.Values{"start_date": {"2024-03-01"}}},
		{http.MethodGet, "/delete_transaction/" + itoa(txs[0].ID), nil},
		{http.MethodGet, "/delete_leave/" + itoa(leaves[0].ID), nil},
		{http.MethodPost, "/delete_leave/" + itoa(leaves[0].ID), nil},
		{http.MethodGet, "/delete/" + itoa(m.ID), nil},
	}
	for _, at := range attempts {
		rec := a.do(at.method, at.path, at.form, cookie, "http://example.com"+path)
		assertRedirect(t, rec, path)
		assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "Permission denied")
	}

	if got := a.balance(m.ID); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
	members, _ := a.repo.ListMembers(context.Background())
	leaves, _ = a.repo.ListLeaves(context.Background(), m.ID)
	if len(members) != 1 || len(leaves) != 1 || leaves[0].Date.String() != "2024-05-01" {
		t.Errorf("state changed: members=%d leaves=%+v", len(members), leaves)
	}
}

func TestDeniedWithoutRefererGoesHome(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("viewer", "viewer-pw")
	m := a.member("001")

	rec := a.do(http.MethodGet, "/delete/"+itoa(m.ID), nil, cookie, "https://evil.test/x")
	assertRedirect(t, rec, "/")
}

func TestDeleteMember(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("admin", "admin-pw")
	m := a.member("001")
	r, _ := core.ParseLeaveRange("2024-03-01", "2024-03-02")
	if _, err := a.leaves.RecordLeaveRange(context.Background(), m.ID, r, ""); err != nil {
		t.Fatal(err)
	}

	rec := a.do(http.MethodPost, "/delete/"+itoa(m.ID), nil, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashSuccess, "deleted")

	if _, err := a.repo.GetMember(context.Background(), m.ID); err == nil {
		t.Error("member still present")
	}

	rec = a.do(http.MethodGet, "/delete/"+itoa(m.ID), nil, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "not found")

	rec = a.do(http.MethodGet, "/delete_transaction/999", nil, cookie, "")
	assertRedirect(t, rec, "/")
	assertFlash(t, a.sessionFlashes(cookie), auth.FlashError, "Transaction not found")
}

func TestMemberNotFound(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("viewer", "viewer-pw")

	for _, path := range []string{"/member/42", "/member/abc", "/no/such/page"} {
		rec := a.do(http.MethodGet, path, nil, cookie, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestExport(t *testing.T) {
	a := newTestApp(t, 100)
	cookie := a.login("viewer", "viewer-pw")
	a.member("001")

	rec := a.do(http.MethodGet, "/export.xlsx", nil, cookie, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("body is not a zip archive")
	}
}

func TestHealthAndStatic(t *testing.T) {
	a := newTestApp(t, 100)

	for _, path := range []string{"/healthz", "/readyz", "/static/style.css"} {
		rec := a.do(http.MethodGet, path, nil, nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	rec := a.do(http.MethodGet, "/login", nil, nil, "")
	if rec.Header().Get("Content-Security-Policy") == "" || rec.Header().Get("X-Request-ID") == "" {
		t.Error("security or trace headers missing")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
