package routes

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func formContext(t *testing.T, values url.Values) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/query", strings.NewReader(values.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c, w
}

func TestBindQueryFormFields(t *testing.T) {
	c, _ := formContext(t, url.Values{
		"question":      {"  what is a contract  "},
		"n_results":     {"7"},
		"expand":        {"1"},
		"filename":      {"law.pdf"},
		"domain_filter": {"law"},
		"session_id":    {"sess-1"},
	})

	req, ok := bindQuery(c)
	if !ok {
		t.Fatal("form bind failed")
	}
	if req.Question != "what is a contract" {
		t.Fatalf("question = %q", req.Question)
	}
	if req.NResults != 7 || req.Expand != 1 {
		t.Fatalf("n_results = %d, expand = %d", req.NResults, req.Expand)
	}
	if req.Filename != "law.pdf" || req.DomainFilter != "law" || req.SessionID != "sess-1" {
		t.Fatalf("filters = %+v", req)
	}
}

func TestBindQueryFormHistory(t *testing.T) {
	c, _ := formContext(t, url.Values{
		"question":             {"follow up"},
		"conversation_history": {`[{"role":"user","content":"earlier question"}]`},
	})

	req, ok := bindQuery(c)
	if !ok {
		t.Fatal("form bind failed")
	}
	if len(req.History) != 1 || req.History[0].Content != "earlier question" {
		t.Fatalf("history = %+v", req.History)
	}
}

func TestBindQueryBadFormHistory(t *testing.T) {
	c, w := formContext(t, url.Values{
		"question":             {"q"},
		"conversation_history": {"{not json"},
	})
	if _, ok := bindQuery(c); ok {
		t.Fatal("malformed history must be rejected")
	}
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBindQueryJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/query",
		strings.NewReader(`{"question":"json still works","n_results":3}`))
	c.Request.Header.Set("Content-Type", "application/json")

	req, ok := bindQuery(c)
	if !ok {
		t.Fatal("json bind failed")
	}
	if req.Question != "json still works" || req.NResults != 3 {
		t.Fatalf("req = %+v", req)
	}
}

func TestBindQueryRejectsEmptyQuestion(t *testing.T) {
	c, w := formContext(t, url.Values{"question": {"   "}})
	if _, ok := bindQuery(c); ok {
		t.Fatal("blank question must be rejected")
	}
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
