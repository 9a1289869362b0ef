package response

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("header X-Request-ID = %q", got)
	}
	if body := decode(t, w); body.Metadata.RequestID != "req-1" || body.Error != nil {
		t.Errorf("body = %+v", body)
	}
}

func TestRequestIDRejectsUnsafeHeader(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestIDMiddleware(zerolog.New(&buf)))
	r.GET("/", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("hit")
		Success(c, http.StatusOK, "ok")
	})

	for _, id := range []string{"has space", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, id)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(HeaderRequestID)
		if got == id || got == "" {
			t.Errorf("header %q was not replaced, got %q", id, got)
		}
		if !strings.Contains(buf.String(), `"request_id":"`+got+`"`) {
			t.Errorf("request logger missing id %q: %s", got, buf.String())
		}
		buf.Reset()
	}
}

func TestFailVariants(t *testing.T) {
	r := gin.New()
	r.GET("/redirect", func(c *gin.Context) {
		FailWithRedirect(c, http.StatusNotFound, ErrNotFound, "/assessments")
	})
	r.GET("/data", func(c *gin.Context) {
		FailWithData(c, http.StatusAccepted, ErrPersistFailed, map[string]string{"status": "SUBMITTED"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/redirect", nil))
	body := decode(t, w)
	if w.Code != http.StatusNotFound || body.Error == nil || body.Error.Redirect != "/assessments" {
		t.Fatalf("redirect response = %d %+v", w.Code, body.Error)
	}
	if body.Metadata.RequestID == "" {
		t.Error("missing fallback request id")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	body = decode(t, w)
	if w.Code != http.StatusAccepted || body.Error.Code != ErrPersistFailed || body.Data == nil {
		t.Fatalf("data response = %d %+v", w.Code, body)
	}
}

func TestEveryCodeHasMessage(t *testing.T) {
	codes := []ErrCode{
		ErrTokenRequired, ErrTokenInvalid, ErrValidation, ErrInvalidID, ErrInvalidPayload,
		ErrInvalidFilter, ErrNotFound, ErrInvalidIndex, ErrInvalidOption, ErrInvalidTransition,
		ErrAlreadyCompleted, ErrNoSession, ErrNoQuestions, ErrPersistFailed,
		ErrRateLimitExceeded, ErrInternal,
	}
	fallback := GetMessage("SOMETHING_ELSE")
	for _, c := range codes {
		if GetMessage(c) == fallback {
			t.Errorf("%s has no message", c)
		}
	}
}
