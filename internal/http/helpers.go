package http

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mcdry/internal/core"
)

func memberPath(id int64) string {
	return "/member/" + strconv.FormatInt(id, 10)
}

// backTo returns the same-origin page the request came from, or "/". A GET
// is never sent back to its own path so a refused page cannot loop.
func backTo(r *http.Request) string {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || u.Path == "" || u.Path[0] != '/' {
		return "/"
	}
	if r.Method == http.MethodGet && u.Path == r.URL.Path {
		return "/"
	}
	return u.RequestURI()
}

// amountClass picks the CSS class for a signed amount.
func amountClass(m core.Money) string {
	switch {
	case m.IsNegative():
		return "debit"
	case m.IsZero():
		return "zero"
	default:
		return "credit"
	}
}

var templateFuncs = template.FuncMap{
	"money":       func(m core.Money) string { return m.String() },
	"amountClass": amountClass,
	"memberPath":  memberPath,
	"datetime": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04")
	},
	"year": func() int { return time.Now().Year() },
}
