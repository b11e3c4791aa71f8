package whttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/appliancepartgeeks/offermap/internal/utils"
)

const userAgent = "offermap/1.0 (+sitemap verification)"

// MaxBodySize caps how much of a response is read.
const MaxBodySize = 64 << 20

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
}

type WHTTPRes struct {
	StatusCode  int
	ContentType string
	HTTPTitle   string
	Body        []byte
}

// NewClient returns a retrying client that logs through the shared logger.
func NewClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = leveledLogger{utils.Log}
	return c
}

func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")
	for _, h := range wReq.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if strings.Contains(wRes.ContentType, "html") {
		if title, ok := getHTMLTitle(string(body)); ok {
			wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(title)), "")
		}
	}
	return wRes, nil
}

// Fetch GETs url and returns the body of a 200 response. Other statuses
// are errors; for HTML error pages the page title is included.
func Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := SendHTTPRequest(ctx, &WHTTPReq{URL: url, Method: http.MethodGet}, NewClient())
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		if res.HTTPTitle != "" {
			return nil, fmt.Errorf("GET %s: status %d (%s)", url, res.StatusCode, res.HTTPTitle)
		}
		return nil, fmt.Errorf("GET %s: status %d", url, res.StatusCode)
	}
	return res.Body, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *logrus.Logger
}

func (ll leveledLogger) entry(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return ll.l.WithFields(fields)
}

func (ll leveledLogger) Error(msg string, kv ...interface{}) { ll.entry(kv).Error(msg) }
func (ll leveledLogger) Info(msg string, kv ...interface{})  { ll.entry(kv).Debug(msg) }
func (ll leveledLogger) Debug(msg string, kv ...interface{}) { ll.entry(kv).Debug(msg) }
func (ll leveledLogger) Warn(msg string, kv ...interface{})  { ll.entry(kv).Warn(msg) }
