package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/podcastify/podcastify/app/feed"
)

const imageURL = "http://packy.dardan.com/npr/ninatotenbergtile_sq.png"

type recordingPublisher struct {
	calls    int
	fileName string
	data     []byte
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, fileName string, data []byte) error {
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.fileName = fileName
	p.data = data
	return nil
}

func feedXML(base string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Nina Totenberg</title>
    <link>https://www.npr.org/</link>
    <description>Legal affairs</description>
    <image><url>https://media.npr.org/original.png</url></image>
    <item>
      <title>A</title>
      <link>` + base + `/a</link>
      <content:encoded><![CDATA[<p>Body <em>A</em> &amp; more</p>]]></content:encoded>
    </item>
    <item>
      <title>B</title>
      <link>` + base + `/b</link>
      <content:encoded><![CDATA[<p>Body B</p>]]></content:encoded>
    </item>
  </channel>
</rss>`
}

func newTestServer(t *testing.T, feedStatus int) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		if feedStatus != http.StatusOK {
			w.WriteHeader(feedStatus)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML(server.URL))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a class="audio-module-listen" href="http://example.com/a.mp3">Listen</a></body></html>`)
	})
	mux.HandleFunc("/b", http.NotFound)
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testFeedConfig(url string) *feed.Config {
	return &feed.Config{
		Name:     "nina",
		URL:      url,
		ImageURL: imageURL,
		Output:   "nina.xml",
		Settings: feed.ConfigSettings{
			Enabled:        true,
			Timeout:        5,
			MissingContent: feed.MissingContentSkip,
			AudioSelector:  feed.DefaultAudioSelector,
		},
	}
}

func TestConvertFeedTask_TwoItemScenario(t *testing.T) {
	server := newTestServer(t, http.StatusOK)
	publisher := &recordingPublisher{}

	task := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", publisher)
	task.Start()
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if publisher.calls != 1 {
		t.Fatalf("Expected 1 publish call, got %d", publisher.calls)
	}
	if publisher.fileName != "nina.xml" {
		t.Errorf("Expected output file 'nina.xml', got '%s'", publisher.fileName)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(publisher.data); err != nil {
		t.Fatalf("Published feed does not parse: %v", err)
	}

	if got := doc.FindElement("/rss/channel/image/url").Text(); got != imageURL {
		t.Errorf("Expected image URL %q, got %q", imageURL, got)
	}

	items := doc.FindElements("/rss/channel/item")
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	if got := items[0].SelectElement("link").Text(); got != server.URL+"/a" {
		t.Errorf("Expected item order to be preserved, first link %q", got)
	}

	encA := items[0].SelectElements("enclosure")
	if len(encA) != 1 {
		t.Fatalf("Expected 1 enclosure on item A, got %d", len(encA))
	}
	if encA[0].SelectAttrValue("url", "") != "http://example.com/a.mp3" || encA[0].SelectAttrValue("type", "") != "audio/mpeg" {
		t.Errorf("Unexpected enclosure on item A: url=%q type=%q", encA[0].SelectAttrValue("url", ""), encA[0].SelectAttrValue("type", ""))
	}

	if encB := items[1].SelectElements("enclosure"); len(encB) != 0 {
		t.Errorf("Expected no enclosure on item B, got %d", len(encB))
	}

	if got := items[0].SelectElement("content:encoded").Text(); got != `<p>Body <em>A</em> &amp; more</p>` {
		t.Errorf("Expected item A content unchanged, got %q", got)
	}
	if got := items[1].SelectElement("content:encoded").Text(); got != `<p>Body B</p>` {
		t.Errorf("Expected item B content unchanged, got %q", got)
	}
	if !strings.Contains(string(publisher.data), `<![CDATA[<p>Body <em>A</em> &amp; more</p>]]>`) {
		t.Errorf("Expected content to be emitted as CDATA, got:\n%s", publisher.data)
	}
}

func TestConvertFeedTask_FeedFetchFailure(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError)
	publisher := &recordingPublisher{}

	task := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", publisher)
	err := task.Execute(context.Background())

	var fetchErr *feed.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", fetchErr.StatusCode)
	}
	if publisher.calls != 0 {
		t.Errorf("Expected nothing to be published, got %d calls", publisher.calls)
	}
}

func TestConvertFeedTask_MalformedFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss><channel><item>`)
	}))
	defer server.Close()
	publisher := &recordingPublisher{}

	err := NewConvertFeedTask(testFeedConfig(server.URL), server.Client(), "podcastify-test", publisher).Execute(context.Background())

	var parseErr *feed.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Expected ParseError, got: %v", err)
	}
	if publisher.calls != 0 {
		t.Errorf("Expected nothing to be published, got %d calls", publisher.calls)
	}
}

func TestConvertFeedTask_PublishFailure(t *testing.T) {
	server := newTestServer(t, http.StatusOK)
	cause := errors.New("disk full")
	publisher := &recordingPublisher{err: cause}

	err := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", publisher).Execute(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("Expected publish error to propagate, got: %v", err)
	}
}

func TestConvertFeedTask_Build(t *testing.T) {
	server := newTestServer(t, http.StatusOK)

	task := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", nil)
	data, result, err := task.Build(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected serialized feed")
	}

	if result.Items != 2 || result.Found != 1 || result.Failed != 1 || result.NotFound != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestConvertFeedTask_SkipEnclosed(t *testing.T) {
	var server *httptest.Server
	articleHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss xmlns:content="http://purl.org/rss/1.0/modules/content/"><channel>
<item><link>`+server.URL+`/a</link><content:encoded>x</content:encoded><enclosure url="http://example.com/a.mp3" type="audio/mpeg"/></item>
</channel></rss>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		articleHits++
		fmt.Fprint(w, `<html><body><a class="audio-module-listen" href="http://example.com/a.mp3"></a></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	config := testFeedConfig(server.URL + "/feed")
	config.Settings.SkipEnclosed = true

	data, result, err := NewConvertFeedTask(config, server.Client(), "podcastify-test", nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if articleHits != 0 {
		t.Errorf("Expected article not to be fetched, got %d hits", articleHits)
	}
	if result.SkipEnclosed != 1 {
		t.Errorf("Expected 1 skipped item, got %d", result.SkipEnclosed)
	}
	if n := strings.Count(string(data), "<enclosure"); n != 1 {
		t.Errorf("Expected a single enclosure, got %d", n)
	}

	config.Settings.SkipEnclosed = false
	data, _, err = NewConvertFeedTask(config, server.Client(), "podcastify-test", nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n := strings.Count(string(data), "<enclosure"); n != 2 {
		t.Errorf("Expected a duplicate enclosure without the guard, got %d", n)
	}
}

func TestRunner_FeedWithoutDeclaration(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/"><channel>
<image><url>https://media.npr.org/original.png</url></image>
<item><link>`+server.URL+`/a</link><content:encoded><![CDATA[<p>Body</p>]]></content:encoded></item>
</channel></rss>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a class="audio-module-listen" href="http://example.com/a.mp3">Listen</a></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	publisher := &recordingPublisher{}
	task := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", publisher)

	if err := NewRunner(1).Run(context.Background(), []TaskInterface{task}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if publisher.calls != 1 {
		t.Fatalf("Expected 1 publish call, got %d", publisher.calls)
	}
	if !strings.HasPrefix(string(publisher.data), `<?xml version="1.0" encoding="UTF-8"?>`+"\n<rss") {
		t.Errorf("Expected a declaration before the root, got:\n%s", publisher.data)
	}
	if !strings.Contains(string(publisher.data), `<enclosure url="http://example.com/a.mp3" type="audio/mpeg"/>`) {
		t.Errorf("Expected the enclosure to be attached, got:\n%s", publisher.data)
	}
}

func TestRunner_UnreachableFeedFails(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError)
	publisher := &recordingPublisher{}
	task := NewConvertFeedTask(testFeedConfig(server.URL+"/feed"), server.Client(), "podcastify-test", publisher)

	err := NewRunner(1).Run(context.Background(), []TaskInterface{task})
	var fetchErr *feed.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected a FetchError from the runner, got: %v", err)
	}
	if publisher.calls != 0 {
		t.Errorf("Expected nothing to be published, got %d calls", publisher.calls)
	}
}

func TestConvertFeedTask_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewConvertFeedTask(testFeedConfig("http://127.0.0.1:1/feed"), http.DefaultClient, "podcastify-test", nil)
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestNewTask(t *testing.T) {
	a := NewTask(TaskTypeConvertFeed, "nina")
	b := NewTask(TaskTypeConvertFeed, "nina")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique task IDs, got %q and %q", a.ID, b.ID)
	}
	if a.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}
	a.Start()
	time.Sleep(time.Millisecond)
	if a.GetDuration() <= 0 {
		t.Error("Expected positive duration after start")
	}
}
