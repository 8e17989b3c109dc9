package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/marketpulse/internal/logging"
	"github.com/seenimoa/marketpulse/pkg/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// ── TabularSource ──

func TestTabularSourceCSV(t *testing.T) {
	path := writeFile(t, "articles.csv", "\uFEFFid,date,title,link,content\n"+
		"1,2024-05-01,VN-Index tăng,https://x/1,\"Thị trường khởi sắc, thanh khoản cao\"\n"+
		"2,2024-05-01,Không nội dung,https://x/2,\n"+
		",2024-05-01,no id,https://x/3,skipped\n")

	got, err := NewTabularSource(path).Articles(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Article{
		ID: "1", Date: "2024-05-01", Title: "VN-Index tăng", Link: "https://x/1",
		Content: "Thị trường khởi sắc, thanh khoản cao",
	}, got[0])
	assert.Equal(t, "", got[1].Content, "missing content normalised to empty")
}

func TestTabularSourceOptionalColumns(t *testing.T) {
	path := writeFile(t, "articles.csv", "ID,Title\n7,Only title\n")

	got, err := NewTabularSource(path).Articles(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Article{ID: "7", Title: "Only title"}, got[0])
}

func TestTabularSourceXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"id", "date", "title", "link", "content"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"x1", "2024-05-02", "Giá thép giảm", "https://x/1", "Ngành thép khó khăn"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := NewTabularSource(path).Articles(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].ID)
	assert.Equal(t, "Ngành thép khó khăn", got[0].Content)
}

func TestTabularSourceErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewTabularSource(filepath.Join(t.TempDir(), "missing.csv")).Articles(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewTabularSource(writeFile(t, "a.csv", "title,content\nx,y\n")).Articles(ctx)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewTabularSource(writeFile(t, "b.csv", "")).Articles(ctx)
	assert.ErrorIs(t, err, ErrMalformed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewTabularSource(writeFile(t, "c.csv", "id,title\n1,x\n")).Articles(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── LoadCoefficients ──

func TestLoadCoefficients(t *testing.T) {
	path := writeFile(t, "coef.csv", "sector,coefficient\nNgân hàng,2\nThép,\"0,5\"\n,3\nNgân hàng,1.5\n")

	got, err := LoadCoefficients(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Ngân hàng": 1.5, "Thép": 0.5}, got)
}

func TestLoadCoefficientsLegacyHeader(t *testing.T) {
	path := writeFile(t, "coef.csv", "sector,He_so\nBất động sản,3\n")

	got, err := LoadCoefficients(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got["Bất động sản"])
}

func TestLoadCoefficientsErrors(t *testing.T) {
	_, err := LoadCoefficients(writeFile(t, "a.csv", "sector\nThép\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = LoadCoefficients(writeFile(t, "b.csv", "sector,coefficient\nThép,abc\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = LoadCoefficients(writeFile(t, "c.csv", "sector,coefficient\nThép,NaN\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

// ── FeedSource ──

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Kinh tế</title>
<item>
  <guid>g-1</guid>
  <title>Xuất khẩu tăng mạnh</title>
  <link>https://news.example/1</link>
  <description><![CDATA[<p>Kim ngạch <b>tăng</b> 15%</p><script>x()</script>]]></description>
  <pubDate>Wed, 01 May 2024 08:00:00 +0700</pubDate>
</item>
<item>
  <title>Không có guid</title>
  <link>https://news.example/2</link>
  <description>Nội dung</description>
</item>
</channel></rss>`

func TestFeedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(rssBody))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewFeedSource(
		[]string{srv.URL + "/ok", srv.URL + "/broken", srv.URL + "/ok"},
		WithFeedHTTPClient(srv.Client()),
		WithFeedLogger(logging.Discard()),
	)
	got, err := src.Articles(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2, "duplicate feed items kept once, broken feed skipped")

	assert.Equal(t, "g-1", got[0].ID)
	assert.Equal(t, "Xuất khẩu tăng mạnh", got[0].Title)
	assert.Equal(t, "Kim ngạch tăng 15%", got[0].Content)
	assert.Equal(t, "2024-05-01", got[0].Date)

	assert.Equal(t, "https://news.example/2", got[1].ID, "link used when guid is absent")
}

func TestFeedSourceAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewFeedSource([]string{srv.URL + "/a", srv.URL + "/b"}, WithFeedLogger(logging.Discard()))
	_, err := src.Articles(context.Background())
	require.Error(t, err)

	var httpErr *ErrHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestCleanHTML(t *testing.T) {
	assert.Equal(t, "", cleanHTML(""))
	assert.Equal(t, "a b c", cleanHTML("<div>a</div>\n<p> b </p><style>.x{}</style>c"))
}
